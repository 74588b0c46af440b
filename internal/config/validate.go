// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	m := &cfg.Master

	if !m.Simulate && m.Interface == "" {
		return fmt.Errorf("master: interface is required unless simulate is set")
	}
	if m.Simulate && m.SimDevices < 0 {
		return fmt.Errorf("master: sim_devices must be >= 0")
	}

	if m.CycleTimeUs < 0 {
		return fmt.Errorf("master: cycle_time_us must be >= 0")
	}
	if m.StateTimeoutMs < 0 {
		return fmt.Errorf("master: state_timeout_ms must be >= 0")
	}

	if m.RT.Priority < 0 || m.RT.Priority > 99 {
		return fmt.Errorf("master: rt.priority %d out of range 0-99", m.RT.Priority)
	}
	if m.RT.CPU < -1 {
		return fmt.Errorf("master: rt.cpu must be >= -1 (-1 disables pinning)")
	}

	if m.Monitor.IntervalUs < 0 {
		return fmt.Errorf("master: monitor.interval_us must be >= 0")
	}
	if m.Monitor.CheckTimeoutMs < 0 {
		return fmt.Errorf("master: monitor.check_timeout_ms must be >= 0")
	}

	if m.Gateway != nil {
		if m.Gateway.Endpoint == "" {
			return fmt.Errorf("master: gateway.endpoint is required when gateway is set")
		}
		if m.Gateway.TimeoutMs < 0 {
			return fmt.Errorf("master: gateway.timeout_ms must be >= 0")
		}
	}

	if m.Command != nil && m.Command.Listen == "" {
		return fmt.Errorf("master: command.listen is required when command is set")
	}

	return nil
}
