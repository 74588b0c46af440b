// internal/config/normalize.go
package config

// Defaults applied by Normalize. The cycle period and thresholds mirror the
// reference controller: 500us cycle, 2s state timeout, 500us monitor poll,
// 5ms bounded state checks, +20 counts per cycle position ramp.
const (
	DefaultCycleTimeUs    = 500
	DefaultStateTimeoutMs = 2000
	DefaultRampIncrement  = 20

	DefaultMonitorIntervalUs     = 500
	DefaultMonitorCheckTimeoutMs = 5

	DefaultGatewayTimeoutMs = 1000

	DefaultSimDevices = 3
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	m := &cfg.Master

	// A fully omitted rt block must not pin the loop to core 0.
	if m.RT == (RTConfig{}) {
		m.RT.CPU = -1
	}

	if m.CycleTimeUs == 0 {
		m.CycleTimeUs = DefaultCycleTimeUs
	}
	if m.StateTimeoutMs == 0 {
		m.StateTimeoutMs = DefaultStateTimeoutMs
	}
	if m.Ramp.Increment == 0 {
		m.Ramp.Increment = DefaultRampIncrement
	}
	if m.Monitor.IntervalUs == 0 {
		m.Monitor.IntervalUs = DefaultMonitorIntervalUs
	}
	if m.Monitor.CheckTimeoutMs == 0 {
		m.Monitor.CheckTimeoutMs = DefaultMonitorCheckTimeoutMs
	}
	if m.Simulate && m.SimDevices == 0 {
		m.SimDevices = DefaultSimDevices
	}
	if m.Gateway != nil && m.Gateway.TimeoutMs == 0 {
		m.Gateway.TimeoutMs = DefaultGatewayTimeoutMs
	}
}
