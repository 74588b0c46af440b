// internal/config/config.go
package config

type Config struct {
	Master MasterConfig `yaml:"master"`
}

type MasterConfig struct {
	Interface string `yaml:"interface"`
	Simulate  bool   `yaml:"simulate"`

	// SimDevices is the drive count for simulation mode.
	SimDevices int `yaml:"sim_devices"`

	CycleTimeUs    int `yaml:"cycle_time_us"`
	StateTimeoutMs int `yaml:"state_timeout_ms"`

	RT      RTConfig       `yaml:"rt"`
	Ramp    RampConfig     `yaml:"ramp"`
	Monitor MonitorConfig  `yaml:"monitor"`
	Gateway *GatewayConfig `yaml:"gateway"`
	Command *CommandConfig `yaml:"command"`
}

// ---- REAL-TIME SETUP ----

type RTConfig struct {
	Priority int `yaml:"priority"`

	// CPU pins the cyclic loop to one core; -1 disables pinning. An
	// omitted rt block disables pinning entirely.
	CPU        int  `yaml:"cpu"`
	LockMemory bool `yaml:"lock_memory"`
}

// ---- DRIVE ENABLE RAMP ----

type RampConfig struct {
	// Increment is the per-cycle target-position step applied once the
	// enable sequence has completed.
	Increment int32 `yaml:"increment"`
}

// ---- HEALTH MONITOR ----

type MonitorConfig struct {
	IntervalUs     int `yaml:"interval_us"`
	CheckTimeoutMs int `yaml:"check_timeout_ms"`
}

// ---- STATUS GATEWAY (OPT-IN) ----

type GatewayConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	BaseSlot  uint16 `yaml:"base_slot"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- COMMAND FEED (OPT-IN) ----

type CommandConfig struct {
	Listen string `yaml:"listen"`
}
