// internal/config/config.go
package config

type Config struct {
	Sniffer SnifferConfig `yaml:"sniffer"`
}

type SnifferConfig struct {
	Source    SourceConfig     `yaml:"source"`
	Engine    EngineConfig     `yaml:"engine"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Registers []RegisterConfig `yaml:"registers"`
	Dashboard DashboardConfig  `yaml:"dashboard"`
	Recorder  RecorderConfig   `yaml:"recorder"`
}

// ---- SOURCE ----

type SourceConfig struct {
	// Mode selects the byte feed: "udp" (listen for sniffed datagrams)
	// or "tcp" (connect to a gateway relaying raw RTU bytes).
	Mode string `yaml:"mode"`

	// Listen is the UDP bind address (udp mode).
	Listen string `yaml:"listen"`

	// Endpoint is the gateway address (tcp mode).
	Endpoint string `yaml:"endpoint"`
}

const (
	ModeUDP = "udp"
	ModeTCP = "tcp"
)

// ---- ENGINE ----

type EngineConfig struct {
	BufferCeiling int `yaml:"buffer_ceiling"`
	RequestTTLMs  int `yaml:"request_ttl_ms"`
}

// ---- DISPATCH ----

type DispatchConfig struct {
	BudgetMs int `yaml:"budget_ms"`
}

// ---- REGISTERS ----

type RegisterConfig struct {
	Name    string `yaml:"name"`
	Address uint16 `yaml:"address"`

	// UnitID restricts the rule to one slave (optional).
	UnitID *uint8 `yaml:"unit_id"`

	Scale     *float64 `yaml:"scale"`     // default 1.0
	Offset    *float64 `yaml:"offset"`    // default 0.0
	Precision *int     `yaml:"precision"` // default: no rounding

	// StateMap turns raw values into labels; a rule with a state map
	// never produces numbers.
	StateMap map[uint16]string `yaml:"state_map"`

	// Unit is the display unit, informational only.
	Unit string `yaml:"unit"`
}

// ---- DASHBOARD ----

type DashboardConfig struct {
	Listen string `yaml:"listen"`

	// FrameLog is how many recent frames the dashboard keeps in memory.
	FrameLog int `yaml:"frame_log"`
}

// ---- RECORDER ----

type RecorderConfig struct {
	// Path of the CSV packet log. Empty disables recording.
	Path string `yaml:"path"`
}
