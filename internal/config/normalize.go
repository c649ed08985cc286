// internal/config/normalize.go
package config

// Defaults applied by Normalize. Listen and ceiling follow the original
// EW11-style gateway deployment this was built against.
const (
	DefaultListen        = "0.0.0.0:7777"
	DefaultBufferCeiling = 4096
	DefaultRequestTTLMs  = 5000
	DefaultBudgetMs      = 250
	DefaultFrameLog      = 50
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Sniffer

	if s.Source.Mode == "" {
		s.Source.Mode = ModeUDP
	}
	if s.Source.Mode == ModeUDP && s.Source.Listen == "" {
		s.Source.Listen = DefaultListen
	}

	if s.Engine.BufferCeiling == 0 {
		s.Engine.BufferCeiling = DefaultBufferCeiling
	}
	if s.Engine.RequestTTLMs == 0 {
		s.Engine.RequestTTLMs = DefaultRequestTTLMs
	}
	if s.Dispatch.BudgetMs == 0 {
		s.Dispatch.BudgetMs = DefaultBudgetMs
	}
	if s.Dashboard.FrameLog == 0 {
		s.Dashboard.FrameLog = DefaultFrameLog
	}

	for i := range s.Registers {
		r := &s.Registers[i]
		if r.Scale == nil {
			one := 1.0
			r.Scale = &one
		}
		if r.Offset == nil {
			zero := 0.0
			r.Offset = &zero
		}
	}
}
