// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	s := &cfg.Sniffer

	// ------------------------------------------------------------
	// SOURCE
	// ------------------------------------------------------------

	switch s.Source.Mode {
	case "", ModeUDP:
		// Listen has a default; nothing mandatory here.
	case ModeTCP:
		if s.Source.Endpoint == "" {
			return fmt.Errorf("source: tcp mode requires endpoint")
		}
	default:
		return fmt.Errorf("source: unknown mode %q (want %q or %q)",
			s.Source.Mode, ModeUDP, ModeTCP)
	}

	// ------------------------------------------------------------
	// ENGINE / DISPATCH BOUNDS
	// ------------------------------------------------------------

	if s.Engine.BufferCeiling < 0 {
		return fmt.Errorf("engine: buffer_ceiling must be >= 0")
	}
	if s.Engine.RequestTTLMs < 0 {
		return fmt.Errorf("engine: request_ttl_ms must be >= 0")
	}
	if s.Dispatch.BudgetMs < 0 {
		return fmt.Errorf("dispatch: budget_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// REGISTER RULES
	// ------------------------------------------------------------

	if len(s.Registers) == 0 {
		return fmt.Errorf("registers: at least one register rule required")
	}

	for i, r := range s.Registers {
		if r.Name == "" {
			return fmt.Errorf("registers[%d]: name required", i)
		}
		if r.UnitID != nil && *r.UnitID > 247 {
			return fmt.Errorf("registers[%d] %q: unit_id %d out of range 0-247",
				i, r.Name, *r.UnitID)
		}
		if r.Scale != nil && *r.Scale == 0 {
			return fmt.Errorf("registers[%d] %q: scale must not be 0 (omit for 1.0)",
				i, r.Name)
		}
		if r.Precision != nil && *r.Precision < 0 {
			return fmt.Errorf("registers[%d] %q: precision must be >= 0", i, r.Name)
		}
		if r.StateMap != nil {
			if len(r.StateMap) == 0 {
				return fmt.Errorf("registers[%d] %q: state_map must not be empty",
					i, r.Name)
			}
			for raw, label := range r.StateMap {
				if label == "" {
					return fmt.Errorf("registers[%d] %q: state_map[%d] has empty label",
						i, r.Name, raw)
				}
			}
		}
	}

	return nil
}
