// internal/transform/builder.go
package transform

import (
	cfg "github.com/tamzrod/modbus-sniffer/internal/config"
)

// Build converts validated, normalized register configuration into a
// rule table. Assumes config has already passed Validate + Normalize.
func Build(regs []cfg.RegisterConfig) (*Table, error) {
	rules := make([]Rule, 0, len(regs))
	for _, r := range regs {
		rule := Rule{
			Name:      r.Name,
			Address:   r.Address,
			UnitID:    r.UnitID,
			Scale:     1.0,
			Precision: r.Precision,
			StateMap:  r.StateMap,
			Unit:      r.Unit,
		}
		if r.Scale != nil {
			rule.Scale = *r.Scale
		}
		if r.Offset != nil {
			rule.Offset = *r.Offset
		}
		rules = append(rules, rule)
	}
	return NewTable(rules)
}
