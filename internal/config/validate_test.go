// internal/config/validate_test.go
package config

import "testing"

// helper to build a minimal valid config quickly
func base() *Config {
	return &Config{
		Sniffer: SnifferConfig{
			Source: SourceConfig{Mode: ModeUDP},
			Registers: []RegisterConfig{
				{Name: "temp", Address: 1},
			},
		},
	}
}

// ---- tests ----

func TestValidate_MinimalOK(t *testing.T) {
	if err := Validate(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TCPRequiresEndpoint(t *testing.T) {
	cfg := base()
	cfg.Sniffer.Source.Mode = ModeTCP
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for tcp without endpoint")
	}

	cfg.Sniffer.Source.Endpoint = "192.168.1.50:502"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := base()
	cfg.Sniffer.Source.Mode = "serial"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestValidate_RequiresRegisters(t *testing.T) {
	cfg := base()
	cfg.Sniffer.Registers = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing registers")
	}
}

func TestValidate_RegisterRules(t *testing.T) {
	zero := 0.0
	neg := -1
	big := uint8(248)

	cases := []struct {
		name string
		mut  func(*RegisterConfig)
	}{
		{"missing name", func(r *RegisterConfig) { r.Name = "" }},
		{"zero scale", func(r *RegisterConfig) { r.Scale = &zero }},
		{"negative precision", func(r *RegisterConfig) { r.Precision = &neg }},
		{"unit id out of range", func(r *RegisterConfig) { r.UnitID = &big }},
		{"empty state map", func(r *RegisterConfig) { r.StateMap = map[uint16]string{} }},
		{"empty label", func(r *RegisterConfig) { r.StateMap = map[uint16]string{1: ""} }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mut(&cfg.Sniffer.Registers[0])
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := base()
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)

	s := cfg.Sniffer
	if s.Source.Listen != DefaultListen {
		t.Fatalf("listen default not applied: %q", s.Source.Listen)
	}
	if s.Engine.BufferCeiling != DefaultBufferCeiling {
		t.Fatalf("ceiling default not applied: %d", s.Engine.BufferCeiling)
	}
	if s.Engine.RequestTTLMs != DefaultRequestTTLMs {
		t.Fatalf("ttl default not applied: %d", s.Engine.RequestTTLMs)
	}
	if s.Dispatch.BudgetMs != DefaultBudgetMs {
		t.Fatalf("budget default not applied: %d", s.Dispatch.BudgetMs)
	}

	r := s.Registers[0]
	if r.Scale == nil || *r.Scale != 1.0 {
		t.Fatalf("scale default not applied: %v", r.Scale)
	}
	if r.Offset == nil || *r.Offset != 0.0 {
		t.Fatalf("offset default not applied: %v", r.Offset)
	}
	if r.Precision != nil {
		t.Fatalf("precision must stay unset")
	}
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := base()
	cfg.Sniffer.Engine.BufferCeiling = 128
	half := 0.5
	cfg.Sniffer.Registers[0].Scale = &half

	Normalize(cfg)

	if cfg.Sniffer.Engine.BufferCeiling != 128 {
		t.Fatalf("explicit ceiling overwritten")
	}
	if *cfg.Sniffer.Registers[0].Scale != 0.5 {
		t.Fatalf("explicit scale overwritten")
	}
}
