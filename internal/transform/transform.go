// internal/transform/transform.go
package transform

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

// Rule maps one register address to a semantic value. Exactly one of
// the numeric fields (Scale/Offset/Precision) or StateMap drives the
// output: a rule with a StateMap produces labels, everything else
// produces numbers.
type Rule struct {
	Name    string
	Address uint16
	UnitID  *uint8 // nil matches any unit

	Scale     float64 // default 1.0
	Offset    float64 // default 0.0
	Precision *int    // nil = no rounding

	StateMap map[uint16]string // raw value -> label

	Unit string // display unit, informational only
}

// Kind tags a produced value.
type Kind int

const (
	KindNumeric Kind = iota
	KindLabel
)

// Value is the final observable produced from one raw register value
// under one rule.
type Value struct {
	Rule    string
	Unit    byte
	Address uint16

	Kind    Kind
	Numeric float64
	Label   string

	DisplayUnit string

	AddressUnknown bool
	At             time.Time
}

// Table is an immutable, validated set of rules indexed by address.
// Build a new one and swap it in to hot-reload configuration.
type Table struct {
	byAddr map[uint16][]Rule
}

// NewTable validates rules once, up front, and indexes them. Later
// lookups never re-validate.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{byAddr: make(map[uint16][]Rule, len(rules))}
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: name required", i)
		}
		if r.Scale == 0 {
			return nil, fmt.Errorf("rule %q: zero scale (leave unset for 1.0)", r.Name)
		}
		if r.Precision != nil && *r.Precision < 0 {
			return nil, fmt.Errorf("rule %q: negative precision", r.Name)
		}
		if r.StateMap != nil && len(r.StateMap) == 0 {
			return nil, fmt.Errorf("rule %q: empty state map", r.Name)
		}
		t.byAddr[r.Address] = append(t.byAddr[r.Address], r)
	}
	return t, nil
}

// Len returns the number of rules in the table.
func (t *Table) Len() int {
	n := 0
	for _, rs := range t.byAddr {
		n += len(rs)
	}
	return n
}

// Apply is a pure function from one register event to its semantic
// values. Unconfigured registers produce nothing; a state-map rule fed
// a raw value outside its map produces nothing; every matching rule
// produces an independent value.
func (t *Table) Apply(ev frame.RegisterEvent) []Value {
	if ev.AddressUnknown {
		// Placeholder addresses must not be matched against rules:
		// that would silently mislabel registers. The raw values are
		// still surfaced, marked, so consumers can choose what to do
		// with them.
		out := make([]Value, len(ev.Values))
		for i, raw := range ev.Values {
			out[i] = Value{
				Unit:           ev.Unit,
				Address:        ev.Addr + uint16(i),
				Kind:           KindNumeric,
				Numeric:        float64(raw),
				AddressUnknown: true,
				At:             ev.At,
			}
		}
		return out
	}

	var out []Value
	for i, raw := range ev.Values {
		addr := ev.Addr + uint16(i)
		for _, r := range t.byAddr[addr] {
			if r.UnitID != nil && *r.UnitID != ev.Unit {
				continue
			}
			v, ok := r.eval(raw)
			if !ok {
				continue
			}
			v.Unit = ev.Unit
			v.Address = addr
			v.At = ev.At
			out = append(out, v)
		}
	}
	return out
}

func (r Rule) eval(raw uint16) (Value, bool) {
	if r.StateMap != nil {
		label, ok := r.StateMap[raw]
		if !ok {
			// Undefined state codes are not actionable for a
			// label-only sensor.
			return Value{}, false
		}
		return Value{Rule: r.Name, Kind: KindLabel, Label: label, DisplayUnit: r.Unit}, true
	}

	n := float64(raw)*r.Scale + r.Offset
	if r.Precision != nil {
		pow := math.Pow(10, float64(*r.Precision))
		n = math.Round(n*pow) / pow
	}
	return Value{Rule: r.Name, Kind: KindNumeric, Numeric: n, DisplayUnit: r.Unit}, true
}

// Engine is the hot-swappable transform stage: it holds the current
// table and forwards produced values to the next stage. Swapping the
// table is atomic; an Apply in flight keeps using the table it started
// with.
type Engine struct {
	table atomic.Pointer[Table]
	emit  func(Value)
}

// NewEngine creates the transform stage. emit must be non-nil.
func NewEngine(t *Table, emit func(Value)) (*Engine, error) {
	if t == nil {
		return nil, errors.New("transform: table required")
	}
	if emit == nil {
		return nil, errors.New("transform: emit required")
	}
	e := &Engine{emit: emit}
	e.table.Store(t)
	return e, nil
}

// Swap atomically replaces the rule table.
func (e *Engine) Swap(t *Table) {
	if t != nil {
		e.table.Store(t)
	}
}

// HandleEvent implements the engine's event sink.
func (e *Engine) HandleEvent(ev frame.RegisterEvent) {
	for _, v := range e.table.Load().Apply(ev) {
		e.emit(v)
	}
}
