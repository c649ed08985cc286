// internal/dispatch/dispatch.go
package dispatch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/transform"
)

// ValueSink is the one capability a subscriber needs: receive a value.
// No lifecycle, no acknowledgement, no interpretation.
type ValueSink interface {
	ReceiveValue(transform.Value)
}

// Subscription is the detach token returned by Subscribe.
type Subscription struct {
	id uint64
}

// Config tunes the dispatcher.
type Config struct {
	// Budget bounds how long one subscriber may hold up a dispatch.
	// A subscriber that overruns it is detached with a warning so the
	// remaining subscribers keep making progress.
	Budget time.Duration
}

// DefaultBudget is deliberately generous for an event rate of tens of
// frames per second.
const DefaultBudget = 250 * time.Millisecond

type subscriber struct {
	id   uint64
	sink ValueSink
}

// Dispatcher fans out semantic values to subscribers in registration
// order and keeps the last value seen per (unit, register) so late
// joiners can prime themselves without waiting for traffic.
type Dispatcher struct {
	log    zerolog.Logger
	budget time.Duration

	mu     sync.Mutex
	subs   []subscriber
	nextID uint64

	cache *lastValues
}

// New creates a dispatcher.
func New(cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Dispatcher{
		log:    log,
		budget: cfg.Budget,
		cache:  newLastValues(),
	}
}

// Subscribe registers a sink. Notification order is registration order.
func (d *Dispatcher) Subscribe(s ValueSink) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs = append(d.subs, subscriber{id: d.nextID, sink: s})
	return Subscription{id: d.nextID}
}

// Unsubscribe detaches a previously registered sink. Unknown tokens are
// ignored.
func (d *Dispatcher) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(sub.id)
}

func (d *Dispatcher) removeLocked(id uint64) {
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// Dispatch updates the cache and notifies every subscriber. It is safe
// against concurrent Subscribe/Unsubscribe; values marked
// address-unknown are delivered but never cached, so placeholder
// addresses cannot shadow real registers.
func (d *Dispatcher) Dispatch(v transform.Value) {
	if !v.AddressUnknown {
		d.cache.put(v)
	}

	d.mu.Lock()
	subs := append([]subscriber(nil), d.subs...)
	d.mu.Unlock()

	for _, s := range subs {
		if d.deliver(s, v) {
			continue
		}
		d.mu.Lock()
		d.removeLocked(s.id)
		d.mu.Unlock()
		d.log.Warn().
			Uint64("subscriber", s.id).
			Dur("budget", d.budget).
			Msg("subscriber exceeded dispatch budget, detached")
	}
}

// deliver runs one notification under the time budget. Reports false
// when the subscriber overran it.
func (d *Dispatcher) deliver(s subscriber, v transform.Value) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sink.ReceiveValue(v)
	}()

	timer := time.NewTimer(d.budget)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Lookup returns the last value seen for one (unit, register).
func (d *Dispatcher) Lookup(unit byte, addr uint16) (transform.Value, bool) {
	return d.cache.get(unit, addr)
}

// Snapshot returns all cached values ordered by (unit, register), for
// late-joining consumers that need an initial state.
func (d *Dispatcher) Snapshot() []transform.Value {
	return d.cache.snapshot()
}

// Subscribers returns the current subscriber count (diagnostics only).
func (d *Dispatcher) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
