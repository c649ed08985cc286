// internal/dispatch/cache.go
package dispatch

import (
	"sort"
	"sync"

	"github.com/tamzrod/modbus-sniffer/internal/transform"
)

type cacheKey struct {
	unit byte
	addr uint16
}

// lastValues is the (unit, register) -> most recent value map. It is
// shared by all connections, so it carries its own lock.
type lastValues struct {
	mu sync.RWMutex
	m  map[cacheKey]transform.Value
}

func newLastValues() *lastValues {
	return &lastValues{m: make(map[cacheKey]transform.Value)}
}

func (c *lastValues) put(v transform.Value) {
	c.mu.Lock()
	c.m[cacheKey{unit: v.Unit, addr: v.Address}] = v
	c.mu.Unlock()
}

func (c *lastValues) get(unit byte, addr uint16) (transform.Value, bool) {
	c.mu.RLock()
	v, ok := c.m[cacheKey{unit: unit, addr: addr}]
	c.mu.RUnlock()
	return v, ok
}

func (c *lastValues) snapshot() []transform.Value {
	c.mu.RLock()
	out := make([]transform.Value, 0, len(c.m))
	for _, v := range c.m {
		out = append(out, v)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}
