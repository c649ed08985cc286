// internal/engine/engine.go
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

// EventSink receives decoded register events. The engine calls it
// synchronously, in arrival order, from whatever goroutine feeds the
// connection.
type EventSink interface {
	HandleEvent(frame.RegisterEvent)
}

// FrameSink optionally receives every recovered frame (the dashboard
// uses this for its live frame log).
type FrameSink interface {
	HandleFrame(conn string, f frame.Frame, at time.Time)
}

// Config is the engine's runtime tuning.
type Config struct {
	// BufferCeiling bounds the unconsumed bytes kept per connection.
	// Exceeding it drops the oldest bytes and counts a desync overflow.
	BufferCeiling int

	// RequestTTL is how long an FC03 request stays correlatable with a
	// later response.
	RequestTTL time.Duration
}

// DefaultConfig mirrors the behavior of the original sniffer: a 4 KiB
// ceiling and the 5 second request expiry.
func DefaultConfig() Config {
	return Config{
		BufferCeiling: 4096,
		RequestTTL:    5 * time.Second,
	}
}

// Deps are the engine's collaborators.
type Deps struct {
	Logger  zerolog.Logger
	Metrics *Metrics  // nil disables Prometheus metrics
	Events  EventSink // required
	Frames  FrameSink // optional
}

// diagCounters is the lock-free diagnostics state shared by all
// connections.
type diagCounters struct {
	bytesIn     atomic.Uint64
	frames      atomic.Uint64
	crcErrors   atomic.Uint64
	structural  atomic.Uint64
	resyncs     atomic.Uint64
	desyncs     atomic.Uint64
	unknownAddr atomic.Uint64
}

// Diagnostics is a point-in-time snapshot of the engine counters.
// No logic, no memory of the past beyond current totals.
type Diagnostics struct {
	BytesIn          uint64 `json:"bytes_in"`
	Frames           uint64 `json:"frames"`
	CRCErrors        uint64 `json:"crc_errors"`
	StructuralErrors uint64 `json:"structural_errors"`
	Resyncs          uint64 `json:"resyncs"`
	Desyncs          uint64 `json:"desyncs"`
	UnknownAddress   uint64 `json:"unknown_address"`
	Connections      int    `json:"connections"`
}

// IngestStats is the per-call diagnostic return of Ingest.
type IngestStats struct {
	Frames  int
	Resyncs int
	Desync  bool
}

// Engine turns an unreliable byte stream into register events. Each
// connection owns an independent buffer and correlation context;
// ingestion must be sequential per connection but connections never
// contend with each other.
type Engine struct {
	cfg     Config
	log     zerolog.Logger
	metrics *Metrics
	events  EventSink
	frames  FrameSink

	diag diagCounters

	mu    sync.Mutex
	conns map[string]*conn
}

// New creates an engine. Deps.Events must be non-nil.
func New(cfg Config, deps Deps) *Engine {
	if cfg.BufferCeiling <= 0 {
		cfg.BufferCeiling = DefaultConfig().BufferCeiling
	}
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = DefaultConfig().RequestTTL
	}
	return &Engine{
		cfg:     cfg,
		log:     deps.Logger,
		metrics: deps.Metrics,
		events:  deps.Events,
		frames:  deps.Frames,
		conns:   make(map[string]*conn),
	}
}

// Ingest appends bytes from one connection and drains every frame that
// can now be recovered, dispatching the resulting register events
// before returning. It never blocks on I/O and never returns an error:
// corrupt input only moves counters.
func (e *Engine) Ingest(connID string, data []byte, at time.Time) IngestStats {
	var stats IngestStats
	if len(data) == 0 {
		return stats
	}

	c := e.conn(connID)

	e.metrics.addBytes(len(data))
	e.diag.bytesIn.Add(uint64(len(data)))

	resyncsBefore := e.diag.resyncs.Load()

	c.buf = append(c.buf, data...)
	frames := c.extract(e.metrics, &e.diag)

	if dropped := c.trim(e.cfg.BufferCeiling); dropped > 0 {
		e.metrics.incDesync()
		e.diag.desyncs.Add(1)
		stats.Desync = true
		e.log.Warn().
			Str("conn", connID).
			Int("dropped", dropped).
			Int("ceiling", e.cfg.BufferCeiling).
			Msg("stream buffer overflow, oldest bytes dropped")
	}

	for _, f := range frames {
		e.handleFrame(c, f, at)
	}

	stats.Frames = len(frames)
	stats.Resyncs = int(e.diag.resyncs.Load() - resyncsBefore)
	return stats
}

// CloseConnection discards all state for a connection. Partial frames
// do not carry over to a reconnect.
func (e *Engine) CloseConnection(connID string) {
	e.mu.Lock()
	delete(e.conns, connID)
	e.mu.Unlock()
}

// Diagnostics returns a snapshot of the engine counters.
func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	nconns := len(e.conns)
	e.mu.Unlock()

	return Diagnostics{
		BytesIn:          e.diag.bytesIn.Load(),
		Frames:           e.diag.frames.Load(),
		CRCErrors:        e.diag.crcErrors.Load(),
		StructuralErrors: e.diag.structural.Load(),
		Resyncs:          e.diag.resyncs.Load(),
		Desyncs:          e.diag.desyncs.Load(),
		UnknownAddress:   e.diag.unknownAddr.Load(),
		Connections:      nconns,
	}
}

func (e *Engine) conn(id string) *conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[id]
	if !ok {
		c = newConn(id)
		e.conns[id] = c
	}
	return c
}

// handleFrame routes one validated frame: requests feed correlation,
// everything carrying values becomes a RegisterEvent.
func (e *Engine) handleFrame(c *conn, f frame.Frame, at time.Time) {
	e.diag.frames.Add(1)
	e.metrics.incFrame(fnLabel(f.Function))

	if e.frames != nil {
		e.frames.HandleFrame(c.id, f, at)
	}

	switch f.Kind() {
	case frame.KindReadRequest:
		addr, qty := f.ReadRequest()
		c.recordRequest(f.Unit, addr, qty, at)

	case frame.KindReadResponse:
		values := f.ReadValues()
		addr, ok := c.correlate(f.Unit, at, e.cfg.RequestTTL)
		if !ok {
			e.metrics.incUnknownAddr()
			e.diag.unknownAddr.Add(1)
			e.log.Debug().
				Str("conn", c.id).
				Uint8("unit", f.Unit).
				Int("values", len(values)).
				Msg("read response without matching request")
		}
		e.events.HandleEvent(frame.RegisterEvent{
			Conn:           c.id,
			Unit:           f.Unit,
			Op:             frame.OpRead,
			Addr:           addr,
			Values:         values,
			AddressUnknown: !ok,
			At:             at,
		})

	case frame.KindWriteSingle:
		addr, value := f.WriteSingle()
		e.events.HandleEvent(frame.RegisterEvent{
			Conn:   c.id,
			Unit:   f.Unit,
			Op:     frame.OpWriteSingle,
			Addr:   addr,
			Values: []uint16{value},
			At:     at,
		})

	case frame.KindWriteMultiRequest:
		addr, values := f.WriteMulti()
		e.events.HandleEvent(frame.RegisterEvent{
			Conn:   c.id,
			Unit:   f.Unit,
			Op:     frame.OpWriteMulti,
			Addr:   addr,
			Values: values,
			At:     at,
		})

	case frame.KindWriteMultiEcho:
		// Confirmation only, no new values.
	}
}

func fnLabel(fn byte) string {
	switch fn {
	case frame.FuncReadHolding:
		return "read_holding"
	case frame.FuncWriteSingle:
		return "write_single"
	case frame.FuncWriteMulti:
		return "write_multi"
	default:
		return "other"
	}
}
