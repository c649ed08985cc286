// internal/engine/engine_test.go
package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/frame"
)

// ---- fake event sink ----

type fakeSink struct {
	events []frame.RegisterEvent
}

func (f *fakeSink) HandleEvent(ev frame.RegisterEvent) {
	f.events = append(f.events, ev)
}

func newTestEngine(cfg Config) (*Engine, *fakeSink) {
	sink := &fakeSink{}
	e := New(cfg, Deps{
		Logger: zerolog.Nop(),
		Events: sink,
	})
	return e, sink
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ---- tests ----

func TestIngest_SingleExchange(t *testing.T) {
	e, sink := newTestEngine(Config{})

	req := frame.BuildReadRequest(1, 0x0001, 2)
	resp := frame.BuildReadResponse(1, []uint16{195, 2110})

	stats := e.Ingest("c1", append(append([]byte(nil), req...), resp...), t0)
	if stats.Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", stats.Frames)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}

	ev := sink.events[0]
	if ev.Op != frame.OpRead || ev.Unit != 1 {
		t.Fatalf("bad event header: %+v", ev)
	}
	if ev.AddressUnknown {
		t.Fatalf("request/response pair must correlate")
	}
	if ev.Addr != 1 || len(ev.Values) != 2 || ev.Values[0] != 195 || ev.Values[1] != 2110 {
		t.Fatalf("bad event payload: addr=%d values=%v", ev.Addr, ev.Values)
	}
}

func TestIngest_ChunkingInvariance(t *testing.T) {
	req := frame.BuildReadRequest(1, 0x0030, 1)
	resp := frame.BuildReadResponse(1, []uint16{211})
	stream := append(append([]byte(nil), req...), resp...)
	stream = append(stream, 0xDE, 0xAD, 0xBE) // trailing noise

	// Feed the identical stream in every possible two-split and verify
	// the same events come out.
	for cut := 0; cut <= len(stream); cut++ {
		e, sink := newTestEngine(Config{})
		e.Ingest("c1", stream[:cut], t0)
		e.Ingest("c1", stream[cut:], t0.Add(time.Millisecond))

		if len(sink.events) != 1 {
			t.Fatalf("cut=%d: expected 1 event, got %d", cut, len(sink.events))
		}
		if sink.events[0].Addr != 0x0030 || sink.events[0].Values[0] != 211 {
			t.Fatalf("cut=%d: bad event %+v", cut, sink.events[0])
		}
	}

	// Byte-at-a-time for good measure.
	e, sink := newTestEngine(Config{})
	for _, b := range stream {
		e.Ingest("c1", []byte{b}, t0)
	}
	if len(sink.events) != 1 {
		t.Fatalf("byte-at-a-time: expected 1 event, got %d", len(sink.events))
	}
}

func TestIngest_GarbageBetweenFrames(t *testing.T) {
	e, sink := newTestEngine(Config{})

	f1 := frame.BuildWriteSingle(1, 0x003F, 21)
	f2 := frame.BuildWriteSingle(1, 0x003F, 2)

	stream := append(append([]byte(nil), f1...), 0x00, 0xFF, 0x13)
	stream = append(stream, f2...)

	e.Ingest("c1", stream, t0)
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if sink.events[0].Values[0] != 21 || sink.events[1].Values[0] != 2 {
		t.Fatalf("events out of order: %+v", sink.events)
	}
}

func TestIngest_CorruptFrameThenRecovery(t *testing.T) {
	e, sink := newTestEngine(Config{})

	bad := frame.BuildWriteSingle(1, 0x0005, 123)
	bad[4] ^= 0x01 // flip a payload bit, CRC now fails
	good := frame.BuildWriteSingle(1, 0x0005, 124)

	stats := e.Ingest("c1", append(append([]byte(nil), bad...), good...), t0)
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if sink.events[0].Values[0] != 124 {
		t.Fatalf("recovered wrong frame: %+v", sink.events[0])
	}
	if stats.Resyncs == 0 {
		t.Fatalf("corrupt frame must count resync slides")
	}
	if d := e.Diagnostics(); d.CRCErrors == 0 {
		t.Fatalf("expected crc error counter, got %+v", d)
	}
}

func TestIngest_UnmatchedResponse(t *testing.T) {
	e, sink := newTestEngine(Config{})

	e.Ingest("c1", frame.BuildReadResponse(1, []uint16{42}), t0)
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if !ev.AddressUnknown || ev.Addr != 0 {
		t.Fatalf("expected address-unknown marker: %+v", ev)
	}
	if d := e.Diagnostics(); d.UnknownAddress != 1 {
		t.Fatalf("expected unknown-address counter, got %+v", d)
	}
}

func TestIngest_RequestExpiry(t *testing.T) {
	e, sink := newTestEngine(Config{RequestTTL: 5 * time.Second})

	e.Ingest("c1", frame.BuildReadRequest(1, 0x0010, 1), t0)
	e.Ingest("c1", frame.BuildReadResponse(1, []uint16{7}), t0.Add(6*time.Second))

	if len(sink.events) != 1 || !sink.events[0].AddressUnknown {
		t.Fatalf("expired request must not correlate: %+v", sink.events)
	}
}

func TestIngest_MostRecentRequestWins(t *testing.T) {
	e, sink := newTestEngine(Config{})

	e.Ingest("c1", frame.BuildReadRequest(1, 0x0010, 1), t0)
	e.Ingest("c1", frame.BuildReadRequest(1, 0x0020, 1), t0)
	e.Ingest("c1", frame.BuildReadResponse(1, []uint16{7}), t0.Add(time.Second))

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if sink.events[0].Addr != 0x0020 {
		t.Fatalf("expected most recent request to win, got addr=%d", sink.events[0].Addr)
	}
}

func TestIngest_ConnectionsIndependent(t *testing.T) {
	e, sink := newTestEngine(Config{})

	// Request on c1 must not resolve a response on c2.
	e.Ingest("c1", frame.BuildReadRequest(1, 0x0010, 1), t0)
	e.Ingest("c2", frame.BuildReadResponse(1, []uint16{7}), t0)

	if len(sink.events) != 1 || !sink.events[0].AddressUnknown {
		t.Fatalf("cross-connection correlation must not happen: %+v", sink.events)
	}
}

func TestIngest_BufferCeiling(t *testing.T) {
	ceiling := 64
	e, _ := newTestEngine(Config{BufferCeiling: ceiling})

	// Noise that never validates but always leaves an incomplete
	// hypothesis at the head, so only the ceiling bounds it.
	noise := make([]byte, 16)
	noise[0], noise[1], noise[2] = 0x01, 0x03, 0xF8
	var sawDesync bool
	for i := 0; i < 50; i++ {
		stats := e.Ingest("c1", noise, t0)
		if stats.Desync {
			sawDesync = true
		}
		if n := len(e.conn("c1").buf); n > ceiling+frame.MaxSize {
			t.Fatalf("buffer grew past ceiling+frame: %d", n)
		}
	}
	if !sawDesync {
		t.Fatalf("expected a desync overflow on pure noise")
	}
	if d := e.Diagnostics(); d.Desyncs == 0 {
		t.Fatalf("desync counter not moved: %+v", d)
	}
}

func TestCloseConnection_DropsPartialFrame(t *testing.T) {
	e, sink := newTestEngine(Config{})

	full := frame.BuildWriteSingle(1, 0x0001, 1)
	e.Ingest("c1", full[:4], t0)
	e.CloseConnection("c1")
	e.Ingest("c1", full[4:], t0)

	if len(sink.events) != 0 {
		t.Fatalf("partial frame survived a reconnect: %+v", sink.events)
	}
}

func TestDiagnostics_FrameCount(t *testing.T) {
	e, _ := newTestEngine(Config{})
	e.Ingest("c1", frame.BuildWriteSingle(1, 1, 1), t0)
	e.Ingest("c2", frame.BuildWriteSingle(2, 1, 1), t0)

	d := e.Diagnostics()
	if d.Frames != 2 || d.Connections != 2 {
		t.Fatalf("unexpected diagnostics: %+v", d)
	}
}
