// internal/dashboard/dashboard_test.go
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/dispatch"
	"github.com/tamzrod/modbus-sniffer/internal/engine"
	"github.com/tamzrod/modbus-sniffer/internal/frame"
	"github.com/tamzrod/modbus-sniffer/internal/transform"
)

type fakeDiag struct{ d engine.Diagnostics }

func (f fakeDiag) Diagnostics() engine.Diagnostics { return f.d }

type fakeLog struct{ content string }

func (f fakeLog) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.content)
	return int64(n), err
}

func startServer(t *testing.T, disp *dispatch.Dispatcher, rec Downloader) (*Server, string) {
	t.Helper()
	diag := fakeDiag{d: engine.Diagnostics{Frames: 7, CRCErrors: 1}}
	srv, err := New(Config{Listen: "127.0.0.1:0", FrameLog: 4}, disp, diag, rec, prometheus.NewRegistry(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not bind")
	}
	return srv, srv.Addr().String()
}

func numericValue(rule string, unit byte, addr uint16, n float64) transform.Value {
	return transform.Value{
		Rule:    rule,
		Unit:    unit,
		Address: addr,
		Kind:    transform.KindNumeric,
		Numeric: n,
		At:      time.Now(),
	}
}

func TestIndexAndAPIs(t *testing.T) {
	disp := dispatch.New(dispatch.Config{}, zerolog.Nop())
	disp.Dispatch(numericValue("temp_boiler", 1, 187, 19.5))

	_, addr := startServer(t, disp, fakeLog{content: "timestamp,connection,payload_hex\n"})

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Modbus Sniffer") {
		t.Fatalf("index = %d %q", resp.StatusCode, body[:60])
	}

	resp, err = http.Get("http://" + addr + "/api/values")
	if err != nil {
		t.Fatalf("get values: %v", err)
	}
	var vals []wireValue
	if err := json.NewDecoder(resp.Body).Decode(&vals); err != nil {
		t.Fatalf("decode values: %v", err)
	}
	resp.Body.Close()
	if len(vals) != 1 || vals[0].Rule != "temp_boiler" || vals[0].Numeric == nil || *vals[0].Numeric != 19.5 {
		t.Fatalf("unexpected values %+v", vals)
	}

	resp, err = http.Get("http://" + addr + "/api/diagnostics")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	var diag engine.Diagnostics
	if err := json.NewDecoder(resp.Body).Decode(&diag); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	resp.Body.Close()
	if diag.Frames != 7 || diag.CRCErrors != 1 {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}

	resp, err = http.Get("http://" + addr + "/download/packets.csv")
	if err != nil {
		t.Fatalf("get download: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q", got)
	}
	if !strings.HasPrefix(string(body), "timestamp,") {
		t.Fatalf("unexpected download %q", body)
	}

	resp, err = http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
}

func TestFrameLogRingNewestFirst(t *testing.T) {
	disp := dispatch.New(dispatch.Config{}, zerolog.Nop())
	srv, addr := startServer(t, disp, nil)

	at := time.Now()
	for i := 0; i < 6; i++ {
		adu := frame.BuildWriteSingle(1, uint16(i), 42)
		f, err := frame.Validate(adu)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		srv.HandleFrame("udp-test", f, at.Add(time.Duration(i)*time.Second))
	}

	resp, err := http.Get("http://" + addr + "/api/frames")
	if err != nil {
		t.Fatalf("get frames: %v", err)
	}
	var entries []FrameEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode frames: %v", err)
	}
	resp.Body.Close()

	// Depth 4 ring keeps the last 4 writes, newest first.
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	for i, e := range entries {
		if e.Unit != 1 || e.Function != frame.FuncWriteSingle {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}
	if !entries[0].At.After(entries[3].At) {
		t.Fatalf("entries not newest first: %v then %v", entries[0].At, entries[3].At)
	}
}

func TestWebsocketPrimesAndStreams(t *testing.T) {
	disp := dispatch.New(dispatch.Config{}, zerolog.Nop())
	disp.Dispatch(numericValue("cached", 1, 10, 1.0))

	srv, addr := startServer(t, disp, nil)
	sub := disp.Subscribe(srv)
	defer disp.Unsubscribe(sub)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close()

	// The cached value arrives first.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wireEnvelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read primed: %v", err)
	}
	if env.Type != "value" || env.Value.Rule != "cached" {
		t.Fatalf("unexpected primed message %+v", env)
	}

	// Live dispatches stream through.
	disp.Dispatch(numericValue("live", 1, 11, 2.5))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if env.Value.Rule != "live" || env.Value.Numeric == nil || *env.Value.Numeric != 2.5 {
		t.Fatalf("unexpected live message %+v", env)
	}
}

func TestDownloadDisabled(t *testing.T) {
	disp := dispatch.New(dispatch.Config{}, zerolog.Nop())
	_, addr := startServer(t, disp, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/download/packets.csv", addr))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
