// internal/dashboard/dashboard.go
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/dispatch"
	"github.com/tamzrod/modbus-sniffer/internal/engine"
	"github.com/tamzrod/modbus-sniffer/internal/frame"
	"github.com/tamzrod/modbus-sniffer/internal/transform"
)

//go:embed templates/index.html
var indexFS embed.FS

// Diagnoser exposes the engine state shown on the diagnostics panel.
type Diagnoser interface {
	Diagnostics() engine.Diagnostics
}

// Downloader streams the raw packet log. Optional.
type Downloader interface {
	WriteTo(w io.Writer) (int64, error)
}

// Config holds the dashboard settings.
type Config struct {
	Listen   string
	FrameLog int
}

// Server serves the live dashboard: an HTML page, a websocket pushing
// decoded values as they arrive, JSON snapshots, engine diagnostics,
// Prometheus metrics and the packet log download. It plugs into the
// rest of the sniffer as a dispatcher subscriber and a frame sink.
type Server struct {
	cfg  Config
	log  zerolog.Logger
	disp *dispatch.Dispatcher
	diag Diagnoser
	rec  Downloader // may be nil

	frames *frameLog
	tmpl   *template.Template

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	addr    net.Addr
	ready   chan struct{}

	srv *http.Server
}

// New builds a Server. reg is the Prometheus registry backing /metrics;
// rec may be nil when packet recording is disabled.
func New(cfg Config, disp *dispatch.Dispatcher, diag Diagnoser, rec Downloader, reg *prometheus.Registry, log zerolog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(indexFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		log:    log,
		disp:   disp,
		diag:   diag,
		rec:    rec,
		frames: newFrameLog(cfg.FrameLog),
		tmpl:   tmpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]struct{}{},
		ready:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/values", s.handleValues)
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/download/packets.csv", s.handleDownload)
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{Handler: mux}
	return s, nil
}

// SetDiagnoser wires the diagnostics source after construction. The
// engine wants the dashboard as its frame sink, so the two are built
// in that order.
func (s *Server) SetDiagnoser(d Diagnoser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diag = d
}

// Ready is closed once the listener is bound; Addr is valid after that.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.log.Info().Str("listen", ln.Addr().String()).Msg("dashboard listening")

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutCtx)
		s.closeClients()
	}()

	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ---- SINKS ----

// ReceiveValue pushes one decoded value to every websocket client.
// Implements dispatch.ValueSink.
func (s *Server) ReceiveValue(v transform.Value) {
	msg, err := json.Marshal(wireEnvelope{Type: "value", Value: toWire(v)})
	if err != nil {
		return
	}
	s.broadcast(msg)
}

// HandleFrame logs one validated frame. Implements engine.FrameSink.
func (s *Server) HandleFrame(conn string, f frame.Frame, at time.Time) {
	s.frames.add(conn, f, at)
}

// ---- WEBSOCKET ----

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Prime the new client with the cached last values.
	for _, v := range s.disp.Snapshot() {
		msg, err := json.Marshal(wireEnvelope{Type: "value", Value: toWire(v)})
		if err != nil {
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			return
		}
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug().Int("clients", n).Msg("websocket client connected")

	// Drain reads so close frames are processed; drop on error.
	go func() {
		defer s.dropClient(c)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(msg []byte) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.dropClient(c)
		}
	}
}

func (s *Server) dropClient(c *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.Close()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clients = map[*websocket.Conn]struct{}{}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// ---- HTTP HANDLERS ----

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, nil); err != nil {
		s.log.Warn().Err(err).Msg("render index")
	}
}

func (s *Server) handleValues(w http.ResponseWriter, _ *http.Request) {
	vals := s.disp.Snapshot()
	out := make([]wireValue, 0, len(vals))
	for _, v := range vals {
		out = append(out, toWire(v))
	}
	writeJSON(w, out)
}

func (s *Server) handleFrames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.frames.entries())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	diag := s.diag
	s.mu.Unlock()
	if diag == nil {
		writeJSON(w, engine.Diagnostics{})
		return
	}
	writeJSON(w, diag.Diagnostics())
}

func (s *Server) handleDownload(w http.ResponseWriter, _ *http.Request) {
	if s.rec == nil {
		http.Error(w, "packet recording disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="packets.csv"`)
	if _, err := s.rec.WriteTo(w); err != nil {
		s.log.Warn().Err(err).Msg("packet log download failed")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ---- WIRE TYPES ----

type wireEnvelope struct {
	Type  string    `json:"type"`
	Value wireValue `json:"value"`
}

type wireValue struct {
	Rule           string    `json:"rule"`
	Unit           byte      `json:"unit"`
	Address        uint16    `json:"address"`
	Kind           string    `json:"kind"`
	Numeric        *float64  `json:"numeric,omitempty"`
	Label          string    `json:"label,omitempty"`
	DisplayUnit    string    `json:"display_unit,omitempty"`
	AddressUnknown bool      `json:"address_unknown,omitempty"`
	At             time.Time `json:"at"`
}

func toWire(v transform.Value) wireValue {
	out := wireValue{
		Rule:           v.Rule,
		Unit:           v.Unit,
		Address:        v.Address,
		DisplayUnit:    v.DisplayUnit,
		AddressUnknown: v.AddressUnknown,
		At:             v.At,
	}
	switch v.Kind {
	case transform.KindLabel:
		out.Kind = "label"
		out.Label = v.Label
	default:
		out.Kind = "numeric"
		n := v.Numeric
		out.Numeric = &n
	}
	return out
}
