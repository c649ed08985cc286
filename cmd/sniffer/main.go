// cmd/sniffer/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-sniffer/internal/config"
	"github.com/tamzrod/modbus-sniffer/internal/dashboard"
	"github.com/tamzrod/modbus-sniffer/internal/dispatch"
	"github.com/tamzrod/modbus-sniffer/internal/engine"
	"github.com/tamzrod/modbus-sniffer/internal/feed"
	"github.com/tamzrod/modbus-sniffer/internal/recorder"
	"github.com/tamzrod/modbus-sniffer/internal/transform"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		logger.Fatal().Msg("usage: sniffer <config.yaml>")
	}
	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		logger.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)
	s := cfg.Sniffer

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Metrics
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --------------------
	// Recorder (optional)
	// --------------------

	var rec *recorder.Recorder
	if s.Recorder.Path != "" {
		rec, err = recorder.Open(s.Recorder.Path)
		if err != nil {
			logger.Fatal().Err(err).Msg("recorder open failed")
		}
		defer rec.Close()
		logger.Info().Str("path", rec.Path()).Msg("packet recording enabled")
	}

	// --------------------
	// Dispatch + transforms
	// --------------------

	disp := dispatch.New(dispatch.Config{
		Budget: time.Duration(s.Dispatch.BudgetMs) * time.Millisecond,
	}, logger.With().Str("component", "dispatch").Logger())

	table, err := transform.Build(s.Registers)
	if err != nil {
		logger.Fatal().Err(err).Msg("register table build failed")
	}
	xform, err := transform.NewEngine(table, disp.Dispatch)
	if err != nil {
		logger.Fatal().Err(err).Msg("transform engine build failed")
	}
	logger.Info().Int("rules", table.Len()).Msg("register table loaded")

	// --------------------
	// Dashboard (optional)
	// --------------------

	var frameSink engine.FrameSink
	var dash *dashboard.Server
	if s.Dashboard.Listen != "" {
		var dl dashboard.Downloader
		if rec != nil {
			dl = rec
		}
		dash, err = dashboard.New(dashboard.Config{
			Listen:   s.Dashboard.Listen,
			FrameLog: s.Dashboard.FrameLog,
		}, disp, nil, dl, reg, logger.With().Str("component", "dashboard").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("dashboard build failed")
		}
		disp.Subscribe(dash)
		frameSink = dash
	}

	// --------------------
	// Engine
	// --------------------

	eng := engine.New(engine.Config{
		BufferCeiling: s.Engine.BufferCeiling,
		RequestTTL:    time.Duration(s.Engine.RequestTTLMs) * time.Millisecond,
	}, engine.Deps{
		Logger:  logger.With().Str("component", "engine").Logger(),
		Metrics: engine.NewMetrics(reg),
		Events:  xform,
		Frames:  frameSink,
	})

	if dash != nil {
		dash.SetDiagnoser(eng)
		go func() {
			if err := dash.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("dashboard stopped")
				stop()
			}
		}()
	}

	// --------------------
	// Byte feed
	// --------------------

	var rawSink feed.RawSink
	if rec != nil {
		rawSink = rec
	}

	feedErr := make(chan error, 1)
	switch s.Source.Mode {
	case config.ModeTCP:
		f := feed.NewTCP(s.Source.Endpoint, eng, rawSink,
			logger.With().Str("component", "feed").Logger())
		go func() { feedErr <- f.Run(ctx) }()
	default:
		f := feed.NewUDP(s.Source.Listen, eng, rawSink,
			logger.With().Str("component", "feed").Logger())
		go func() { feedErr <- f.Run(ctx) }()
	}

	// --------------------
	// SIGHUP reloads the register table without dropping the feed
	// --------------------

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return

		case err := <-feedErr:
			if err != nil {
				logger.Fatal().Err(err).Msg("feed failed")
			}
			return

		case <-hup:
			next, err := config.Load(cfgPath)
			if err != nil {
				logger.Error().Err(err).Msg("reload: config load failed, keeping current table")
				continue
			}
			if err := config.Validate(next); err != nil {
				logger.Error().Err(err).Msg("reload: config invalid, keeping current table")
				continue
			}
			config.Normalize(next)
			table, err := transform.Build(next.Sniffer.Registers)
			if err != nil {
				logger.Error().Err(err).Msg("reload: register table build failed, keeping current table")
				continue
			}
			xform.Swap(table)
			logger.Info().Int("rules", table.Len()).Msg("register table reloaded")
		}
	}
}
