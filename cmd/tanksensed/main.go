// tanksensed is the tank water-level telemetry daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tanksense/tanksense/internal/analytics/downsample"
	"github.com/tanksense/tanksense/internal/analytics/events"
	"github.com/tanksense/tanksense/internal/analytics/trend"
	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/logging"
	"github.com/tanksense/tanksense/internal/metrics"
	"github.com/tanksense/tanksense/internal/mqtt"
	"github.com/tanksense/tanksense/internal/sampler"
	"github.com/tanksense/tanksense/internal/server"
	"github.com/tanksense/tanksense/internal/storage/ring"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	jsonLogs := flag.Bool("json-logs", false, "output logs as JSON")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *jsonLogs)
	log := logging.Component("main")
	log.Info("tanksensed starting", "version", Version)

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("no config file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Error("ensure directories", "error", err)
		os.Exit(1)
	}

	// Ring stores
	hourly, err := ring.Open(cfg.HourlyPath(), cfg.Stores.HourlyCapacity)
	if err != nil {
		log.Error("open hourly store", "error", err)
		os.Exit(1)
	}
	recent, err := ring.Open(cfg.RecentPath(), cfg.Stores.RecentCapacity)
	if err != nil {
		log.Error("open recent store", "error", err)
		os.Exit(1)
	}

	// MQTT
	pub := mqtt.NewClient(cfg.MQTT)
	if err := pub.Connect(); err != nil {
		// The broker may simply not be up yet; auto-reconnect covers it.
		log.Warn("mqtt connect", "error", err)
	}

	// Metrics
	met := metrics.New()
	hourly.OnReinit(func() { met.ReinitsTotal.WithLabelValues("hourly").Inc() })
	recent.OnReinit(func() { met.ReinitsTotal.WithLabelValues("recent").Inc() })

	// Sampler and analytics
	smp := sampler.New(cfg.Sampler, sampler.NewSimulatedSource(), hourly, recent, pub, met)
	recentWindow := smp.RecentWindow()

	trendEngine := trend.New(hourly, recent, cfg.Tuning, recentWindow)
	detector := events.New(recent, cfg.Tuning)
	history := downsample.New(hourly, recent, cfg.Tuning, recentWindow)

	// HTTP server
	srv := server.New(server.Config{
		HTTP:         cfg.HTTP,
		Hourly:       hourly,
		Recent:       recent,
		Trend:        trendEngine,
		Events:       detector,
		Downsampler:  history,
		Sampler:      smp,
		MQTT:         pub,
		Metrics:      met,
		RecentWindow: recentWindow,
		Version:      Version,
	})

	// Signal handling and graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		smp.Run(ctx)
	}()

	if err := srv.Run(ctx); err != nil {
		log.Error("server error", "error", err)
	}

	wg.Wait()
	pub.Disconnect()
	log.Info("stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
