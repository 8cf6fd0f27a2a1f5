// Package server provides the HTTP API for status, history, events,
// exports, and binary backup/restore of the ring stores.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/tanksense/tanksense/internal/analytics/downsample"
	"github.com/tanksense/tanksense/internal/analytics/events"
	"github.com/tanksense/tanksense/internal/analytics/trend"
	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/logging"
	"github.com/tanksense/tanksense/internal/metrics"
	"github.com/tanksense/tanksense/internal/mqtt"
	"github.com/tanksense/tanksense/internal/sampler"
	"github.com/tanksense/tanksense/internal/storage/ring"
)

var log = logging.Component("server")

// Config wires the server's collaborators.
type Config struct {
	HTTP config.HTTPConfig

	Hourly *ring.Store
	Recent *ring.Store

	Trend       *trend.Engine
	Events      *events.Detector
	Downsampler *downsample.Sampler

	Sampler *sampler.Sampler
	MQTT    *mqtt.Client
	Metrics *metrics.Metrics

	// RecentWindow is the short-horizon store's nominal coverage,
	// used by the stats endpoint.
	RecentWindow time.Duration

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg  Config
	http *http.Server

	startTime time.Time
}

// New creates the server and installs all routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleClearHistory).Methods(http.MethodDelete)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExportCSV).Methods(http.MethodGet)
	api.HandleFunc("/export.parquet", s.handleExportParquet).Methods(http.MethodGet)
	api.HandleFunc("/measure", s.handleMeasure).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	// Bit-exact backup/restore for the two ring files.
	api.HandleFunc("/history.bin", s.storeDownloadHandler(cfg.Hourly, "history-hourly.bin")).Methods(http.MethodGet)
	api.HandleFunc("/history.bin", s.storeUploadHandler(cfg.Hourly, "hourly")).Methods(http.MethodPost)
	api.HandleFunc("/history_recent.bin", s.storeDownloadHandler(cfg.Recent, "history-recent.bin")).Methods(http.MethodGet)
	api.HandleFunc("/history_recent.bin", s.storeUploadHandler(cfg.Recent, "recent")).Methods(http.MethodPost)

	if cfg.HTTP.Metrics && cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	s.http = &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
