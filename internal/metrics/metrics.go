// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// SamplesTaken counts completed measurement cycles.
	SamplesTaken prometheus.Counter

	// AppendsTotal counts ring store appends, labeled by store.
	AppendsTotal *prometheus.CounterVec

	// AppendFailures counts failed ring store appends, labeled by store.
	AppendFailures *prometheus.CounterVec

	// ImportsTotal counts binary import attempts, labeled by store and
	// result (accepted/rejected).
	ImportsTotal *prometheus.CounterVec

	// ReinitsTotal counts corruption-recovery reinitializations per store.
	ReinitsTotal *prometheus.CounterVec

	// StoreRecords tracks the current record count per store.
	StoreRecords *prometheus.GaugeVec

	// LevelPct and VolumeL mirror the latest reading.
	LevelPct prometheus.Gauge
	VolumeL  prometheus.Gauge
}

// New creates and registers the daemon metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SamplesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanksense_samples_total",
			Help: "Completed measurement cycles",
		}),
		AppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksense_store_appends_total",
			Help: "Ring store appends",
		}, []string{"store"}),
		AppendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksense_store_append_failures_total",
			Help: "Failed ring store appends",
		}, []string{"store"}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksense_store_imports_total",
			Help: "Binary import attempts by result",
		}, []string{"store", "result"}),
		ReinitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksense_store_reinits_total",
			Help: "Store reinitializations after structural corruption",
		}, []string{"store"}),
		StoreRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tanksense_store_records",
			Help: "Current record count per store",
		}, []string{"store"}),
		LevelPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tanksense_level_pct",
			Help: "Latest fill level in percent",
		}),
		VolumeL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tanksense_volume_liters",
			Help: "Latest volume in liters",
		}),
	}

	m.registry.MustRegister(
		m.SamplesTaken,
		m.AppendsTotal,
		m.AppendFailures,
		m.ImportsTotal,
		m.ReinitsTotal,
		m.StoreRecords,
		m.LevelPct,
		m.VolumeL,
	)
	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
