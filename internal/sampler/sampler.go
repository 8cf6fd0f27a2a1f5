// Package sampler runs the periodic measurement loop.
//
// Each tick reads the level source, derives level percent and volume
// from the tank geometry, appends the reading to the short-horizon
// store, and once per hour snapshots it into the long-horizon store.
// The actual ranging hardware lives behind the Source interface.
package sampler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/logging"
	"github.com/tanksense/tanksense/internal/metrics"
	"github.com/tanksense/tanksense/internal/mqtt"
	"github.com/tanksense/tanksense/internal/storage/record"
	"github.com/tanksense/tanksense/internal/storage/ring"
)

var log = logging.Component("sampler")

// Source produces raw sensor readings.
type Source interface {
	// DistanceCm returns the sensor-to-surface distance. An error means
	// the ranging attempt failed; the tick is skipped.
	DistanceCm(ctx context.Context) (float64, error)

	// TemperatureC returns the water temperature. ok is false when no
	// probe is attached or the conversion failed.
	TemperatureC(ctx context.Context) (temp float64, ok bool)
}

// Reading is one derived measurement.
type Reading struct {
	Timestamp    uint32   `json:"ts"`
	DistanceCm   float64  `json:"distance"`
	LevelPct     float64  `json:"level"`
	VolumeL      float64  `json:"volume"`
	FreeL        float64  `json:"free"`
	TotalL       float64  `json:"total"`
	TemperatureC *float64 `json:"temp"`
	Valid        bool     `json:"valid"`
}

// Sampler owns the measurement loop.
type Sampler struct {
	cfg    config.SamplerConfig
	source Source
	hourly *ring.Store
	recent *ring.Store
	pub    *mqtt.Client
	met    *metrics.Metrics

	mu     sync.Mutex
	latest Reading

	// emaDistance carries the smoothing state across ticks; negative
	// means unseeded.
	emaDistance float64
	lastHourly  time.Time
}

// New creates a sampler. pub and met may be nil.
func New(cfg config.SamplerConfig, source Source, hourly, recent *ring.Store, pub *mqtt.Client, met *metrics.Metrics) *Sampler {
	return &Sampler{
		cfg:         cfg,
		source:      source,
		hourly:      hourly,
		recent:      recent,
		pub:         pub,
		met:         met,
		emaDistance: -1,
	}
}

// Latest returns the most recent reading.
func (s *Sampler) Latest() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// RecentWindow returns the nominal time coverage of the short-horizon
// store under this sampler's cadence.
func (s *Sampler) RecentWindow() time.Duration {
	return time.Duration(s.recent.Capacity()) * s.cfg.Interval
}

// Run executes the loop until ctx is canceled. The first measurement
// happens immediately and is snapshotted into both stores, so a fresh
// install shows data without waiting an hour.
func (s *Sampler) Run(ctx context.Context) {
	log.Info("sampler started", "interval", s.cfg.Interval)

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sampler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// MeasureNow takes an immediate out-of-cycle measurement, as triggered
// from the API.
func (s *Sampler) MeasureNow(ctx context.Context) Reading {
	s.tick(ctx)
	return s.Latest()
}

func (s *Sampler) tick(ctx context.Context) {
	dist, err := s.source.DistanceCm(ctx)
	if err != nil {
		log.Warn("ranging failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.emaDistance < 0 || s.cfg.EMAAlpha >= 1 {
		s.emaDistance = dist
	} else {
		s.emaDistance = s.cfg.EMAAlpha*dist + (1-s.cfg.EMAAlpha)*s.emaDistance
	}
	smoothed := s.emaDistance
	s.mu.Unlock()

	r := s.derive(smoothed)
	if t, ok := s.source.TemperatureC(ctx); ok {
		r.TemperatureC = &t
	}
	r.Timestamp = uint32(time.Now().Unix())

	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()

	if s.met != nil {
		s.met.SamplesTaken.Inc()
		s.met.LevelPct.Set(r.LevelPct)
		s.met.VolumeL.Set(r.VolumeL)
	}

	rec := r.toRecord()
	s.append(s.recent, "recent", rec)

	// Check-and-set under the mutex: ticks run concurrently from the
	// loop and the API's MeasureNow, and only one of them may claim a
	// given hourly snapshot.
	// A zero lastHourly always qualifies, so the first tick after
	// startup snapshots immediately.
	now := time.Now()
	s.mu.Lock()
	writeHourly := now.Sub(s.lastHourly) >= time.Hour
	if writeHourly {
		s.lastHourly = now
	}
	s.mu.Unlock()
	if writeHourly {
		s.append(s.hourly, "hourly", rec)
	}

	if s.pub != nil {
		s.pub.Publish(mqtt.Status{
			LevelPct:   r.LevelPct,
			DistanceCm: r.DistanceCm,
			VolumeL:    r.VolumeL,
			FreeL:      r.FreeL,
			HasVolume:  r.TotalL > 0,
		})
	}

	log.Debug("sample", "distance_cm", r.DistanceCm, "level_pct", r.LevelPct, "volume_l", r.VolumeL)
}

func (s *Sampler) append(store *ring.Store, name string, rec record.Record) {
	if store.Append(rec) {
		if s.met != nil {
			s.met.AppendsTotal.WithLabelValues(name).Inc()
			s.met.StoreRecords.WithLabelValues(name).Set(float64(store.Count()))
		}
		return
	}
	if s.met != nil {
		s.met.AppendFailures.WithLabelValues(name).Inc()
	}
	log.Warn("append failed", "store", name)
}

// derive maps a distance reading onto level percent and volumes using
// the configured tank geometry.
func (s *Sampler) derive(distCm float64) Reading {
	r := Reading{DistanceCm: distCm, Valid: distCm > 0}

	rangeCm := s.cfg.EmptyDistanceCm - s.cfg.FullDistanceCm
	if !r.Valid || rangeCm <= 0 {
		return r
	}

	pct := (s.cfg.EmptyDistanceCm - distCm) / rangeCm * 100
	r.LevelPct = math.Min(100, math.Max(0, pct))

	if s.cfg.DiameterCm > 0 {
		radius := s.cfg.DiameterCm / 2
		r.TotalL = math.Pi * radius * radius * rangeCm / 1000 // cm³ → L
		r.VolumeL = r.TotalL * r.LevelPct / 100
		r.FreeL = r.TotalL - r.VolumeL
	}
	return r
}

func (r Reading) toRecord() record.Record {
	rec := record.Record{
		Timestamp: r.Timestamp,
		LevelPct:  float32(r.LevelPct),
		VolumeL:   float32(r.VolumeL),
	}
	if r.TemperatureC != nil {
		rec.TemperatureC = record.Temp(float32(*r.TemperatureC))
	}
	return rec
}

// ToRecord exposes the record conversion for the API layer.
func (r Reading) ToRecord() record.Record {
	return r.toRecord()
}
