// Package downsample renders bounded-size chronological history views
// from the two ring stores.
//
// Short-horizon points are always emitted at full resolution. For
// windows larger than the short store's native coverage threshold, the
// long-horizon points are thinned with a fixed stride toward a target
// point count. The last long-horizon point before the short-horizon
// window is always kept so the seam between resolutions has no visible
// coverage gap.
package downsample

import (
	"math"
	"time"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// Reader is the store access the downsampler needs.
type Reader interface {
	ReadOldestFirst(maxN int) []record.Record
	Capacity() int
}

// Point is one rendered history sample.
type Point struct {
	Timestamp    uint32   `json:"ts"`
	LevelPct     float32  `json:"level"`
	VolumeL      float32  `json:"volume"`
	TemperatureC *float32 `json:"temp"`
}

// Series is a bounded chronological history view.
type Series struct {
	Hours       int     `json:"hours"`
	Downsampled bool    `json:"downsample"`
	Points      []Point `json:"points"`
}

// Sampler renders history series over the two stores.
type Sampler struct {
	hourly Reader
	recent Reader
	tuning config.TuningConfig

	// recentWindow is the time span covered by the short-horizon store.
	recentWindow time.Duration
}

// New creates a sampler over the two stores.
func New(hourly, recent Reader, tuning config.TuningConfig, recentWindow time.Duration) *Sampler {
	if recentWindow <= 0 {
		recentWindow = time.Hour
	}
	return &Sampler{hourly: hourly, recent: recent, tuning: tuning, recentWindow: recentWindow}
}

// Series renders the trailing window of the given hour count ending at
// now. The window is clamped to [1, hourly capacity] hours.
func (s *Sampler) Series(now time.Time, hours int) Series {
	if hours < 1 {
		hours = 24
	}
	if hours > s.hourly.Capacity() {
		hours = s.hourly.Capacity()
	}

	nowTS := now.Unix()
	since := nowTS - int64(hours)*3600
	recentSince := nowTS - int64(s.recentWindow/time.Second)

	hbuf := s.hourly.ReadOldestFirst(s.hourly.Capacity())
	rbuf := s.recent.ReadOldestFirst(s.recent.Capacity())

	inWindow := func(rec record.Record) bool {
		return !rec.Empty() && int64(rec.Timestamp) >= since
	}

	olderEligible := 0
	for _, rec := range hbuf {
		if inWindow(rec) && int64(rec.Timestamp) < recentSince {
			olderEligible++
		}
	}

	olderTarget := olderEligible
	if hours > s.tuning.DownsampleAfterHours {
		if hours > s.tuning.LargeWindowHours {
			olderTarget = s.tuning.TargetLarge
		} else {
			olderTarget = s.tuning.TargetModerate
		}
		if olderTarget < 1 {
			olderTarget = 1
		}
	}
	stride := 1
	if olderEligible > olderTarget {
		stride = (olderEligible + olderTarget - 1) / olderTarget
	}

	out := Series{Hours: hours, Downsampled: stride > 1}

	// Long-horizon part, thinned when a stride applies. The final
	// eligible point is the seam point and is always kept.
	olderSeen := 0
	for _, rec := range hbuf {
		if !inWindow(rec) || int64(rec.Timestamp) >= recentSince {
			continue
		}
		keep := true
		if stride > 1 {
			keep = olderSeen%stride == 0 || olderSeen == olderEligible-1
		}
		if keep {
			out.Points = append(out.Points, toPoint(rec))
		}
		olderSeen++
	}

	// Short-horizon part at full resolution.
	for _, rec := range rbuf {
		if inWindow(rec) {
			out.Points = append(out.Points, toPoint(rec))
		}
	}

	return out
}

func toPoint(rec record.Record) Point {
	return Point{
		Timestamp:    rec.Timestamp,
		LevelPct:     round1(rec.LevelPct),
		VolumeL:      round1(rec.VolumeL),
		TemperatureC: roundTemp(rec.TemperatureC),
	}
}

func round1(v float32) float32 {
	return float32(math.Round(float64(v)*10) / 10)
}

func roundTemp(t *float32) *float32 {
	if t == nil {
		return nil
	}
	r := round1(*t)
	return &r
}
