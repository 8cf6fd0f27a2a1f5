// Package trend derives rolling usage rates and an empty-tank ETA from
// the persisted sample history.
//
// The computation merges the long-horizon (hourly) and short-horizon
// (per-minute) stores into one chronological scan. Long-horizon points
// inside the short-horizon window are excluded: the minute data
// supersedes them and counting both would double usage.
package trend

import (
	"math"
	"sync"
	"time"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// Reader is the store access the engine needs. Both ring stores
// satisfy it.
type Reader interface {
	ReadNewestFirst(maxN int) []record.Record
	Capacity() int
}

// Stats holds derived usage statistics. Pointer fields are nil when
// the history is insufficient to determine them.
type Stats struct {
	Used24hL       *float64 `json:"used24,omitempty"`
	Used7dL        *float64 `json:"used7d,omitempty"`
	Rate24hLPerDay *float64 `json:"rate24,omitempty"`
	Rate7dLPerDay  *float64 `json:"rate7d,omitempty"`
	Span24hS       uint32   `json:"span24"`
	Span7dS        uint32   `json:"span7d"`
	DaysLeft       *float64 `json:"daysleft,omitempty"`
	ETAEmptyTS     uint32   `json:"eta_empty_ts,omitempty"`
}

// Engine computes Stats over the two stores and caches the result
// keyed by the timestamp it was computed for, so frequent status polls
// between samples do not rescan the files.
type Engine struct {
	mu     sync.Mutex
	hourly Reader
	recent Reader
	tuning config.TuningConfig

	// recentWindow is the time span covered by the short-horizon store.
	recentWindow time.Duration

	cacheForTS uint32
	cache      Stats
}

// New creates an engine over the two stores. recentWindow is the
// nominal coverage of the short-horizon store (capacity × sample
// interval).
func New(hourly, recent Reader, tuning config.TuningConfig, recentWindow time.Duration) *Engine {
	if recentWindow <= 0 {
		recentWindow = time.Hour
	}
	return &Engine{
		hourly:       hourly,
		recent:       recent,
		tuning:       tuning,
		recentWindow: recentWindow,
	}
}

// Invalidate drops the cached stats. Call after clearing or replacing
// a store.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cacheForTS = 0
	e.cache = Stats{}
	e.mu.Unlock()
}

// Compute returns the usage stats for the given current sample and
// total tank volume, recomputing only when the sample timestamp
// changed since the last call. All stats stay null while the tank
// geometry is unknown (totalL <= 0): there are no liters to rate.
func (e *Engine) Compute(current record.Record, totalL float64) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cacheForTS == current.Timestamp && current.Timestamp != 0 {
		return e.cache
	}
	e.cacheForTS = current.Timestamp

	st := e.compute(current, totalL)
	e.cache = st
	return st
}

func (e *Engine) compute(current record.Record, totalL float64) Stats {
	var st Stats
	if current.Timestamp == 0 || totalL <= 0 || current.VolumeL < 0 {
		return st
	}

	now := int64(current.Timestamp)
	since24 := now - 24*3600
	since7d := now - 7*24*3600
	recentSince := now - int64(e.recentWindow/time.Second)

	hbuf := e.hourly.ReadNewestFirst(e.hourly.Capacity())
	rbuf := e.recent.ReadNewestFirst(e.recent.Capacity())

	gapMin := int64(e.tuning.TrendGapMin / time.Second)
	gapMax := int64(e.tuning.TrendGapMax / time.Second)

	var (
		havePrev        bool
		prev            record.Record
		have24, have7   bool
		first24, last24 int64
		first7, last7   int64
		used24, used7   float64
	)

	feed := func(rec record.Record) {
		ts := int64(rec.Timestamp)
		if rec.Empty() || ts > now || ts < since7d {
			return
		}
		if !rec.HasVolume() {
			return
		}

		if ts >= since24 {
			if !have24 {
				first24 = ts
			}
			last24 = ts
			have24 = true
		}
		if !have7 {
			first7 = ts
		}
		last7 = ts
		have7 = true

		if havePrev && ts > int64(prev.Timestamp) && prev.HasVolume() {
			dt := ts - int64(prev.Timestamp)
			// Gaps outside the bounds are reboot or clock artifacts;
			// skip the pair but keep scanning from this point.
			if dt >= gapMin && dt <= gapMax {
				dv := float64(rec.VolumeL) - float64(prev.VolumeL)
				if dv < -e.tuning.UsageThresholdL {
					if int64(prev.Timestamp) >= since24 && ts >= since24 {
						used24 += -dv
					}
					used7 += -dv
				}
			}
		}

		prev = rec
		havePrev = true
	}

	// Hourly points older than the short-horizon window, chronological.
	for i := len(hbuf) - 1; i >= 0; i-- {
		if int64(hbuf[i].Timestamp) >= recentSince {
			continue
		}
		feed(hbuf[i])
	}
	// Short-horizon points, chronological.
	for i := len(rbuf) - 1; i >= 0; i-- {
		feed(rbuf[i])
	}

	if have24 && last24 > first24 {
		st.Used24hL = round1p(used24)
		st.Span24hS = uint32(last24 - first24)
		st.Rate24hLPerDay = round1p(used24 * 86400 / float64(st.Span24hS))
	}
	if have7 && last7 > first7 {
		st.Used7dL = round1p(used7)
		st.Span7dS = uint32(last7 - first7)
		st.Rate7dLPerDay = round1p(used7 * 86400 / float64(st.Span7dS))
	}

	// Prefer the 24h rate when its observation span is long enough to
	// trust; fall back to the 7d rate; otherwise leave the ETA unknown.
	var rate float64
	switch {
	case st.Rate24hLPerDay != nil && st.Span24hS >= 6*3600 && *st.Rate24hLPerDay > 0.2:
		rate = *st.Rate24hLPerDay
	case st.Rate7dLPerDay != nil && st.Span7dS >= 24*3600 && *st.Rate7dLPerDay > 0.2:
		rate = *st.Rate7dLPerDay
	default:
		return st
	}

	if current.VolumeL > 0 {
		days := float64(current.VolumeL) / rate
		st.DaysLeft = round1p(days)
		st.ETAEmptyTS = current.Timestamp + uint32(days*86400)
	}
	return st
}

// round1p rounds to one decimal and returns a pointer, the shape the
// nullable Stats fields want.
func round1p(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}
