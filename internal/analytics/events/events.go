// Package events detects discrete fill, draw, and leak episodes from
// the short-horizon sample history.
//
// Detection compares consecutive minute samples and classifies the
// volume delta against tuned thresholds. Temporally adjacent episodes
// of the same kind merge into one event so a ten-minute tap draw shows
// up as a single entry, not ten.
package events

import (
	"math"
	"time"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// Kind classifies an episode.
type Kind string

const (
	Fill Kind = "fill"
	Draw Kind = "draw"
	Leak Kind = "leak"
)

// Event is a detected, possibly merged, volume-change episode.
type Event struct {
	// LastTS is the timestamp of the newest sample in the episode.
	LastTS uint32 `json:"ts"`

	Kind Kind `json:"type"`

	// CumulativeDeltaL is the summed volume change over the episode,
	// signed (negative for draw/leak).
	CumulativeDeltaL float64 `json:"delta_l"`

	// PeakRateLPerH is the largest-magnitude instantaneous rate seen.
	PeakRateLPerH float64 `json:"rate_lph"`
}

// MaxEvents is the output buffer capacity; the oldest event is evicted
// when an episode beyond it appears.
const MaxEvents = 8

// Reader is the store access the detector needs.
type Reader interface {
	ReadNewestFirst(maxN int) []record.Record
	Capacity() int
}

// Detector scans the short-horizon store for episodes.
type Detector struct {
	recent Reader
	tuning config.TuningConfig
}

// New creates a detector over the short-horizon store.
func New(recent Reader, tuning config.TuningConfig) *Detector {
	return &Detector{recent: recent, tuning: tuning}
}

// Detect returns up to MaxEvents merged episodes, newest first.
func (d *Detector) Detect() []Event {
	rbuf := d.recent.ReadNewestFirst(d.recent.Capacity())

	gapMin := int64(d.tuning.EventGapMin / time.Second)
	gapMax := int64(d.tuning.EventGapMax / time.Second)
	mergeWin := int64(d.tuning.EventMergeWindow / time.Second)

	var evs []Event
	var prev record.Record
	havePrev := false

	// rbuf is newest first; walk it backward for chronological order.
	for i := len(rbuf) - 1; i >= 0; i-- {
		rec := rbuf[i]
		if rec.Empty() || !rec.HasVolume() {
			continue
		}
		if !havePrev {
			prev, havePrev = rec, true
			continue
		}
		if rec.Timestamp <= prev.Timestamp {
			prev = rec
			continue
		}

		dt := int64(rec.Timestamp) - int64(prev.Timestamp)
		if dt < gapMin || dt > gapMax {
			prev = rec
			continue
		}

		dv := float64(rec.VolumeL) - float64(prev.VolumeL)
		rate := dv * 3600 / float64(dt)

		var kind Kind
		switch {
		// Leak wins over draw: a fast large drop is a leak even though
		// it also clears the draw threshold.
		case dv <= -d.tuning.LeakThresholdL && rate <= -d.tuning.LeakRateLPerH:
			kind = Leak
		case dv >= d.tuning.FillThresholdL:
			kind = Fill
		case dv <= -d.tuning.DrawThresholdL:
			kind = Draw
		default:
			prev = rec
			continue
		}

		merged := false
		if n := len(evs); n > 0 {
			last := &evs[n-1]
			if last.Kind == kind && int64(rec.Timestamp)-int64(last.LastTS) <= mergeWin {
				last.LastTS = rec.Timestamp
				last.CumulativeDeltaL += dv
				if math.Abs(rate) > math.Abs(last.PeakRateLPerH) {
					last.PeakRateLPerH = rate
				}
				merged = true
			}
		}
		if !merged {
			ev := Event{LastTS: rec.Timestamp, Kind: kind, CumulativeDeltaL: dv, PeakRateLPerH: rate}
			if len(evs) < MaxEvents {
				evs = append(evs, ev)
			} else {
				copy(evs, evs[1:])
				evs[MaxEvents-1] = ev
			}
		}
		prev = rec
	}

	// Newest first, values rounded for presentation.
	out := make([]Event, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		ev := evs[i]
		ev.CumulativeDeltaL = round1(ev.CumulativeDeltaL)
		ev.PeakRateLPerH = round1(ev.PeakRateLPerH)
		out = append(out, ev)
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
