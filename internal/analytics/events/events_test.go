package events

import (
	"testing"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/storage/record"
)

type fakeReader struct {
	recs []record.Record // newest first
}

func (f *fakeReader) ReadNewestFirst(maxN int) []record.Record {
	if maxN > len(f.recs) {
		maxN = len(f.recs)
	}
	return f.recs[:maxN]
}

func (f *fakeReader) Capacity() int { return len(f.recs) }

// series builds a newest-first buffer from chronological (ts, volume)
// pairs.
func series(points [][2]float64) []record.Record {
	recs := make([]record.Record, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		recs = append(recs, record.Record{
			Timestamp: uint32(points[i][0]),
			LevelPct:  float32(points[i][1]) / 2,
			VolumeL:   float32(points[i][1]),
		})
	}
	return recs
}

func detect(t *testing.T, points [][2]float64, tuning config.TuningConfig) []Event {
	t.Helper()
	return New(&fakeReader{recs: series(points)}, tuning).Detect()
}

func TestDetect_LeakWinsOverDraw(t *testing.T) {
	base := 1_700_000_000.0
	// -5 L over 10 minutes is -30 L/h: clears both leak thresholds.
	evs := detect(t, [][2]float64{
		{base, 100},
		{base + 600, 95},
	}, config.DefaultConfig().Tuning)

	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Kind != Leak {
		t.Errorf("expected leak, got %s", evs[0].Kind)
	}
	if evs[0].CumulativeDeltaL != -5.0 {
		t.Errorf("expected delta=-5.0, got %v", evs[0].CumulativeDeltaL)
	}
	if evs[0].PeakRateLPerH != -30.0 {
		t.Errorf("expected rate=-30.0, got %v", evs[0].PeakRateLPerH)
	}
}

func TestDetect_DrawBelowLeakRate(t *testing.T) {
	tuning := config.DefaultConfig().Tuning
	// Raise the leak rate bar so a -7 L step reads as a draw.
	tuning.LeakRateLPerH = 100

	base := 1_700_000_000.0
	evs := detect(t, [][2]float64{
		{base, 100},
		{base + 600, 93},
	}, tuning)

	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Kind != Draw {
		t.Errorf("expected draw, got %s", evs[0].Kind)
	}
}

func TestDetect_FillMerge(t *testing.T) {
	base := 1_700_000_000.0
	// Two +7 L fills 12.5 minutes apart merge into one event; the
	// second, faster delta supplies the peak rate.
	evs := detect(t, [][2]float64{
		{base, 50},
		{base + 60, 57},  // +7 L over 60 s: 420 L/h
		{base + 780, 57}, // quiet
		{base + 810, 64}, // +7 L over 30 s: 840 L/h
	}, config.DefaultConfig().Tuning)

	if len(evs) != 1 {
		t.Fatalf("expected 1 merged event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Kind != Fill {
		t.Errorf("expected fill, got %s", ev.Kind)
	}
	if ev.CumulativeDeltaL != 14.0 {
		t.Errorf("expected delta=14.0, got %v", ev.CumulativeDeltaL)
	}
	if ev.PeakRateLPerH != 840.0 {
		t.Errorf("expected rate=840.0, got %v", ev.PeakRateLPerH)
	}
	if ev.LastTS != uint32(base+810) {
		t.Errorf("expected ts=%d, got %d", uint32(base+810), ev.LastTS)
	}
}

func TestDetect_NoMergeAcrossWindow(t *testing.T) {
	base := 1_700_000_000.0
	// Same kind, but 20 minutes apart: two separate events, newest
	// first in the output.
	evs := detect(t, [][2]float64{
		{base, 50},
		{base + 60, 57},
		{base + 1260, 57},
		{base + 1320, 64},
	}, config.DefaultConfig().Tuning)

	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].LastTS != uint32(base+1320) || evs[1].LastTS != uint32(base+60) {
		t.Errorf("expected newest first, got ts %d, %d", evs[0].LastTS, evs[1].LastTS)
	}
}

func TestDetect_DifferentKindsDoNotMerge(t *testing.T) {
	base := 1_700_000_000.0
	evs := detect(t, [][2]float64{
		{base, 50},
		{base + 60, 57},  // fill
		{base + 120, 50}, // -7 L over 60 s: leak at default thresholds
	}, config.DefaultConfig().Tuning)

	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Kind != Leak || evs[1].Kind != Fill {
		t.Errorf("expected leak then fill, got %s, %s", evs[0].Kind, evs[1].Kind)
	}
}

func TestDetect_NoiseBelowThresholds(t *testing.T) {
	base := 1_700_000_000.0
	evs := detect(t, [][2]float64{
		{base, 100},
		{base + 60, 99.8}, // -0.2 L transient
		{base + 120, 100},
	}, config.DefaultConfig().Tuning)

	if len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
}

func TestDetect_GapBounds(t *testing.T) {
	base := 1_700_000_000.0
	evs := detect(t, [][2]float64{
		{base, 100},
		{base + 10, 80},   // 10 s gap: below the minimum, skipped
		{base + 1500, 60}, // 24.8 min gap: above the maximum, skipped
	}, config.DefaultConfig().Tuning)

	if len(evs) != 0 {
		t.Fatalf("expected no events across bad gaps, got %d", len(evs))
	}
}

func TestDetect_BufferEviction(t *testing.T) {
	base := 1_700_000_000.0
	// Ten fills spaced well past the merge window: only the newest
	// eight survive.
	var points [][2]float64
	for i := 0; i < 10; i++ {
		ts := base + float64(i)*2000
		points = append(points, [2]float64{ts, 10}, [2]float64{ts + 60, 20})
	}
	evs := detect(t, points, config.DefaultConfig().Tuning)

	if len(evs) != MaxEvents {
		t.Fatalf("expected %d events, got %d", MaxEvents, len(evs))
	}
	if evs[0].LastTS != uint32(base+9*2000+60) {
		t.Errorf("expected newest ts=%d, got %d", uint32(base+9*2000+60), evs[0].LastTS)
	}
	if evs[len(evs)-1].LastTS != uint32(base+2*2000+60) {
		t.Errorf("expected oldest retained ts=%d, got %d", uint32(base+2*2000+60), evs[len(evs)-1].LastTS)
	}
}
