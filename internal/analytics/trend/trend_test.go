package trend

import (
	"testing"
	"time"

	"github.com/tanksense/tanksense/internal/config"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// fakeReader serves records newest-first from a slice, like the ring
// stores do.
type fakeReader struct {
	recs []record.Record
}

func (f *fakeReader) ReadNewestFirst(maxN int) []record.Record {
	if maxN > len(f.recs) {
		maxN = len(f.recs)
	}
	return f.recs[:maxN]
}

func (f *fakeReader) Capacity() int { return len(f.recs) }

// hourlySeries builds n hourly samples ending at now, newest-first,
// with volume decreasing by step each hour from start.
func hourlySeries(now uint32, n int, start, step float32) []record.Record {
	recs := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		ts := now - uint32(i)*3600
		vol := start - float32(n-1-i)*step
		recs = append(recs, record.Record{
			Timestamp: ts,
			LevelPct:  vol / 2,
			VolumeL:   vol,
		})
	}
	return recs
}

func newEngine(hourly, recent Reader) *Engine {
	return New(hourly, recent, config.DefaultConfig().Tuning, time.Hour)
}

func TestCompute_LinearDecline(t *testing.T) {
	now := uint32(1_700_000_000)
	// 25 samples over 24 hours, dropping 1 L/h: 100 down to 76.
	hourly := &fakeReader{recs: hourlySeries(now, 25, 100, 1)}
	e := newEngine(hourly, &fakeReader{})

	current := record.Record{Timestamp: now, LevelPct: 38, VolumeL: 76}
	st := e.Compute(current, 200)

	// The two newest hourly points fall inside the short-horizon window
	// and are excluded, leaving 23 points and 22 counted steps.
	if st.Used24hL == nil || *st.Used24hL != 22.0 {
		t.Fatalf("expected used24=22.0, got %v", st.Used24hL)
	}
	if st.Rate24hLPerDay == nil || *st.Rate24hLPerDay != 24.0 {
		t.Fatalf("expected rate24=24.0, got %v", st.Rate24hLPerDay)
	}
	if st.Span24hS != 22*3600 {
		t.Errorf("expected span24=%d, got %d", 22*3600, st.Span24hS)
	}
	if st.DaysLeft == nil || *st.DaysLeft != 3.2 {
		t.Fatalf("expected daysleft=3.2, got %v", st.DaysLeft)
	}
	// ETA derives from the unrounded days value.
	wantETA := int64(now) + int64(76.0/24.0*86400)
	if diff := int64(st.ETAEmptyTS) - wantETA; diff < -2 || diff > 2 {
		t.Errorf("expected eta near %d, got %d", wantETA, st.ETAEmptyTS)
	}
}

func TestCompute_NoiseBelowThresholdIgnored(t *testing.T) {
	now := uint32(1_700_000_000)
	// 0.2 L/h drops sit below the usage threshold.
	hourly := &fakeReader{recs: hourlySeries(now, 25, 100, 0.2)}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 48, VolumeL: 95.2}, 200)
	if st.Used24hL == nil || *st.Used24hL != 0 {
		t.Fatalf("expected used24=0, got %v", st.Used24hL)
	}
	if st.DaysLeft != nil {
		t.Errorf("expected no eta at zero rate, got %v", *st.DaysLeft)
	}
}

func TestCompute_RefillNotCounted(t *testing.T) {
	now := uint32(1_700_000_000)
	recs := []record.Record{
		{Timestamp: now - 2*3600, LevelPct: 50, VolumeL: 100}, // newest
		{Timestamp: now - 3*3600, LevelPct: 25, VolumeL: 50},  // refill between
		{Timestamp: now - 4*3600, LevelPct: 26, VolumeL: 52},
	}
	hourly := &fakeReader{recs: recs}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 50, VolumeL: 100}, 200)
	// Only the 52 -> 50 step counts; the +50 refill does not offset it.
	if st.Used24hL == nil || *st.Used24hL != 2.0 {
		t.Fatalf("expected used24=2.0, got %v", st.Used24hL)
	}
}

func TestCompute_GapPairsSkipped(t *testing.T) {
	now := uint32(1_700_000_000)
	recs := []record.Record{
		{Timestamp: now - 2*3600, LevelPct: 40, VolumeL: 80}, // newest
		// 10 h gap to the previous point: outside the trusted range.
		{Timestamp: now - 12*3600, LevelPct: 45, VolumeL: 90},
		{Timestamp: now - 13*3600, LevelPct: 46, VolumeL: 92},
	}
	hourly := &fakeReader{recs: recs}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 40, VolumeL: 80}, 200)
	// The 92 -> 90 step counts, the gapped 90 -> 80 pair does not.
	if st.Used24hL == nil || *st.Used24hL != 2.0 {
		t.Fatalf("expected used24=2.0, got %v", st.Used24hL)
	}
}

func TestCompute_HourlyInsideRecentWindowExcluded(t *testing.T) {
	now := uint32(1_700_000_000)
	// Both hourly points sit inside the one-hour short-horizon window,
	// so the big drop between them must not register as usage.
	recs := []record.Record{
		{Timestamp: now - 600, LevelPct: 25, VolumeL: 50},
		{Timestamp: now - 1800, LevelPct: 50, VolumeL: 100},
	}
	hourly := &fakeReader{recs: recs}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 25, VolumeL: 50}, 200)
	if st.Used24hL != nil {
		t.Errorf("expected no usage, got %v", *st.Used24hL)
	}
}

func TestCompute_SevenDayFallback(t *testing.T) {
	now := uint32(1_700_000_000)
	// A single pair 3 days apart: nothing inside the 24 h horizon, but
	// the 7 d horizon spans long enough to carry the ETA.
	recs := []record.Record{
		{Timestamp: now - 25*3600, LevelPct: 40, VolumeL: 80},
		{Timestamp: now - 25*3600 - 5*3600, LevelPct: 45, VolumeL: 90},
	}
	hourly := &fakeReader{recs: recs}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 40, VolumeL: 80}, 200)
	if st.Used24hL != nil {
		t.Errorf("expected no 24h usage, got %v", *st.Used24hL)
	}
	if st.Used7dL == nil || *st.Used7dL != 10.0 {
		t.Fatalf("expected used7d=10.0, got %v", st.Used7dL)
	}
	// Span is only 5 h, short of the 24 h the 7 d rate needs to be
	// trusted for the ETA.
	if st.DaysLeft != nil {
		t.Errorf("expected no eta on short 7d span, got %v", *st.DaysLeft)
	}
}

func TestCompute_CacheKeyedOnTimestamp(t *testing.T) {
	now := uint32(1_700_000_000)
	hourly := &fakeReader{recs: hourlySeries(now, 25, 100, 1)}
	e := newEngine(hourly, &fakeReader{})

	current := record.Record{Timestamp: now, LevelPct: 38, VolumeL: 76}
	first := e.Compute(current, 200)

	// Mutating the underlying data must not change the cached answer.
	hourly.recs = nil
	second := e.Compute(current, 200)
	if second.Used24hL == nil || *second.Used24hL != *first.Used24hL {
		t.Fatalf("expected cached stats, got %v", second.Used24hL)
	}

	// A new timestamp forces a rescan.
	third := e.Compute(record.Record{Timestamp: now + 60, LevelPct: 38, VolumeL: 76}, 200)
	if third.Used24hL != nil {
		t.Errorf("expected recompute over empty store, got %v", *third.Used24hL)
	}
}

func TestCompute_InvalidateDropsCache(t *testing.T) {
	now := uint32(1_700_000_000)
	hourly := &fakeReader{recs: hourlySeries(now, 25, 100, 1)}
	e := newEngine(hourly, &fakeReader{})

	current := record.Record{Timestamp: now, LevelPct: 38, VolumeL: 76}
	if st := e.Compute(current, 200); st.Used24hL == nil {
		t.Fatal("expected usage before invalidate")
	}

	hourly.recs = nil
	e.Invalidate()

	if st := e.Compute(current, 200); st.Used24hL != nil {
		t.Errorf("expected recompute after invalidate, got %v", *st.Used24hL)
	}
}

func TestCompute_UnknownGeometryStaysNull(t *testing.T) {
	now := uint32(1_700_000_000)
	// Plenty of declining history, but no tank geometry: every stat
	// must stay null, not read as zero usage.
	hourly := &fakeReader{recs: hourlySeries(now, 25, 100, 1)}
	e := newEngine(hourly, &fakeReader{})

	st := e.Compute(record.Record{Timestamp: now, LevelPct: 38, VolumeL: 76}, 0)
	if st.Used24hL != nil || st.Rate24hLPerDay != nil {
		t.Errorf("expected null 24h stats without geometry, got %v/%v", st.Used24hL, st.Rate24hLPerDay)
	}
	if st.Used7dL != nil || st.DaysLeft != nil {
		t.Errorf("expected null 7d stats and eta, got %v/%v", st.Used7dL, st.DaysLeft)
	}
	if st.Span24hS != 0 || st.Span7dS != 0 {
		t.Errorf("expected zero spans, got %d/%d", st.Span24hS, st.Span7dS)
	}
}

func TestCompute_ZeroTimestamp(t *testing.T) {
	e := newEngine(&fakeReader{}, &fakeReader{})
	st := e.Compute(record.Record{}, 200)
	if st.Used24hL != nil || st.DaysLeft != nil {
		t.Error("expected empty stats for zero sample")
	}
}
