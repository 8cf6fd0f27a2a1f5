// Package stats summarizes the level and temperature distribution over
// a trailing history window using DDSketch quantiles.
package stats

import (
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// relativeAccuracy is the DDSketch quantile error bound. 1% is plenty
// for a dashboard readout.
const relativeAccuracy = 0.01

// Reader is the store access the summarizer needs.
type Reader interface {
	ReadNewestFirst(maxN int) []record.Record
	Capacity() int
}

// Summary holds running statistics plus quantiles for one signal.
type Summary struct {
	Count int      `json:"count"`
	Min   float64  `json:"min"`
	Max   float64  `json:"max"`
	Mean  float64  `json:"mean"`
	P50   *float64 `json:"p50,omitempty"`
	P90   *float64 `json:"p90,omitempty"`
	P99   *float64 `json:"p99,omitempty"`
}

// Result is the distribution summary for a window.
type Result struct {
	Hours int `json:"hours"`

	Level Summary `json:"level"`

	// Temperature is nil when no record in the window carried a
	// temperature reading.
	Temperature *Summary `json:"temp,omitempty"`
}

// accumulator feeds a running min/max/sum plus a sketch.
type accumulator struct {
	count  int
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

func newAccumulator() *accumulator {
	a := &accumulator{min: math.MaxFloat64, max: -math.MaxFloat64}
	if sk, err := ddsketch.NewDefaultDDSketch(relativeAccuracy); err == nil {
		a.sketch = sk
	}
	return a
}

func (a *accumulator) add(v float64) {
	a.count++
	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	if a.sketch != nil {
		a.sketch.Add(v)
	}
}

func (a *accumulator) summary() Summary {
	if a.count == 0 {
		return Summary{}
	}
	s := Summary{
		Count: a.count,
		Min:   round1(a.min),
		Max:   round1(a.max),
		Mean:  round1(a.sum / float64(a.count)),
	}
	if a.sketch != nil {
		s.P50 = quantile(a.sketch, 0.50)
		s.P90 = quantile(a.sketch, 0.90)
		s.P99 = quantile(a.sketch, 0.99)
	}
	return s
}

// Compute summarizes both stores over the trailing window of the given
// hour count. Long-horizon points inside the short-horizon coverage
// are skipped so the per-minute data is not counted twice.
func Compute(hourly, recent Reader, now time.Time, hours int, recentWindow time.Duration) Result {
	if hours < 1 {
		hours = 24
	}
	if hours > hourly.Capacity() {
		hours = hourly.Capacity()
	}
	if recentWindow <= 0 {
		recentWindow = time.Hour
	}

	since := now.Unix() - int64(hours)*3600
	recentSince := now.Unix() - int64(recentWindow/time.Second)

	level := newAccumulator()
	temp := newAccumulator()

	feed := func(rec record.Record) {
		if rec.Empty() || int64(rec.Timestamp) < since {
			return
		}
		level.add(float64(rec.LevelPct))
		if rec.TemperatureC != nil {
			temp.add(float64(*rec.TemperatureC))
		}
	}

	for _, rec := range hourly.ReadNewestFirst(hourly.Capacity()) {
		if int64(rec.Timestamp) >= recentSince {
			continue
		}
		feed(rec)
	}
	for _, rec := range recent.ReadNewestFirst(recent.Capacity()) {
		feed(rec)
	}

	res := Result{Hours: hours, Level: level.summary()}
	if temp.count > 0 {
		ts := temp.summary()
		res.Temperature = &ts
	}
	return res
}

func quantile(sk *ddsketch.DDSketch, q float64) *float64 {
	v, err := sk.GetValueAtQuantile(q)
	if err != nil {
		return nil
	}
	r := round1(v)
	return &r
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
