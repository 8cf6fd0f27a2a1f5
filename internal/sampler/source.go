package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulatedSource is a Source for development and tests: a slowly
// draining tank with measurement noise and a daily temperature swing.
type SimulatedSource struct {
	mu sync.Mutex

	// StartCm is the initial reading; it drifts toward EmptyCm.
	StartCm float64

	// EmptyCm bounds the drift.
	EmptyCm float64

	// DrainCmPerHour is the drift speed.
	DrainCmPerHour float64

	// NoiseCm is the uniform measurement noise amplitude.
	NoiseCm float64

	current float64
	last    time.Time
}

// NewSimulatedSource returns a source with plausible barrel defaults.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{
		StartCm:        40,
		EmptyCm:        100,
		DrainCmPerHour: 0.5,
		NoiseCm:        0.3,
	}
}

// DistanceCm implements Source.
func (s *SimulatedSource) DistanceCm(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.last.IsZero() {
		s.current = s.StartCm
	} else {
		elapsed := now.Sub(s.last).Hours()
		s.current = math.Min(s.EmptyCm, s.current+s.DrainCmPerHour*elapsed)
	}
	s.last = now

	noise := (rand.Float64()*2 - 1) * s.NoiseCm
	return s.current + noise, nil
}

// TemperatureC implements Source.
func (s *SimulatedSource) TemperatureC(_ context.Context) (float64, bool) {
	// Daily sinusoid around 14°C.
	hour := float64(time.Now().Hour())
	return 14 + 4*math.Sin((hour-6)/24*2*math.Pi), true
}
