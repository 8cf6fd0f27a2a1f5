package sampler

import (
	"context"
	"testing"
)

var _ Source = (*SimulatedSource)(nil)

func TestSimulatedSource_StartsNearStart(t *testing.T) {
	src := NewSimulatedSource()

	d, err := src.DistanceCm(context.Background())
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d < src.StartCm-src.NoiseCm || d > src.StartCm+src.NoiseCm {
		t.Errorf("first reading %v outside start %v +/- %v", d, src.StartCm, src.NoiseCm)
	}
}

func TestSimulatedSource_BoundedByEmpty(t *testing.T) {
	src := &SimulatedSource{StartCm: 99.9, EmptyCm: 100, DrainCmPerHour: 1000}

	for i := 0; i < 5; i++ {
		d, err := src.DistanceCm(context.Background())
		if err != nil {
			t.Fatalf("distance: %v", err)
		}
		if d > src.EmptyCm+src.NoiseCm {
			t.Errorf("reading %v past the empty bound %v", d, src.EmptyCm)
		}
	}
}

func TestSimulatedSource_Temperature(t *testing.T) {
	src := NewSimulatedSource()

	temp, ok := src.TemperatureC(context.Background())
	if !ok {
		t.Fatal("expected a temperature reading")
	}
	if temp < 10 || temp > 18 {
		t.Errorf("temperature %v outside the simulated daily range", temp)
	}
}
