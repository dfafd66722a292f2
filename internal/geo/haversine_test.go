package geo

import "testing"

func TestHaversineKmSamePointIsZero(t *testing.T) {
	d := HaversineKm(12.9716, 77.5946, 12.9716, 77.5946)
	if d != 0 {
		t.Fatalf("expected 0 distance for identical points, got %v", d)
	}
}

func TestHaversineKmKnownDistance(t *testing.T) {
	// Bengaluru to Mumbai, roughly 840km great-circle.
	d := HaversineKm(12.9716, 77.5946, 19.0760, 72.8777)
	if d < 800 || d > 900 {
		t.Fatalf("expected distance roughly 840km, got %v", d)
	}
}

func TestSpeedKmhNonPositiveElapsedReturnsZero(t *testing.T) {
	tests := []struct {
		name    string
		elapsed float64
	}{
		{"zero elapsed", 0},
		{"negative elapsed", -1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := SpeedKmh(12.9716, 77.5946, 19.0760, 72.8777, tc.elapsed)
			if got != 0 {
				t.Fatalf("expected 0 speed for non-positive elapsed hours, got %v", got)
			}
		})
	}
}

func TestSpeedKmhDividesDistanceByTime(t *testing.T) {
	dist := HaversineKm(12.9716, 77.5946, 19.0760, 72.8777)
	got := SpeedKmh(12.9716, 77.5946, 19.0760, 72.8777, 2)
	want := dist / 2
	if got != want {
		t.Fatalf("expected speed %v, got %v", want, got)
	}
}
