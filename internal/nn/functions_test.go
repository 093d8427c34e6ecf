package nn

import "testing"

func TestSat(t *testing.T) {
	if got := Sat(5, 1, -1); got != 1 {
		t.Fatalf("expected upper clamp 1, got %f", got)
	}
	if got := Sat(-5, 1, -1); got != -1 {
		t.Fatalf("expected lower clamp -1, got %f", got)
	}
	if got := Sat(0.25, 1, -1); got != 0.25 {
		t.Fatalf("expected passthrough 0.25, got %f", got)
	}
}

func TestSatSliceNegativeSpread(t *testing.T) {
	got := SatSlice([]float64{3, -3, 0.5}, -2)
	want := []float64{2, -2, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}
