package platform

import (
	"errors"
	"testing"

	"duelrl/internal/config"
	"duelrl/internal/model"
)

func TestNewPolicy(t *testing.T) {
	obs := []float64{0, 0, 0, 0, 0}

	zero, err := NewPolicy(config.PolicyZero, 2, 1)
	if err != nil {
		t.Fatalf("zero policy: %v", err)
	}
	if got := zero.Act(obs); len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected zero action, got %v", got)
	}

	fwd, err := NewPolicy(config.PolicyForward, 1, 1)
	if err != nil {
		t.Fatalf("forward policy: %v", err)
	}
	if got := fwd.Act(obs); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected forward action [1], got %v", got)
	}

	a, _ := NewPolicy(config.PolicyRandom, 3, 7)
	b, _ := NewPolicy(config.PolicyRandom, 3, 7)
	for i := 0; i < 10; i++ {
		x, y := a.Act(obs), b.Act(obs)
		for j := range x {
			if x[j] != y[j] {
				t.Fatalf("expected seeded random policies to agree, got %v and %v", x, y)
			}
			if x[j] < -1 || x[j] > 1 {
				t.Fatalf("expected random action in [-1,1], got %v", x[j])
			}
		}
	}

	if _, err := NewPolicy("sprint", 1, 1); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
