package platform

import (
	"fmt"
	"math/rand"

	"duelrl/internal/config"
	"duelrl/internal/model"
)

// Policy is a fixed foreground controller used to drive rollouts.
type Policy interface {
	Name() string
	Act(observation []float64) []float64
}

type ZeroPolicy struct{ actDim int }

func (ZeroPolicy) Name() string { return config.PolicyZero }

func (p ZeroPolicy) Act([]float64) []float64 { return make([]float64, p.actDim) }

type RandomPolicy struct {
	actDim int
	rng    *rand.Rand
}

func (*RandomPolicy) Name() string { return config.PolicyRandom }

func (p *RandomPolicy) Act([]float64) []float64 {
	out := make([]float64, p.actDim)
	for i := range out {
		out[i] = p.rng.Float64()*2 - 1
	}
	return out
}

// ForwardPolicy pushes every action component to its upper bound.
type ForwardPolicy struct{ actDim int }

func (ForwardPolicy) Name() string { return config.PolicyForward }

func (p ForwardPolicy) Act([]float64) []float64 {
	out := make([]float64, p.actDim)
	for i := range out {
		out[i] = 1
	}
	return out
}

func NewPolicy(name string, actDim int, seed int64) (Policy, error) {
	switch name {
	case config.PolicyZero:
		return ZeroPolicy{actDim: actDim}, nil
	case config.PolicyRandom:
		return &RandomPolicy{actDim: actDim, rng: rand.New(rand.NewSource(seed))}, nil
	case config.PolicyForward:
		return ForwardPolicy{actDim: actDim}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported policy: %s", model.ErrConfiguration, name)
	}
}
