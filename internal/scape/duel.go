package scape

import (
	"context"
	"fmt"

	"duelrl/internal/model"
)

// Info keys of the two-agent environment contract.
const (
	InfoRewardRemaining = "reward_remaining"
	InfoWinner          = "winner"
	InfoLoser           = "loser"
)

// DuelStep is the pair-valued result of one joint step. Done flags may be a
// bare bool or a length-1 container; UnwrapDone normalizes them.
type DuelStep struct {
	Observations model.Pair[[]float64]
	Rewards      model.Pair[float64]
	Dones        model.Pair[any]
	Infos        model.Pair[model.Info]
}

// TwoAgentEnv is a simultaneous-move environment with two agent slots.
type TwoAgentEnv interface {
	Name() string
	ObservationDim() int
	ActionDim() int
	Reset(ctx context.Context) (model.Pair[[]float64], error)
	Step(ctx context.Context, actions model.Pair[[]float64]) (DuelStep, error)
}

// BackgroundAgent is a fixed policy occupying one slot. Any recurrent state
// belongs to the agent and is cleared by Reset.
type BackgroundAgent interface {
	Act(ctx context.Context, observation []float64, reward float64, done bool) ([]float64, error)
	Reset()
}

// UnwrapDone turns a done flag into a bool. Accepted forms are a bool, a
// number, or a container of exactly one of those.
func UnwrapDone(v any) (bool, error) {
	switch typed := v.(type) {
	case bool:
		return typed, nil
	case int:
		return typed != 0, nil
	case float64:
		return typed != 0, nil
	case []bool:
		if len(typed) == 1 {
			return typed[0], nil
		}
		return false, doneShapeError(v, len(typed))
	case [1]bool:
		return typed[0], nil
	case []int:
		if len(typed) == 1 {
			return typed[0] != 0, nil
		}
		return false, doneShapeError(v, len(typed))
	case []float64:
		if len(typed) == 1 {
			return typed[0] != 0, nil
		}
		return false, doneShapeError(v, len(typed))
	case []any:
		if len(typed) == 1 {
			return UnwrapDone(typed[0])
		}
		return false, doneShapeError(v, len(typed))
	default:
		return false, fmt.Errorf("%w: done flag of type %T", model.ErrContractViolation, v)
	}
}

func doneShapeError(v any, n int) error {
	return fmt.Errorf("%w: done flag %T must hold exactly one value, got %d", model.ErrContractViolation, v, n)
}
