package scape

import (
	"fmt"

	"duelrl/internal/envid"
	"duelrl/internal/model"
)

// NewTwoAgentEnv builds a built-in environment by name or alias.
func NewTwoAgentEnv(name string, cfg RunToGoalConfig) (TwoAgentEnv, error) {
	switch envid.Normalize(name) {
	case envid.RunToGoal:
		return NewRunToGoal(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported environment: %s", model.ErrConfiguration, name)
	}
}
