package model

import "errors"

var (
	// ErrConfiguration marks malformed setup: shaping weights, annealer
	// parameters, missing metric sources. Raised at construction time.
	ErrConfiguration = errors.New("configuration error")
	// ErrContractViolation marks collaborator output the adapter cannot
	// interpret, such as a missing reward_remaining field.
	ErrContractViolation = errors.New("contract violation")
)
