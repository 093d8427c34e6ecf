// Package vecenv steps a batch of single-agent environments together.
package vecenv

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"duelrl/internal/model"
)

// InfoTerminalObservation holds the last observation of an episode that was
// auto-reset inside a step.
const InfoTerminalObservation = "terminal_observation"

var (
	ErrClosed         = errors.New("vec env is closed")
	ErrNoPendingStep  = errors.New("step wait without step async")
	ErrStepInProgress = errors.New("step async already pending")
)

// Transition is the result of one single-agent step.
type Transition struct {
	Observation []float64
	Reward      float64
	Done        bool
	Info        model.Info
}

// Env is a single-agent environment.
type Env interface {
	ObservationDim() int
	ActionDim() int
	Reset(ctx context.Context) ([]float64, error)
	Step(ctx context.Context, action []float64) (Transition, error)
}

// Batch holds one tick of results; index i belongs to env i.
type Batch struct {
	Observations [][]float64
	Rewards      []float64
	Dones        []bool
	Infos        []model.Info
}

type Options struct {
	// Workers bounds concurrent env steps; <= 0 means one per env.
	Workers int
	Logger  *zap.Logger
}

type VecEnv struct {
	envs    []Env
	workers int
	logger  *zap.Logger

	pending [][]float64
	waiting bool
	closed  bool
}

func New(envs []Env, opts Options) (*VecEnv, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("%w: vec env requires at least one env", model.ErrConfiguration)
	}
	for i, env := range envs {
		if env == nil {
			return nil, fmt.Errorf("%w: env %d is nil", model.ErrConfiguration, i)
		}
	}
	workers := opts.Workers
	if workers <= 0 || workers > len(envs) {
		workers = len(envs)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VecEnv{
		envs:    append([]Env(nil), envs...),
		workers: workers,
		logger:  logger.Named("vecenv"),
	}, nil
}

func (v *VecEnv) NumEnvs() int { return len(v.envs) }

// Reset resets every env and returns the batched first observations.
func (v *VecEnv) Reset(ctx context.Context) ([][]float64, error) {
	if v.closed {
		return nil, ErrClosed
	}
	observations := make([][]float64, len(v.envs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, env := range v.envs {
		g.Go(func() error {
			obs, err := env.Reset(gctx)
			if err != nil {
				return fmt.Errorf("reset env %d: %w", i, err)
			}
			observations[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v.waiting = false
	v.pending = nil
	return observations, nil
}

// StepAsync records the actions for the next StepWait.
func (v *VecEnv) StepAsync(actions [][]float64) error {
	if v.closed {
		return ErrClosed
	}
	if v.waiting {
		return ErrStepInProgress
	}
	if len(actions) != len(v.envs) {
		return fmt.Errorf("%w: got %d actions for %d envs", model.ErrContractViolation, len(actions), len(v.envs))
	}
	v.pending = actions
	v.waiting = true
	return nil
}

// StepWait steps every env with its pending action. Envs that finish are
// reset in place and their terminal observation is attached to the info.
func (v *VecEnv) StepWait(ctx context.Context) (Batch, error) {
	if v.closed {
		return Batch{}, ErrClosed
	}
	if !v.waiting {
		return Batch{}, ErrNoPendingStep
	}
	actions := v.pending
	v.pending = nil
	v.waiting = false

	n := len(v.envs)
	batch := Batch{
		Observations: make([][]float64, n),
		Rewards:      make([]float64, n),
		Dones:        make([]bool, n),
		Infos:        make([]model.Info, n),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, env := range v.envs {
		g.Go(func() error {
			tr, err := env.Step(gctx, actions[i])
			if err != nil {
				return fmt.Errorf("step env %d: %w", i, err)
			}
			info := tr.Info.Clone()
			obs := tr.Observation
			if tr.Done {
				info[InfoTerminalObservation] = tr.Observation
				obs, err = env.Reset(gctx)
				if err != nil {
					return fmt.Errorf("auto reset env %d: %w", i, err)
				}
			}
			batch.Observations[i] = obs
			batch.Rewards[i] = tr.Reward
			batch.Dones[i] = tr.Done
			batch.Infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.logger.Warn("step failed", zap.Error(err))
		return Batch{}, err
	}
	return batch, nil
}

// Step is StepAsync followed by StepWait.
func (v *VecEnv) Step(ctx context.Context, actions [][]float64) (Batch, error) {
	if err := v.StepAsync(actions); err != nil {
		return Batch{}, err
	}
	return v.StepWait(ctx)
}

// Close closes every env that implements io.Closer.
func (v *VecEnv) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	var errs []error
	for i, env := range v.envs {
		if closer, ok := env.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close env %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}
