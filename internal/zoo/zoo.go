// Package zoo provides fixed background policies for the opponent slot.
package zoo

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"

	"duelrl/internal/model"
	"duelrl/internal/nn"
	"duelrl/internal/scape"
)

const (
	KindConstant  = "constant"
	KindRandom    = "random"
	KindRecurrent = "recurrent"
)

const recurrentHidden = 8

// New builds a background agent of the given kind.
func New(kind string, obsDim, actDim int, seed int64) (scape.BackgroundAgent, error) {
	if obsDim <= 0 || actDim <= 0 {
		return nil, fmt.Errorf("%w: zoo agent dims must be > 0, got obs=%d act=%d", model.ErrConfiguration, obsDim, actDim)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindConstant:
		return NewConstant(make([]float64, actDim)), nil
	case KindRandom:
		return NewRandom(obsDim, actDim, seed), nil
	case KindRecurrent:
		return NewRecurrent(obsDim, actDim, seed, "tanh")
	default:
		return nil, fmt.Errorf("%w: unsupported zoo agent kind: %s", model.ErrConfiguration, kind)
	}
}

// Kinds lists the supported agent kinds.
func Kinds() []string {
	return []string{KindConstant, KindRandom, KindRecurrent}
}

// Constant always emits the same action.
type Constant struct {
	action []float64
}

func NewConstant(action []float64) *Constant {
	return &Constant{action: append([]float64(nil), action...)}
}

func (c *Constant) Act(_ context.Context, _ []float64, _ float64, _ bool) ([]float64, error) {
	return append([]float64(nil), c.action...), nil
}

func (c *Constant) Reset() {}

// Random samples each action component uniformly from [-1, 1].
type Random struct {
	obsDim int
	actDim int
	rng    *rand.Rand
}

func NewRandom(obsDim, actDim int, seed int64) *Random {
	return &Random{obsDim: obsDim, actDim: actDim, rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Act(ctx context.Context, observation []float64, _ float64, _ bool) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(observation) != r.obsDim {
		return nil, fmt.Errorf("%w: observation length %d, want %d", model.ErrContractViolation, len(observation), r.obsDim)
	}
	action := make([]float64, r.actDim)
	for i := range action {
		action[i] = r.rng.Float64()*2 - 1
	}
	return action, nil
}

func (r *Random) Reset() {}

// Recurrent is a fixed-weight Elman network. Weights are drawn once from the
// seed; the hidden state lives for one episode.
type Recurrent struct {
	input      *nn.Dense
	recurrent  *nn.Dense
	output     *nn.Dense
	activation nn.ActivationFunc
	hidden     []float64
}

func NewRecurrent(obsDim, actDim int, seed int64, activation string) (*Recurrent, error) {
	fn, err := nn.GetActivation(activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	rng := rand.New(rand.NewSource(seed))
	input, err := nn.NewDense(obsDim, recurrentHidden, 1, rng)
	if err != nil {
		return nil, err
	}
	recurrent, err := nn.NewDense(recurrentHidden, recurrentHidden, 0.5, rng)
	if err != nil {
		return nil, err
	}
	output, err := nn.NewDense(recurrentHidden, actDim, 1, rng)
	if err != nil {
		return nil, err
	}
	return &Recurrent{
		input:      input,
		recurrent:  recurrent,
		output:     output,
		activation: fn,
		hidden:     make([]float64, recurrentHidden),
	}, nil
}

func (r *Recurrent) Act(ctx context.Context, observation []float64, _ float64, _ bool) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(observation) != r.input.In() {
		return nil, fmt.Errorf("%w: observation length %d, want %d", model.ErrContractViolation, len(observation), r.input.In())
	}
	fromInput, err := r.input.Forward(observation)
	if err != nil {
		return nil, err
	}
	fromState, err := r.recurrent.Forward(r.hidden)
	if err != nil {
		return nil, err
	}
	floats.Add(fromInput, fromState)
	r.hidden = nn.Apply(fromInput, r.activation)

	action, err := r.output.Forward(r.hidden)
	if err != nil {
		return nil, err
	}
	return nn.SatSlice(nn.Apply(action, r.activation), 1), nil
}

// Reset clears the hidden state.
func (r *Recurrent) Reset() {
	for i := range r.hidden {
		r.hidden[i] = 0
	}
}

// Hidden returns a copy of the current hidden state.
func (r *Recurrent) Hidden() []float64 {
	return append([]float64(nil), r.hidden...)
}
