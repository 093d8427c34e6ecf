package scape

import (
	"context"
	"fmt"
	"math"

	"duelrl/internal/model"
)

const (
	runToGoalObsDim = 5
	runToGoalActDim = 1
)

type RunToGoalConfig struct {
	Length   float64 `yaml:"length" json:"length"`
	Speed    float64 `yaml:"speed" json:"speed"`
	MaxSteps int     `yaml:"max_steps" json:"max_steps"`
	CtrlCost float64 `yaml:"ctrl_cost" json:"ctrl_cost"`
}

func DefaultRunToGoalConfig() RunToGoalConfig {
	return RunToGoalConfig{
		Length:   10,
		Speed:    0.5,
		MaxSteps: 200,
		CtrlCost: 0.1,
	}
}

// RunToGoal is a two-runner race on a straight track. The first runner to
// reach the end wins; reaching it together or running out of steps is a tie.
type RunToGoal struct {
	cfg RunToGoalConfig

	pos   [2]float64
	vel   [2]float64
	steps int
	over  bool
	ready bool
}

func NewRunToGoal(cfg RunToGoalConfig) (*RunToGoal, error) {
	def := DefaultRunToGoalConfig()
	if cfg.Length == 0 {
		cfg.Length = def.Length
	}
	if cfg.Speed == 0 {
		cfg.Speed = def.Speed
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.Length < 0 || cfg.Speed < 0 || cfg.MaxSteps < 0 || cfg.CtrlCost < 0 {
		return nil, fmt.Errorf("%w: run-to-goal parameters must be >= 0: %+v", model.ErrConfiguration, cfg)
	}
	return &RunToGoal{cfg: cfg}, nil
}

func (*RunToGoal) Name() string        { return "run-to-goal" }
func (*RunToGoal) ObservationDim() int { return runToGoalObsDim }
func (*RunToGoal) ActionDim() int      { return runToGoalActDim }

func (e *RunToGoal) Reset(_ context.Context) (model.Pair[[]float64], error) {
	e.pos = [2]float64{}
	e.vel = [2]float64{}
	e.steps = 0
	e.over = false
	e.ready = true
	return model.NewPair(e.observe(0), e.observe(1)), nil
}

func (e *RunToGoal) Step(ctx context.Context, actions model.Pair[[]float64]) (DuelStep, error) {
	if err := ctx.Err(); err != nil {
		return DuelStep{}, err
	}
	if !e.ready || e.over {
		return DuelStep{}, fmt.Errorf("%w: run-to-goal stepped without reset", model.ErrContractViolation)
	}

	var moves, ctrl [2]float64
	for i := 0; i < 2; i++ {
		action := actions.Get(i)
		if len(action) != runToGoalActDim {
			return DuelStep{}, fmt.Errorf("%w: run-to-goal action for slot %d has length %d, want %d", model.ErrContractViolation, i, len(action), runToGoalActDim)
		}
		a := action[0]
		if math.IsNaN(a) {
			a = 0
		}
		a = math.Max(-1, math.Min(1, a))
		prev := e.pos[i]
		e.vel[i] = a * e.cfg.Speed
		e.pos[i] = math.Max(0, math.Min(e.cfg.Length, e.pos[i]+e.vel[i]))
		moves[i] = e.pos[i] - prev
		ctrl[i] = -a * a
	}
	e.steps++

	reached := [2]bool{e.pos[0] >= e.cfg.Length, e.pos[1] >= e.cfg.Length}
	winner := -1
	switch {
	case reached[0] && reached[1]:
		e.over = true
	case reached[0]:
		winner, e.over = 0, true
	case reached[1]:
		winner, e.over = 1, true
	case e.cfg.MaxSteps > 0 && e.steps >= e.cfg.MaxSteps:
		e.over = true
	}

	var out DuelStep
	for i := 0; i < 2; i++ {
		var win float64
		info := model.Info{
			InfoRewardRemaining: e.cfg.Length - e.pos[i],
			"reward_move":       moves[i],
			"reward_ctrl":       ctrl[i],
		}
		if winner == i {
			win = 1
			info[InfoWinner] = true
		} else if winner == 1-i {
			win = -1
			info[InfoLoser] = true
		}
		info["reward_win"] = win
		out.Observations[i] = e.observe(i)
		out.Rewards[i] = moves[i] + e.cfg.CtrlCost*ctrl[i] + win
		out.Infos[i] = info
	}
	// Slot 0 reports done wrapped in a singleton, slot 1 as a bare flag.
	out.Dones = model.NewPair[any]([]bool{e.over}, e.over)
	return out, nil
}

func (e *RunToGoal) observe(i int) []float64 {
	frac := 0.0
	if e.cfg.MaxSteps > 0 {
		frac = float64(e.steps) / float64(e.cfg.MaxSteps)
	}
	return []float64{
		e.pos[i] / e.cfg.Length,
		e.pos[1-i] / e.cfg.Length,
		e.vel[i],
		e.vel[1-i],
		frac,
	}
}
