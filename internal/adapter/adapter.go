// Package adapter turns a two-agent environment plus a fixed background
// agent into a single-agent environment for the foreground learner.
package adapter

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"duelrl/internal/model"
	"duelrl/internal/runstat"
	"duelrl/internal/scape"
	"duelrl/internal/shaping"
	"duelrl/internal/vecenv"
)

// Background reward sources.
const (
	RewardRemaining = "remaining"
	RewardShaped    = "shaped"
)

var (
	ErrNotReady    = fmt.Errorf("%w: step before reset", model.ErrContractViolation)
	ErrEpisodeOver = fmt.Errorf("%w: step after episode end", model.ErrContractViolation)
)

type state int

const (
	stateFresh state = iota
	stateMidEpisode
	stateTerminal
)

type Config struct {
	// AgentIdx is the slot occupied by the background agent.
	AgentIdx       int
	Normalize      bool
	ClipObs        float64
	ClipReward     float64
	Gamma          float64
	Epsilon        float64
	RewardSource   string
	RemainingScale float64
	// Shaper is required when RewardSource is "shaped".
	Shaper *shaping.Shaper
	Logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		AgentIdx:       0,
		Normalize:      true,
		ClipObs:        10,
		ClipReward:     10,
		Gamma:          0.99,
		Epsilon:        1e-8,
		RewardSource:   RewardRemaining,
		RemainingScale: 0.01,
	}
}

func (c Config) Validate() error {
	if err := model.ValidateAgentIndex(c.AgentIdx); err != nil {
		return err
	}
	if c.ClipObs <= 0 || c.ClipReward <= 0 {
		return fmt.Errorf("%w: clip bounds must be > 0, got obs=%f reward=%f", model.ErrConfiguration, c.ClipObs, c.ClipReward)
	}
	if c.Gamma <= 0 || c.Gamma > 1 {
		return fmt.Errorf("%w: gamma must be in (0, 1], got %f", model.ErrConfiguration, c.Gamma)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be > 0, got %g", model.ErrConfiguration, c.Epsilon)
	}
	if c.RemainingScale <= 0 || math.IsInf(c.RemainingScale, 0) {
		return fmt.Errorf("%w: remaining scale must be > 0, got %f", model.ErrConfiguration, c.RemainingScale)
	}
	switch c.RewardSource {
	case RewardRemaining:
	case RewardShaped:
		if c.Shaper == nil {
			return fmt.Errorf("%w: reward source %q requires a shaper", model.ErrConfiguration, c.RewardSource)
		}
	default:
		return fmt.Errorf("%w: unsupported reward source: %s", model.ErrConfiguration, c.RewardSource)
	}
	return nil
}

// Background is the retained view of the background slot after a step.
type Background struct {
	Observation []float64
	Reward      float64
	Done        bool
	Info        model.Info
	// Normalized values; equal to the raw ones when normalization is off.
	NormObservation []float64
	NormReward      float64
	NormAbsReward   float64
}

type Adapter struct {
	env   scape.TwoAgentEnv
	agent scape.BackgroundAgent
	cfg   Config
	log   *zap.Logger

	obsStat    *runstat.RunningStat
	retStat    *runstat.RunningStat
	retAbsStat *runstat.RunningStat

	state  state
	steps  int64
	ret    float64
	retAbs float64

	bg Background
}

func New(env scape.TwoAgentEnv, agent scape.BackgroundAgent, cfg Config) (*Adapter, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: two-agent env is required", model.ErrConfiguration)
	}
	if agent == nil {
		return nil, fmt.Errorf("%w: background agent is required", model.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	obsStat, err := runstat.New(env.ObservationDim())
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		env:        env,
		agent:      agent,
		cfg:        cfg,
		log:        logger.Named("adapter").With(zap.String("env", env.Name()), zap.Int("agent_idx", cfg.AgentIdx)),
		obsStat:    obsStat,
		retStat:    runstat.MustNew(1),
		retAbsStat: runstat.MustNew(1),
	}, nil
}

func (a *Adapter) ObservationDim() int { return a.env.ObservationDim() }
func (a *Adapter) ActionDim() int      { return a.env.ActionDim() }
func (a *Adapter) AgentIdx() int       { return a.cfg.AgentIdx }

// StepCount is the number of steps taken in the current episode.
func (a *Adapter) StepCount() int64 { return a.steps }

// Return is the discounted shaped return of the background slot.
func (a *Adapter) Return() float64 { return a.ret }

// AbsReturn is the discounted absolute return.
func (a *Adapter) AbsReturn() float64 { return a.retAbs }

// Background returns a copy of the retained background slot state.
func (a *Adapter) Background() Background {
	bg := a.bg
	bg.Observation = append([]float64(nil), a.bg.Observation...)
	bg.NormObservation = append([]float64(nil), a.bg.NormObservation...)
	bg.Info = a.bg.Info.Clone()
	return bg
}

// Stats exposes the observation, return and absolute-return statistics.
func (a *Adapter) Stats() (obs, ret, retAbs *runstat.RunningStat) {
	return a.obsStat, a.retStat, a.retAbsStat
}

// Reset starts a new episode and returns the foreground observation. Running
// statistics persist across episodes.
func (a *Adapter) Reset(ctx context.Context) ([]float64, error) {
	a.agent.Reset()
	obs, err := a.env.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset %s: %w", a.env.Name(), err)
	}
	bgObs, fgObs := obs.Split(a.cfg.AgentIdx)
	a.bg = Background{Observation: bgObs}
	a.steps = 0
	a.ret = 0
	a.retAbs = 0
	a.state = stateMidEpisode
	return fgObs, nil
}

// Step plays one joint step with the background agent and returns the
// foreground transition.
func (a *Adapter) Step(ctx context.Context, action []float64) (vecenv.Transition, error) {
	switch a.state {
	case stateFresh:
		return vecenv.Transition{}, ErrNotReady
	case stateTerminal:
		return vecenv.Transition{}, ErrEpisodeOver
	}
	idx := a.cfg.AgentIdx

	bgAction, err := a.agent.Act(ctx, a.bg.Observation, a.bg.Reward, a.bg.Done)
	if err != nil {
		return vecenv.Transition{}, fmt.Errorf("background act: %w", err)
	}
	actedOn := a.bg.Observation

	out, err := a.env.Step(ctx, model.Assemble(idx, bgAction, action))
	if err != nil {
		return vecenv.Transition{}, fmt.Errorf("step %s: %w", a.env.Name(), err)
	}

	bgObs, fgObs := out.Observations.Split(idx)
	bgReward, fgReward := out.Rewards.Split(idx)
	bgDoneRaw, fgDoneRaw := out.Dones.Split(idx)
	bgInfo, fgInfo := out.Infos.Split(idx)

	// The env has moved on; a result that breaks the contract ends the
	// episode so the next call must Reset.
	bgDone, err := scape.UnwrapDone(bgDoneRaw)
	if err != nil {
		return a.fail(fmt.Errorf("background done: %w", err))
	}
	done, err := scape.UnwrapDone(fgDoneRaw)
	if err != nil {
		return a.fail(fmt.Errorf("foreground done: %w", err))
	}
	shaped, abs, err := a.backgroundRewards(bgInfo, fgInfo)
	if err != nil {
		return a.fail(err)
	}

	normObs, normShaped, normAbs := actedOn, shaped, abs
	if a.cfg.Normalize {
		a.ret = a.ret*a.cfg.Gamma + shaped
		a.retAbs = a.retAbs*a.cfg.Gamma + abs
		normObs, normShaped, normAbs, err = a.normalize(actedOn, shaped, abs)
		if err != nil {
			return a.fail(err)
		}
	}
	a.steps++
	if done || bgDone {
		a.ret = 0
		a.retAbs = 0
	}

	a.bg = Background{
		Observation:     bgObs,
		Reward:          bgReward,
		Done:            bgDone,
		Info:            bgInfo,
		NormObservation: normObs,
		NormReward:      normShaped,
		NormAbsReward:   normAbs,
	}

	info := fgInfo.Clone()
	if done {
		a.state = stateTerminal
		if bgInfo.Flag(scape.InfoWinner) {
			info[scape.InfoLoser] = true
		}
		a.log.Debug("episode finished",
			zap.Int64("steps", a.steps),
			zap.Bool("background_won", bgInfo.Flag(scape.InfoWinner)),
		)
	}
	return vecenv.Transition{Observation: fgObs, Reward: fgReward, Done: done, Info: info}, nil
}

func (a *Adapter) fail(err error) (vecenv.Transition, error) {
	a.state = stateTerminal
	a.log.Warn("episode aborted", zap.Int64("steps", a.steps), zap.Error(err))
	return vecenv.Transition{}, err
}

func (a *Adapter) backgroundRewards(bgInfo, fgInfo model.Info) (float64, float64, error) {
	bgRemaining, err := remaining(bgInfo, "background")
	if err != nil {
		return 0, 0, err
	}
	fgRemaining, err := remaining(fgInfo, "foreground")
	if err != nil {
		return 0, 0, err
	}
	scale := a.cfg.RemainingScale
	abs := scale*fgRemaining - scale*bgRemaining

	if a.cfg.RewardSource == RewardShaped {
		breakdown, err := a.cfg.Shaper.Breakdown(bgInfo)
		if err != nil {
			return 0, 0, err
		}
		shaped, err := a.cfg.Shaper.Shape(breakdown)
		if err != nil {
			return 0, 0, err
		}
		return shaped, abs, nil
	}
	return -scale * bgRemaining, abs, nil
}

func (a *Adapter) normalize(obs []float64, reward, absReward float64) ([]float64, float64, float64, error) {
	if err := a.obsStat.Push(obs); err != nil {
		return nil, 0, 0, fmt.Errorf("background observation: %w", err)
	}
	normObs, err := a.obsStat.Normalize(obs, a.cfg.Epsilon, a.cfg.ClipObs)
	if err != nil {
		return nil, 0, 0, err
	}
	if err := a.retStat.PushScalar(a.ret); err != nil {
		return nil, 0, 0, err
	}
	if err := a.retAbsStat.PushScalar(a.retAbs); err != nil {
		return nil, 0, 0, err
	}
	return normObs,
		a.retStat.Scale(reward, a.cfg.Epsilon, a.cfg.ClipReward),
		a.retAbsStat.Scale(absReward, a.cfg.Epsilon, a.cfg.ClipReward),
		nil
}

func remaining(info model.Info, slot string) (float64, error) {
	v, ok := info.Number(scape.InfoRewardRemaining)
	if !ok {
		return 0, fmt.Errorf("%w: %s info has no numeric %s", model.ErrContractViolation, slot, scape.InfoRewardRemaining)
	}
	return v, nil
}

var _ vecenv.Env = (*Adapter)(nil)
