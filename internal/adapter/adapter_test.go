package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duelrl/internal/anneal"
	"duelrl/internal/model"
	"duelrl/internal/scape"
	"duelrl/internal/shaping"
)

// scriptedEnv emits slot-tagged observations (slot i sees i*10 + step) and
// ends the episode at endAt, marking winnerSlot as the winner if set.
type scriptedEnv struct {
	endAt         int
	winnerSlot    int
	remaining     model.Pair[float64]
	dropRemaining bool
	extraInfo     model.Pair[model.Info]

	steps       int
	lastActions model.Pair[[]float64]
}

func newScriptedEnv(endAt int) *scriptedEnv {
	return &scriptedEnv{
		endAt:      endAt,
		winnerSlot: -1,
		remaining:  model.NewPair(4.0, 6.0),
	}
}

func (e *scriptedEnv) Name() string        { return "scripted" }
func (e *scriptedEnv) ObservationDim() int { return 1 }
func (e *scriptedEnv) ActionDim() int      { return 1 }

func (e *scriptedEnv) Reset(context.Context) (model.Pair[[]float64], error) {
	e.steps = 0
	return model.NewPair([]float64{0}, []float64{10}), nil
}

func (e *scriptedEnv) Step(_ context.Context, actions model.Pair[[]float64]) (scape.DuelStep, error) {
	e.steps++
	e.lastActions = actions
	over := e.endAt > 0 && e.steps >= e.endAt
	var out scape.DuelStep
	for slot := 0; slot < 2; slot++ {
		info := model.Info{}
		if !e.dropRemaining {
			info[scape.InfoRewardRemaining] = e.remaining[slot]
		}
		for k, v := range e.extraInfo[slot] {
			info[k] = v
		}
		if over && slot == e.winnerSlot {
			info[scape.InfoWinner] = true
		}
		out.Observations[slot] = []float64{float64(slot*10 + e.steps)}
		out.Rewards[slot] = float64(slot) + 0.5
		out.Infos[slot] = info
	}
	// Slot 0 reports a singleton container, slot 1 a bare bool.
	out.Dones = model.NewPair[any]([]bool{over}, over)
	return out, nil
}

type recordingAgent struct {
	action       []float64
	resets       int
	observations [][]float64
	rewards      []float64
	dones        []bool
}

func (a *recordingAgent) Act(_ context.Context, observation []float64, reward float64, done bool) ([]float64, error) {
	a.observations = append(a.observations, append([]float64(nil), observation...))
	a.rewards = append(a.rewards, reward)
	a.dones = append(a.dones, done)
	return append([]float64(nil), a.action...), nil
}

func (a *recordingAgent) Reset() { a.resets++ }

func newAdapter(t *testing.T, env *scriptedEnv, agentIdx int, mutate func(*Config)) (*Adapter, *recordingAgent) {
	t.Helper()
	agent := &recordingAgent{action: []float64{7}}
	cfg := DefaultConfig()
	cfg.AgentIdx = agentIdx
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(env, agent, cfg)
	require.NoError(t, err)
	return a, agent
}

func TestResetPlacesSlotsByAgentIndex(t *testing.T) {
	ctx := context.Background()

	a0, agent0 := newAdapter(t, newScriptedEnv(0), 0, nil)
	obs, err := a0.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, obs)
	assert.Equal(t, []float64{0}, a0.Background().Observation)
	assert.Equal(t, 1, agent0.resets)

	a1, agent1 := newAdapter(t, newScriptedEnv(0), 1, nil)
	obs, err = a1.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, obs)
	assert.Equal(t, []float64{10}, a1.Background().Observation)
	assert.Equal(t, 1, agent1.resets)
}

func TestStepAssemblesJointActionBySlot(t *testing.T) {
	ctx := context.Background()
	for _, idx := range []int{0, 1} {
		env := newScriptedEnv(0)
		a, _ := newAdapter(t, env, idx, nil)
		_, err := a.Reset(ctx)
		require.NoError(t, err)

		tr, err := a.Step(ctx, []float64{3})
		require.NoError(t, err)
		assert.Equal(t, []float64{7}, env.lastActions.Get(idx), "background action in slot %d", idx)
		assert.Equal(t, []float64{3}, env.lastActions.Other(idx), "foreground action opposite slot %d", idx)
		assert.Equal(t, float64(1-idx)+0.5, tr.Reward)
		assert.Equal(t, []float64{float64((1-idx)*10 + 1)}, tr.Observation)
	}
}

func TestBackgroundWinMarksForegroundLoser(t *testing.T) {
	ctx := context.Background()
	env := newScriptedEnv(10)
	env.winnerSlot = 1
	a, _ := newAdapter(t, env, 1, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	for step := 1; step <= 10; step++ {
		tr, err := a.Step(ctx, []float64{0})
		require.NoError(t, err)
		if step < 10 {
			assert.False(t, tr.Done, "step %d", step)
			assert.False(t, tr.Info.Flag(scape.InfoLoser), "step %d", step)
			continue
		}
		assert.True(t, tr.Done)
		assert.True(t, tr.Info.Flag(scape.InfoLoser))
	}
	assert.Equal(t, int64(10), a.StepCount())

	_, err = a.Step(ctx, []float64{0})
	assert.ErrorIs(t, err, ErrEpisodeOver)
	assert.True(t, errors.Is(err, model.ErrContractViolation))
}

func TestForegroundWinIsNotFlagged(t *testing.T) {
	ctx := context.Background()
	env := newScriptedEnv(2)
	env.winnerSlot = 0
	a, _ := newAdapter(t, env, 1, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	_, err = a.Step(ctx, []float64{0})
	require.NoError(t, err)
	tr, err := a.Step(ctx, []float64{0})
	require.NoError(t, err)
	assert.True(t, tr.Done)
	assert.False(t, tr.Info.Flag(scape.InfoLoser))
	assert.True(t, tr.Info.Flag(scape.InfoWinner))
}

func TestResetThenStepAccumulatesSingleReward(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t, newScriptedEnv(0), 0, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	tr, err := a.Step(ctx, []float64{0})
	require.NoError(t, err)
	assert.False(t, tr.Done)
	// Background slot 0 has 4 remaining: -0.01 * 4.
	assert.InDelta(t, -0.04, a.Return(), 1e-12)
	// 0.01 * 6 - 0.01 * 4.
	assert.InDelta(t, 0.02, a.AbsReturn(), 1e-12)

	obs, ret, retAbs := a.Stats()
	assert.Equal(t, int64(1), obs.Count())
	assert.Equal(t, int64(1), ret.Count())
	assert.Equal(t, int64(1), retAbs.Count())
}

func TestReturnsResetAtEpisodeEndAndOnReset(t *testing.T) {
	ctx := context.Background()
	a, agent := newAdapter(t, newScriptedEnv(3), 0, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = a.Step(ctx, []float64{0})
		require.NoError(t, err)
	}
	assert.NotZero(t, a.Return())
	tr, err := a.Step(ctx, []float64{0})
	require.NoError(t, err)
	require.True(t, tr.Done)
	assert.Zero(t, a.Return())
	assert.Zero(t, a.AbsReturn())

	_, err = a.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, agent.resets)
	assert.Zero(t, a.StepCount())
	obs, _, _ := a.Stats()
	assert.Equal(t, int64(3), obs.Count(), "running stats persist across episodes")
}

func TestBackgroundAgentSeesRawPreviousStep(t *testing.T) {
	ctx := context.Background()
	a, agent := newAdapter(t, newScriptedEnv(0), 1, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = a.Step(ctx, []float64{0})
		require.NoError(t, err)
	}
	assert.Equal(t, [][]float64{{10}, {11}}, agent.observations)
	assert.Equal(t, []float64{0, 1.5}, agent.rewards)
	assert.Equal(t, []bool{false, false}, agent.dones)
}

func TestMissingRewardRemainingIsContractViolation(t *testing.T) {
	ctx := context.Background()
	env := newScriptedEnv(0)
	env.dropRemaining = true
	a, _ := newAdapter(t, env, 0, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	_, err = a.Step(ctx, []float64{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrContractViolation))
}

func TestContractViolationEndsEpisodeUntilReset(t *testing.T) {
	ctx := context.Background()
	env := newScriptedEnv(0)
	a, agent := newAdapter(t, env, 0, nil)
	_, err := a.Reset(ctx)
	require.NoError(t, err)

	_, err = a.Step(ctx, []float64{0})
	require.NoError(t, err)
	before := a.Background()

	env.dropRemaining = true
	_, err = a.Step(ctx, []float64{0})
	require.ErrorIs(t, err, model.ErrContractViolation)
	assert.Equal(t, int64(1), a.StepCount())
	assert.Equal(t, before, a.Background())

	_, err = a.Step(ctx, []float64{0})
	assert.ErrorIs(t, err, ErrEpisodeOver)

	env.dropRemaining = false
	_, err = a.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Return())
	_, err = a.Step(ctx, []float64{0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.StepCount())
	assert.Equal(t, 2, agent.resets)
}

func TestStepBeforeResetFails(t *testing.T) {
	a, _ := newAdapter(t, newScriptedEnv(0), 0, nil)
	_, err := a.Step(context.Background(), []float64{0})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestShapedRewardSource(t *testing.T) {
	ctx := context.Background()
	shaper, err := shaping.New(shaping.Params{
		Weights: map[string]map[string]float64{
			shaping.TypeSparse: {"reward_win": 1},
			shaping.TypeDense:  {"reward_move": 1},
		},
	}, anneal.NewScheduler(nil), shaping.Options{TotalTimesteps: 100})
	require.NoError(t, err)

	env := newScriptedEnv(0)
	env.extraInfo = model.NewPair(model.Info{"reward_win": 1.0, "reward_move": 0.2}, model.Info{})
	a, _ := newAdapter(t, env, 0, func(cfg *Config) {
		cfg.RewardSource = RewardShaped
		cfg.Shaper = shaper
		cfg.Normalize = false
	})
	_, err = a.Reset(ctx)
	require.NoError(t, err)
	_, err = a.Step(ctx, []float64{0})
	require.NoError(t, err)

	// Constant 0.5 blend of sparse 1 and dense 0.2.
	assert.InDelta(t, 0.6, a.Background().NormReward, 1e-12)
	assert.Zero(t, a.Return(), "no accumulation without normalization")
}

func TestConfigValidation(t *testing.T) {
	env := newScriptedEnv(0)
	agent := &recordingAgent{action: []float64{0}}
	cases := map[string]func(*Config){
		"agent index":      func(c *Config) { c.AgentIdx = 2 },
		"gamma":            func(c *Config) { c.Gamma = 0 },
		"epsilon":          func(c *Config) { c.Epsilon = 0 },
		"clip":             func(c *Config) { c.ClipObs = -1 },
		"shaped no shaper": func(c *Config) { c.RewardSource = RewardShaped },
		"unknown source":   func(c *Config) { c.RewardSource = "vibes" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(env, agent, cfg)
			assert.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)
		})
	}
}
