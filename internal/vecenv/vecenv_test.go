package vecenv

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"duelrl/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingEnv emits its id as the observation and finishes every `horizon`
// steps. Steps sleep a little so that workers interleave.
type countingEnv struct {
	id      float64
	horizon int
	steps   int
	resets  int
	closed  atomic.Bool
	failAt  int
	jitter  *rand.Rand
}

func (e *countingEnv) ObservationDim() int { return 1 }
func (e *countingEnv) ActionDim() int      { return 1 }

func (e *countingEnv) Reset(context.Context) ([]float64, error) {
	e.resets++
	e.steps = 0
	return []float64{e.id}, nil
}

func (e *countingEnv) Step(_ context.Context, action []float64) (Transition, error) {
	e.steps++
	if e.failAt > 0 && e.steps == e.failAt {
		return Transition{}, errors.New("boom")
	}
	if e.jitter != nil {
		time.Sleep(time.Duration(e.jitter.Intn(200)) * time.Microsecond)
	}
	return Transition{
		Observation: []float64{e.id + float64(e.steps)/100},
		Reward:      action[0],
		Done:        e.steps >= e.horizon,
		Info:        model.Info{"id": e.id},
	}, nil
}

func (e *countingEnv) Close() error {
	e.closed.Store(true)
	return nil
}

func newEnvs(n, horizon int) ([]Env, []*countingEnv) {
	envs := make([]Env, n)
	raw := make([]*countingEnv, n)
	for i := range envs {
		raw[i] = &countingEnv{id: float64(i), horizon: horizon, jitter: rand.New(rand.NewSource(int64(i)))}
		envs[i] = raw[i]
	}
	return envs, raw
}

func TestStepPreservesOrdering(t *testing.T) {
	envs, _ := newEnvs(8, 100)
	venv, err := New(envs, Options{Workers: 3})
	require.NoError(t, err)
	defer venv.Close()

	ctx := context.Background()
	obs, err := venv.Reset(ctx)
	require.NoError(t, err)
	for i := range obs {
		assert.Equal(t, []float64{float64(i)}, obs[i])
	}

	actions := make([][]float64, 8)
	for i := range actions {
		actions[i] = []float64{float64(i) * 10}
	}
	for tick := 0; tick < 5; tick++ {
		batch, err := venv.Step(ctx, actions)
		require.NoError(t, err)
		for i := range envs {
			assert.Equal(t, float64(i)*10, batch.Rewards[i])
			assert.Equal(t, float64(i), batch.Infos[i]["id"])
		}
	}
}

func TestStepAutoResetsFinishedEnvs(t *testing.T) {
	envs, raw := newEnvs(2, 2)
	raw[1].horizon = 3
	venv, err := New(envs, Options{})
	require.NoError(t, err)
	defer venv.Close()

	ctx := context.Background()
	_, err = venv.Reset(ctx)
	require.NoError(t, err)

	actions := [][]float64{{0}, {0}}
	_, err = venv.Step(ctx, actions)
	require.NoError(t, err)
	batch, err := venv.Step(ctx, actions)
	require.NoError(t, err)

	want := []bool{true, false}
	if diff := cmp.Diff(want, batch.Dones); diff != "" {
		t.Fatalf("dones mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0}, batch.Observations[0])
	assert.Equal(t, []float64{0.02}, batch.Infos[0][InfoTerminalObservation])
	_, hasTerminal := batch.Infos[1][InfoTerminalObservation]
	assert.False(t, hasTerminal)
	assert.Equal(t, 2, raw[0].resets)
	assert.Equal(t, 1, raw[1].resets)
}

func TestStepWaitRequiresStepAsync(t *testing.T) {
	envs, _ := newEnvs(1, 5)
	venv, err := New(envs, Options{})
	require.NoError(t, err)
	defer venv.Close()

	_, err = venv.StepWait(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingStep)

	require.NoError(t, venv.StepAsync([][]float64{{1}}))
	assert.ErrorIs(t, venv.StepAsync([][]float64{{1}}), ErrStepInProgress)

	err = venv.StepAsync(nil)
	assert.Error(t, err)
}

func TestStepAsyncRejectsWrongBatchSize(t *testing.T) {
	envs, _ := newEnvs(2, 5)
	venv, err := New(envs, Options{})
	require.NoError(t, err)
	defer venv.Close()

	err = venv.StepAsync([][]float64{{1}})
	assert.True(t, errors.Is(err, model.ErrContractViolation))
}

func TestStepPropagatesEnvError(t *testing.T) {
	envs, raw := newEnvs(4, 10)
	raw[2].failAt = 1
	venv, err := New(envs, Options{Workers: 2})
	require.NoError(t, err)
	defer venv.Close()

	ctx := context.Background()
	_, err = venv.Reset(ctx)
	require.NoError(t, err)
	_, err = venv.Step(ctx, [][]float64{{0}, {0}, {0}, {0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step env 2")
}

func TestCloseClosesEnvs(t *testing.T) {
	envs, raw := newEnvs(3, 10)
	venv, err := New(envs, Options{})
	require.NoError(t, err)

	require.NoError(t, venv.Close())
	require.NoError(t, venv.Close())
	for _, env := range raw {
		assert.True(t, env.closed.Load())
	}
	_, err = venv.Reset(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil, Options{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}
