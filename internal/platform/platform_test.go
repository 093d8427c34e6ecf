package platform

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"duelrl/internal/config"
	"duelrl/internal/model"
	"duelrl/internal/monitor"
	"duelrl/internal/stats"
	"duelrl/internal/storage"
	"duelrl/internal/zoo"
)

func raceConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RunID = "run-1"
	cfg.Opponent = zoo.KindConstant
	cfg.Policy = config.PolicyForward
	cfg.AgentIdx = 0
	cfg.NumEnvs = 2
	cfg.Workers = 2
	cfg.TotalTimesteps = 100
	cfg.ReportEvery = 20
	cfg.Storage.Kind = storage.KindMemory
	cfg.ArtifactsDir = filepath.Join(t.TempDir(), "runs")
	return cfg
}

func newTestPlatform(t *testing.T) *Platform {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := New(Options{
		Store:  storage.NewMemoryStore(),
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return fixed },
	})
	require.NoError(t, p.Init(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRunForwardPolicyBeatsStandingOpponent(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, int64(100), out.Timesteps)
	// Speed 0.5 on a track of 10: every episode ends on the 20th step.
	assert.Equal(t, stats.Outcomes{Win1: 10, Games: 10}, out.Lifetime)
	require.Len(t, out.Reports, 5)
	for i, row := range out.Reports {
		assert.Equal(t, int64(20*(i+1)), row.Step)
		assert.Equal(t, 2, row.Total)
		assert.InDelta(t, 1.0, row.Win1, 1e-12)
		assert.InDelta(t, 0.0, row.Win0, 1e-12)
		assert.InDelta(t, 0.5, row.Coefficient, 1e-12)
	}
	assert.InDelta(t, 0.5, out.FinalCoefficient, 1e-12)
	assert.NotEmpty(t, out.RunDir)
}

func TestRunPersistsScalarsAndRunRecord(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	ctx := context.Background()

	_, err := p.Run(ctx, cfg)
	require.NoError(t, err)

	totals, err := p.Scalars(ctx, "run-1", monitor.KeyTotal)
	require.NoError(t, err)
	require.Len(t, totals, 5)
	for _, rec := range totals {
		assert.Equal(t, 2.0, rec.Value)
	}

	run, ok, err := p.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), run.TotalTimesteps)
	assert.Equal(t, "2026-01-02T03:04:05Z", run.CreatedAtUTC)
	assert.Equal(t, 100.0, run.Final[KeyTimesteps])

	runs, err := p.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRunWritesArtifactsAndIndex(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.DirExists(t, out.RunDir)

	rows, ok, err := stats.ReadReports(cfg.ArtifactsDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rows, 5)

	entries, err := stats.ListRunIndex(cfg.ArtifactsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, 10, entries[0].Games)
	assert.InDelta(t, 1.0, entries[0].Win1Rate, 1e-12)

	saved, ok, err := stats.ReadRunConfig(cfg.ArtifactsDir, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, zoo.KindConstant, saved.Opponent)
}

func TestRunFlushesPartialReportWindow(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	cfg.TotalTimesteps = 50
	cfg.ArtifactsDir = ""

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, out.Reports, 3)
	assert.Equal(t, int64(50), out.Reports[2].Step)
	assert.Equal(t, 0, out.Reports[2].Total)
	assert.Empty(t, out.RunDir)
}

func TestRunGeneratesRunID(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	cfg.RunID = ""
	cfg.ArtifactsDir = ""
	cfg.TotalTimesteps = 5
	cfg.ReportEvery = 5

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, out.RunID, 36)
}

func TestRunRecurrentOpponentWithLinearAnnealing(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	cfg.Opponent = zoo.KindRecurrent
	cfg.Policy = config.PolicyRandom
	cfg.ArtifactsDir = ""
	frac := 0.5
	cfg.Shaping.AnnealFrac = &frac

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	// Linear 1 -> 0 over half the run: fully annealed by the end.
	assert.InDelta(t, 0.0, out.FinalCoefficient, 1e-12)
	assert.Greater(t, out.Reports[0].Coefficient, out.Reports[len(out.Reports)-1].Coefficient)
}

func TestRunConditionalAnnealingReadsDumpedWinRate(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	cfg.ArtifactsDir = ""
	start, end := 1.0, 0.0
	cfg.Shaping.Metric = monitor.KeyWin1
	cfg.Shaping.Threshold = 0.5
	cfg.Shaping.Operator = ">"
	cfg.Shaping.MinWait = 10
	cfg.Shaping.DecrementProportion = 0.25
	cfg.Shaping.StartVal = &start
	cfg.Shaping.EndVal = &end

	out, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)

	// No metric before the first dump at tick 20; afterwards every tenth
	// tick lowers the coefficient by a quarter.
	coefs := make([]float64, 0, len(out.Reports))
	for _, row := range out.Reports {
		coefs = append(coefs, row.Coefficient)
	}
	assert.InDeltaSlice(t, []float64{1, 0.5, 0, 0, 0}, coefs, 1e-12)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	cfg.Policy = "sprint"

	_, err := p.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration))

	_, err = p.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestRunHonorsCancellation(t *testing.T) {
	p := newTestPlatform(t)
	cfg := raceConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInitRequiresStore(t *testing.T) {
	p := New(Options{})
	require.Error(t, p.Init(context.Background()))
}
