package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duelrl/internal/adapter"
	"duelrl/internal/anneal"
	"duelrl/internal/config"
	"duelrl/internal/kvlog"
	"duelrl/internal/model"
	"duelrl/internal/monitor"
	"duelrl/internal/scape"
	"duelrl/internal/shaping"
	"duelrl/internal/stats"
	"duelrl/internal/storage"
	"duelrl/internal/vecenv"
	"duelrl/internal/zoo"
)

// Extra keys dumped alongside the monitor report.
const (
	KeyRewShape  = shaping.Term
	KeyTimesteps = "timesteps"
)

type Options struct {
	Store  storage.Store
	Logger *zap.Logger
	Now    func() time.Time
}

// RunSummary is the result of one rollout.
type RunSummary struct {
	RunID            string            `json:"run_id"`
	Timesteps        int64             `json:"timesteps"`
	Lifetime         stats.Outcomes    `json:"lifetime"`
	Reports          []stats.ReportRow `json:"reports"`
	Summary          stats.Summary     `json:"summary"`
	FinalCoefficient float64           `json:"final_rew_shape"`
	RunDir           string            `json:"run_dir,omitempty"`
}

// Platform owns the store and runs rollouts against it.
type Platform struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	started bool
}

func New(opts Options) *Platform {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Platform{store: opts.Store, log: logger, now: now}
}

func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	return storage.CloseIfSupported(p.store)
}

func (p *Platform) Runs(ctx context.Context) ([]model.RunRecord, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p.store.ListRuns(ctx)
}

func (p *Platform) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	if err := p.Init(ctx); err != nil {
		return model.RunRecord{}, false, err
	}
	return p.store.GetRun(ctx, runID)
}

func (p *Platform) Scalars(ctx context.Context, runID, key string) ([]model.ScalarRecord, error) {
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p.store.ListScalars(ctx, runID, key)
}

// rollout is the wired stack of one run.
type rollout struct {
	cfg     *config.Config
	runID   string
	sched   *anneal.Scheduler
	kv      *kvlog.Logger
	venv    *vecenv.VecEnv
	monitor *monitor.Monitor
	policy  Policy
}

// Run builds the environment stack from cfg and steps it for
// cfg.TotalTimesteps ticks, reporting every cfg.ReportEvery ticks.
func (p *Platform) Run(ctx context.Context, cfg *config.Config) (RunSummary, error) {
	if cfg == nil {
		return RunSummary{}, fmt.Errorf("%w: run config is required", model.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := p.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	r, err := p.build(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	defer func() {
		if err := r.venv.Close(); err != nil {
			p.log.Warn("close vec env", zap.Error(err))
		}
	}()

	log := p.log.With(zap.String("run_id", r.runID))
	log.Info("rollout started",
		zap.String("env", cfg.Env.Name),
		zap.Int("agent_idx", cfg.AgentIdx),
		zap.String("opponent", cfg.Opponent),
		zap.String("policy", cfg.Policy),
		zap.Int("num_envs", cfg.NumEnvs),
		zap.Int64("total_timesteps", cfg.TotalTimesteps),
	)

	createdAt := p.now().UTC()
	obs, err := r.monitor.Reset(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var rows []stats.ReportRow
	for t := int64(1); t <= cfg.TotalTimesteps; t++ {
		if err := ctx.Err(); err != nil {
			return RunSummary{}, err
		}
		actions := make([][]float64, len(obs))
		for i := range obs {
			actions[i] = r.policy.Act(obs[i])
		}
		batch, err := r.monitor.Step(ctx, actions)
		if err != nil {
			return RunSummary{}, fmt.Errorf("tick %d: %w", t, err)
		}
		obs = batch.Observations
		r.sched.Advance(1)

		if t%cfg.ReportEvery == 0 || t == cfg.TotalTimesteps {
			row, err := r.report(ctx, t)
			if err != nil {
				return RunSummary{}, err
			}
			rows = append(rows, row)
			log.Debug("report",
				zap.Int64("step", t),
				zap.Int("games", row.Total),
				zap.Float64("rew_shape", row.Coefficient),
			)
		}
	}

	lifetime := r.monitor.Lifetime()
	out := RunSummary{
		RunID:     r.runID,
		Timesteps: cfg.TotalTimesteps,
		Lifetime: stats.Outcomes{
			Win0:  lifetime.Win0,
			Win1:  lifetime.Win1,
			Ties:  lifetime.Ties,
			Games: lifetime.Games,
		},
		Reports: rows,
		Summary: stats.Summarize(rows),
	}
	out.FinalCoefficient, _ = r.sched.Coefficient(shaping.Term)

	if err := p.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.Versioned(),
		RunID:           r.runID,
		Env:             cfg.Env.Name,
		AgentIdx:        cfg.AgentIdx,
		NumEnvs:         cfg.NumEnvs,
		TotalTimesteps:  cfg.TotalTimesteps,
		Seed:            cfg.Seed,
		CreatedAtUTC:    createdAt.Format(time.RFC3339Nano),
		Final:           r.kv.Snapshot(),
	}); err != nil {
		return RunSummary{}, fmt.Errorf("save run %s: %w", r.runID, err)
	}

	if cfg.ArtifactsDir != "" {
		runDir, err := writeArtifacts(cfg, r.runID, out, createdAt)
		if err != nil {
			return RunSummary{}, err
		}
		out.RunDir = runDir
	}

	log.Info("rollout finished",
		zap.Int("games", out.Lifetime.Games),
		zap.Int("win0", out.Lifetime.Win0),
		zap.Int("win1", out.Lifetime.Win1),
		zap.Int("ties", out.Lifetime.Ties),
		zap.Float64("rew_shape", out.FinalCoefficient),
	)
	return out, nil
}

func (p *Platform) build(cfg *config.Config) (*rollout, error) {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	kv := kvlog.New(runID, p.store, p.log)
	sched := anneal.NewScheduler(nil)
	shaper, err := shaping.New(cfg.Shaping, sched, shaping.Options{
		TotalTimesteps: cfg.TotalTimesteps,
		Metrics:        kv,
	})
	if err != nil {
		return nil, err
	}

	envs := make([]vecenv.Env, cfg.NumEnvs)
	var actDim int
	for i := range envs {
		two, err := scape.NewTwoAgentEnv(cfg.Env.Name, cfg.Env.RunToGoal)
		if err != nil {
			return nil, err
		}
		actDim = two.ActionDim()
		agent, err := zoo.New(cfg.Opponent, two.ObservationDim(), two.ActionDim(), cfg.Seed+int64(i))
		if err != nil {
			return nil, err
		}
		adCfg := cfg.AdapterConfig()
		adCfg.Shaper = shaper
		adCfg.Logger = p.log.With(zap.Int("env_index", i))
		ad, err := adapter.New(two, agent, adCfg)
		if err != nil {
			return nil, err
		}
		envs[i] = ad
	}

	venv, err := vecenv.New(envs, vecenv.Options{Workers: cfg.Workers, Logger: p.log})
	if err != nil {
		return nil, err
	}
	mon, err := monitor.New(venv, cfg.AgentIdx)
	if err != nil {
		_ = venv.Close()
		return nil, err
	}
	policy, err := NewPolicy(cfg.Policy, actDim, cfg.Seed)
	if err != nil {
		_ = venv.Close()
		return nil, err
	}
	return &rollout{
		cfg:     cfg,
		runID:   runID,
		sched:   sched,
		kv:      kv,
		venv:    venv,
		monitor: mon,
		policy:  policy,
	}, nil
}

// report drains the monitor into the kv logger and dumps it. Conditional
// annealers read the dumped values from then on.
func (r *rollout) report(ctx context.Context, step int64) (stats.ReportRow, error) {
	counts := r.monitor.Report(r.kv)
	coef, err := r.sched.Coefficient(shaping.Term)
	if err != nil {
		return stats.ReportRow{}, err
	}
	r.kv.LogKV(KeyRewShape, coef)
	r.kv.LogKV(KeyTimesteps, float64(step))
	if _, err := r.kv.Dump(ctx, step); err != nil {
		return stats.ReportRow{}, err
	}

	row := stats.ReportRow{Step: step, Total: counts.Games, Coefficient: coef}
	if counts.Games > 0 {
		total := float64(counts.Games)
		row.Win0 = float64(counts.Win0) / total
		row.Win1 = float64(counts.Win1) / total
		row.Tie = float64(counts.Ties) / total
	}
	return row, nil
}

func writeArtifacts(cfg *config.Config, runID string, out RunSummary, createdAt time.Time) (string, error) {
	runDir, err := stats.WriteRunArtifacts(cfg.ArtifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Env:            cfg.Env.Name,
			AgentIdx:       cfg.AgentIdx,
			Opponent:       cfg.Opponent,
			Policy:         cfg.Policy,
			NumEnvs:        cfg.NumEnvs,
			Workers:        cfg.Workers,
			TotalTimesteps: cfg.TotalTimesteps,
			ReportEvery:    cfg.ReportEvery,
			Seed:           cfg.Seed,
			Normalize:      cfg.Normalize.Enabled,
			Gamma:          cfg.Normalize.Gamma,
			ClipObs:        cfg.Normalize.ClipObs,
			ClipReward:     cfg.Normalize.ClipReward,
			RewardSource:   cfg.RewardSource,
			Shaping:        cfg.Shaping,
		},
		Reports:  out.Reports,
		Lifetime: out.Lifetime,
		Summary:  out.Summary,
	})
	if err != nil {
		return "", fmt.Errorf("write artifacts: %w", err)
	}

	var win0, win1, tie float64
	if out.Lifetime.Games > 0 {
		total := float64(out.Lifetime.Games)
		win0 = float64(out.Lifetime.Win0) / total
		win1 = float64(out.Lifetime.Win1) / total
		tie = float64(out.Lifetime.Ties) / total
	}
	if err := stats.AppendRunIndex(cfg.ArtifactsDir, stats.RunIndexEntry{
		RunID:          runID,
		Env:            cfg.Env.Name,
		AgentIdx:       cfg.AgentIdx,
		Opponent:       cfg.Opponent,
		NumEnvs:        cfg.NumEnvs,
		TotalTimesteps: cfg.TotalTimesteps,
		Seed:           cfg.Seed,
		Games:          out.Lifetime.Games,
		Win0Rate:       win0,
		Win1Rate:       win1,
		TieRate:        tie,
		CreatedAtUTC:   createdAt.Format(time.RFC3339Nano),
	}); err != nil {
		return "", fmt.Errorf("append run index: %w", err)
	}
	return runDir, nil
}
