package duelrl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"duelrl/internal/config"
	"duelrl/internal/model"
	"duelrl/internal/platform"
	"duelrl/internal/stats"
	"duelrl/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultRunsLimit  = 20
)

// Options selects the persistence backend and artifact directories. Empty
// fields fall back to the configuration defaults and DUELRL_* overrides.
type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zap.Logger
}

type Client struct {
	store    storage.Store
	platform *platform.Platform
	log      *zap.Logger

	artifactsDir string
	exportsDir   string
}

// RunRequest describes one rollout. ConfigPath is read first (a missing file
// yields the defaults); non-zero fields then override the file.
type RunRequest struct {
	ConfigPath     string
	RunID          string
	Env            string
	AgentIdx       *int
	Opponent       string
	Policy         string
	NumEnvs        int
	Workers        int
	TotalTimesteps int64
	ReportEvery    int64
	Seed           *int64
	Normalize      *bool
	RewardSource   string
	AnnealFrac     *float64
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	Timesteps        int64
	Lifetime         stats.Outcomes
	Reports          []stats.ReportRow
	Summary          stats.Summary
	FinalCoefficient float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Env            string
	AgentIdx       int
	Opponent       string
	NumEnvs        int
	TotalTimesteps int64
	Seed           int64
	Games          int
	Win0Rate       float64
	Win1Rate       float64
	TieRate        float64
}

type ReportRequest struct {
	RunID  string
	Latest bool
}

type Report struct {
	RunID    string
	Config   stats.RunConfig
	Rows     []stats.ReportRow
	Lifetime stats.Outcomes
	Summary  stats.Summary
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ScalarsRequest struct {
	RunID  string
	Latest bool
	Key    string
}

func New(opts Options) (*Client, error) {
	defaults, err := config.Load("")
	if err != nil {
		return nil, err
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = defaults.Storage.Kind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaults.Storage.Path
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaults.ArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		platform:     platform.New(platform.Options{Store: store, Logger: logger}),
		log:          logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return c.platform.Close()
}

func (c *Client) Init(ctx context.Context) error {
	return c.platform.Init(ctx)
}

// BuildConfig resolves req against its config file without running it.
func (c *Client) BuildConfig(req RunRequest) (*config.Config, error) {
	cfg, err := config.Load(req.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ArtifactsDir = c.artifactsDir
	if req.RunID != "" {
		cfg.RunID = req.RunID
	}
	if req.Env != "" {
		cfg.Env.Name = req.Env
	}
	if req.AgentIdx != nil {
		cfg.AgentIdx = *req.AgentIdx
	}
	if req.Opponent != "" {
		cfg.Opponent = req.Opponent
	}
	if req.Policy != "" {
		cfg.Policy = req.Policy
	}
	if req.NumEnvs != 0 {
		cfg.NumEnvs = req.NumEnvs
	}
	if req.Workers != 0 {
		cfg.Workers = req.Workers
	}
	if req.TotalTimesteps != 0 {
		cfg.TotalTimesteps = req.TotalTimesteps
	}
	if req.ReportEvery != 0 {
		cfg.ReportEvery = req.ReportEvery
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Normalize != nil {
		cfg.Normalize.Enabled = *req.Normalize
	}
	if req.RewardSource != "" {
		cfg.RewardSource = req.RewardSource
	}
	if req.AnnealFrac != nil {
		frac := *req.AnnealFrac
		cfg.Shaping.AnnealFrac = &frac
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := c.BuildConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	out, err := c.platform.Run(ctx, cfg)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:            out.RunID,
		ArtifactsDir:     out.RunDir,
		Timesteps:        out.Timesteps,
		Lifetime:         out.Lifetime,
		Reports:          out.Reports,
		Summary:          out.Summary,
		FinalCoefficient: out.FinalCoefficient,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Env:            e.Env,
			AgentIdx:       e.AgentIdx,
			Opponent:       e.Opponent,
			NumEnvs:        e.NumEnvs,
			TotalTimesteps: e.TotalTimesteps,
			Seed:           e.Seed,
			Games:          e.Games,
			Win0Rate:       e.Win0Rate,
			Win1Rate:       e.Win1Rate,
			TieRate:        e.TieRate,
		})
	}
	return out, nil
}

func (c *Client) Report(_ context.Context, req ReportRequest) (Report, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return Report{}, err
	}
	rows, ok, err := stats.ReadReports(c.artifactsDir, runID)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, fmt.Errorf("reports not found for run %s", runID)
	}
	out := Report{RunID: runID, Rows: rows}
	if out.Config, _, err = stats.ReadRunConfig(c.artifactsDir, runID); err != nil {
		return Report{}, err
	}
	if out.Lifetime, _, err = stats.ReadLifetime(c.artifactsDir, runID); err != nil {
		return Report{}, err
	}
	summary, ok, err := stats.ReadSummary(c.artifactsDir, runID)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		summary = stats.Summarize(rows)
	}
	out.Summary = summary
	return out, nil
}

// Scalars lists the dumped values of one key for a run, oldest first.
func (c *Client) Scalars(ctx context.Context, req ScalarsRequest) ([]model.ScalarRecord, error) {
	if req.Key == "" {
		return nil, errors.New("scalars requires a key")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	return c.platform.Scalars(ctx, runID, req.Key)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	c.log.Info("exported run", zap.String("run_id", runID), zap.String("dir", exportedDir))
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}
