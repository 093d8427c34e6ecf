// Package config loads rollout configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"duelrl/internal/adapter"
	"duelrl/internal/envid"
	"duelrl/internal/model"
	"duelrl/internal/scape"
	"duelrl/internal/shaping"
	"duelrl/internal/storage"
	"duelrl/internal/zoo"
)

// Foreground policies available to the rollout driver.
const (
	PolicyZero    = "zero"
	PolicyRandom  = "random"
	PolicyForward = "forward"
)

// Environment variables that override file values.
const (
	EnvStore        = "DUELRL_STORE"
	EnvDBPath       = "DUELRL_DB_PATH"
	EnvArtifactsDir = "DUELRL_ARTIFACTS_DIR"
)

type Config struct {
	RunID          string          `yaml:"run_id,omitempty"`
	Env            EnvConfig       `yaml:"env"`
	AgentIdx       int             `yaml:"agent_idx"`
	Opponent       string          `yaml:"opponent"`
	Policy         string          `yaml:"policy"`
	NumEnvs        int             `yaml:"num_envs"`
	Workers        int             `yaml:"workers"`
	TotalTimesteps int64           `yaml:"total_timesteps"`
	ReportEvery    int64           `yaml:"report_every"`
	Seed           int64           `yaml:"seed"`
	Normalize      NormalizeConfig `yaml:"normalize"`
	RewardSource   string          `yaml:"reward_source"`
	RemainingScale float64         `yaml:"remaining_scale"`
	Shaping        shaping.Params  `yaml:"shaping"`
	Storage        StorageConfig   `yaml:"storage"`
	ArtifactsDir   string          `yaml:"artifacts_dir"`
}

type EnvConfig struct {
	Name      string                `yaml:"name"`
	RunToGoal scape.RunToGoalConfig `yaml:"run_to_goal"`
}

type NormalizeConfig struct {
	Enabled    bool    `yaml:"enabled"`
	ClipObs    float64 `yaml:"clip_obs"`
	ClipReward float64 `yaml:"clip_reward"`
	Gamma      float64 `yaml:"gamma"`
	Epsilon    float64 `yaml:"epsilon"`
}

type StorageConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	ad := adapter.DefaultConfig()
	return &Config{
		Env: EnvConfig{
			Name:      envid.RunToGoal,
			RunToGoal: scape.DefaultRunToGoalConfig(),
		},
		AgentIdx:       ad.AgentIdx,
		Opponent:       zoo.KindRecurrent,
		Policy:         PolicyForward,
		NumEnvs:        4,
		TotalTimesteps: 2000,
		ReportEvery:    200,
		Seed:           1,
		Normalize: NormalizeConfig{
			Enabled:    ad.Normalize,
			ClipObs:    ad.ClipObs,
			ClipReward: ad.ClipReward,
			Gamma:      ad.Gamma,
			Epsilon:    ad.Epsilon,
		},
		RewardSource:   ad.RewardSource,
		RemainingScale: ad.RemainingScale,
		Shaping: shaping.Params{
			Weights: map[string]map[string]float64{
				shaping.TypeSparse: {"reward_win": 1},
				shaping.TypeDense:  {"reward_move": 1, "reward_ctrl": 0.1},
			},
		},
		Storage: StorageConfig{
			Kind: storage.DefaultStoreKind(),
			Path: "duelrl.db",
		},
		ArtifactsDir: "runs",
	}
}

// Load reads a YAML file on top of the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			// Weight tables replace the defaults instead of merging into them.
			defaultWeights := cfg.Shaping.Weights
			cfg.Shaping.Weights = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse config %s: %v", model.ErrConfiguration, path, err)
			}
			if cfg.Shaping.Weights == nil {
				cfg.Shaping.Weights = defaultWeights
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if kind := os.Getenv(EnvStore); kind != "" {
		c.Storage.Kind = kind
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Storage.Path = path
	}
	if dir := os.Getenv(EnvArtifactsDir); dir != "" {
		c.ArtifactsDir = dir
	}
}

// AdapterConfig maps the file values onto an adapter configuration. The
// shaper and logger are attached by the caller.
func (c *Config) AdapterConfig() adapter.Config {
	return adapter.Config{
		AgentIdx:       c.AgentIdx,
		Normalize:      c.Normalize.Enabled,
		ClipObs:        c.Normalize.ClipObs,
		ClipReward:     c.Normalize.ClipReward,
		Gamma:          c.Normalize.Gamma,
		Epsilon:        c.Normalize.Epsilon,
		RewardSource:   c.RewardSource,
		RemainingScale: c.RemainingScale,
	}
}

// Validate checks everything that can be checked without building the run.
func (c *Config) Validate() error {
	if envid.Normalize(c.Env.Name) != envid.RunToGoal {
		return fmt.Errorf("%w: unsupported environment: %s (known: %s)", model.ErrConfiguration, c.Env.Name, strings.Join(envid.Known(), ", "))
	}
	if err := model.ValidateAgentIndex(c.AgentIdx); err != nil {
		return err
	}
	if !contains(zoo.Kinds(), strings.ToLower(c.Opponent)) {
		return fmt.Errorf("%w: unsupported opponent: %s (valid: %v)", model.ErrConfiguration, c.Opponent, zoo.Kinds())
	}
	if !contains(Policies(), c.Policy) {
		return fmt.Errorf("%w: unsupported policy: %s (valid: %v)", model.ErrConfiguration, c.Policy, Policies())
	}
	if c.NumEnvs <= 0 {
		return fmt.Errorf("%w: num_envs must be > 0, got %d", model.ErrConfiguration, c.NumEnvs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", model.ErrConfiguration, c.Workers)
	}
	if c.TotalTimesteps <= 0 {
		return fmt.Errorf("%w: total_timesteps must be > 0, got %d", model.ErrConfiguration, c.TotalTimesteps)
	}
	if c.ReportEvery <= 0 {
		return fmt.Errorf("%w: report_every must be > 0, got %d", model.ErrConfiguration, c.ReportEvery)
	}
	if err := shaping.ValidateWeights(c.Shaping.Weights); err != nil {
		return err
	}
	switch c.Storage.Kind {
	case "", storage.KindMemory, storage.KindSQLite:
	default:
		return fmt.Errorf("%w: unsupported store backend: %s", model.ErrConfiguration, c.Storage.Kind)
	}
	ad := c.AdapterConfig()
	if ad.RewardSource == adapter.RewardShaped {
		// The shaper is built later from the same params.
		return validateWithoutShaper(ad)
	}
	return ad.Validate()
}

// Policies lists the foreground policies.
func Policies() []string {
	return []string{PolicyZero, PolicyRandom, PolicyForward}
}

func validateWithoutShaper(ad adapter.Config) error {
	ad.RewardSource = adapter.RewardRemaining
	return ad.Validate()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
