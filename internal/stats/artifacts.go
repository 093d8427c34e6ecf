package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"duelrl/internal/shaping"
)

const (
	runIndexFile = "run_index.json"
	configFile   = "config.json"
	summaryFile  = "summary.json"
	reportsFile  = "reports.csv"
	lifetimeFile = "lifetime.json"
)

type RunConfig struct {
	RunID          string         `json:"run_id"`
	Env            string         `json:"env"`
	AgentIdx       int            `json:"agent_idx"`
	Opponent       string         `json:"opponent"`
	Policy         string         `json:"policy"`
	NumEnvs        int            `json:"num_envs"`
	Workers        int            `json:"workers"`
	TotalTimesteps int64          `json:"total_timesteps"`
	ReportEvery    int64          `json:"report_every"`
	Seed           int64          `json:"seed"`
	Normalize      bool           `json:"normalize"`
	Gamma          float64        `json:"gamma"`
	ClipObs        float64        `json:"clip_obs"`
	ClipReward     float64        `json:"clip_reward"`
	RewardSource   string         `json:"reward_source"`
	Shaping        shaping.Params `json:"shaping"`
}

// Outcomes is a win/tie tally.
type Outcomes struct {
	Win0  int `json:"win0"`
	Win1  int `json:"win1"`
	Ties  int `json:"ties"`
	Games int `json:"games"`
}

type RunArtifacts struct {
	Config   RunConfig   `json:"config"`
	Reports  []ReportRow `json:"reports"`
	Lifetime Outcomes    `json:"lifetime"`
	Summary  Summary     `json:"summary"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Env            string  `json:"env"`
	AgentIdx       int     `json:"agent_idx"`
	Opponent       string  `json:"opponent"`
	NumEnvs        int     `json:"num_envs"`
	TotalTimesteps int64   `json:"total_timesteps"`
	Seed           int64   `json:"seed"`
	Games          int     `json:"games"`
	Win0Rate       float64 `json:"win0_rate"`
	Win1Rate       float64 `json:"win1_rate"`
	TieRate        float64 `json:"tie_rate"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, lifetimeFile), artifacts.Lifetime); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	if err := WriteReports(runDir, artifacts.Reports); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	order := make(map[string]int, len(entries))
	for i, e := range entries {
		order[e.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			// Later appended entries first for equal timestamps.
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// readRunIndex returns entries in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok || entries == nil {
		return []RunIndexEntry{}, nil
	}
	return entries, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, reportsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{summaryFile, lifetimeFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func ReadSummary(baseDir, runID string) (Summary, bool, error) {
	var summary Summary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

func ReadLifetime(baseDir, runID string) (Outcomes, bool, error) {
	var lifetime Outcomes
	ok, err := readJSON(filepath.Join(baseDir, runID, lifetimeFile), &lifetime)
	return lifetime, ok, err
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
