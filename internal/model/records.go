package model

// ScalarRecord is one key/value pair dumped by the logging sink at a given
// training step.
type ScalarRecord struct {
	VersionedRecord
	RunID        string  `json:"run_id"`
	Step         int64   `json:"step"`
	Key          string  `json:"key"`
	Value        float64 `json:"value"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// RunRecord summarizes one rollout run.
type RunRecord struct {
	VersionedRecord
	RunID          string             `json:"run_id"`
	Env            string             `json:"env"`
	AgentIdx       int                `json:"agent_idx"`
	NumEnvs        int                `json:"num_envs"`
	TotalTimesteps int64              `json:"total_timesteps"`
	Seed           int64              `json:"seed"`
	CreatedAtUTC   string             `json:"created_at_utc"`
	Final          map[string]float64 `json:"final,omitempty"`
}
