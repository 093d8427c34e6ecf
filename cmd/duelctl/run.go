package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duelrl/pkg/duelrl"
)

type runFlags struct {
	runID          string
	env            string
	agentIdx       int
	opponent       string
	policy         string
	numEnvs        int
	workers        int
	totalTimesteps int64
	reportEvery    int64
	seed           int64
	normalize      bool
	rewardSource   string
	annealFrac     float64
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one rollout and record its outcome reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := f.request(cmd, opts.configPath)
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s timesteps=%d games=%d win0=%d win1=%d ties=%d rew_shape=%.4f\n",
				summary.RunID,
				summary.Timesteps,
				summary.Lifetime.Games,
				summary.Lifetime.Win0,
				summary.Lifetime.Win1,
				summary.Lifetime.Ties,
				summary.FinalCoefficient,
			)
			if summary.ArtifactsDir != "" {
				fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.runID, "run-id", "", "run id (generated when empty)")
	flags.StringVar(&f.env, "env", "", "environment name")
	flags.IntVar(&f.agentIdx, "agent-idx", 0, "slot held by the background agent (0 or 1)")
	flags.StringVar(&f.opponent, "opponent", "", "background agent: constant|random|recurrent")
	flags.StringVar(&f.policy, "policy", "", "foreground policy: zero|random|forward")
	flags.IntVar(&f.numEnvs, "num-envs", 0, "parallel environment copies")
	flags.IntVar(&f.workers, "workers", 0, "concurrent env steps (0 = one per env)")
	flags.Int64Var(&f.totalTimesteps, "timesteps", 0, "total vectorized ticks")
	flags.Int64Var(&f.reportEvery, "report-every", 0, "ticks between outcome reports")
	flags.Int64Var(&f.seed, "seed", 0, "random seed")
	flags.BoolVar(&f.normalize, "normalize", true, "normalize background observations and rewards")
	flags.StringVar(&f.rewardSource, "reward-source", "", "background reward: remaining|shaped")
	flags.Float64Var(&f.annealFrac, "anneal-frac", 0, "linearly anneal the dense weight over this fraction of the run")
	return cmd
}

// request maps the flags the user actually set onto a run request so that
// unset flags keep the configuration file values.
func (f *runFlags) request(cmd *cobra.Command, configPath string) duelrl.RunRequest {
	req := duelrl.RunRequest{
		ConfigPath:     configPath,
		RunID:          f.runID,
		Env:            f.env,
		Opponent:       f.opponent,
		Policy:         f.policy,
		NumEnvs:        f.numEnvs,
		Workers:        f.workers,
		TotalTimesteps: f.totalTimesteps,
		ReportEvery:    f.reportEvery,
		RewardSource:   f.rewardSource,
	}
	flags := cmd.Flags()
	if flags.Changed("agent-idx") {
		idx := f.agentIdx
		req.AgentIdx = &idx
	}
	if flags.Changed("seed") {
		seed := f.seed
		req.Seed = &seed
	}
	if flags.Changed("normalize") {
		normalize := f.normalize
		req.Normalize = &normalize
	}
	if flags.Changed("anneal-frac") {
		frac := f.annealFrac
		req.AnnealFrac = &frac
	}
	return req
}
