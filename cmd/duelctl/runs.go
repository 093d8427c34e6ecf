package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"duelrl/pkg/duelrl"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), duelrl.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created_at=%s env=%s agent_idx=%d opponent=%s envs=%d timesteps=%d seed=%d games=%d win0=%.4f win1=%.4f tie=%.4f\n",
					item.RunID,
					item.CreatedAtUTC,
					item.Env,
					item.AgentIdx,
					item.Opponent,
					item.NumEnvs,
					item.TotalTimesteps,
					item.Seed,
					item.Games,
					item.Win0Rate,
					item.Win1Rate,
					item.TieRate,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	return cmd
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		runID  string
		latest bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the outcome reports of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Report(cmd.Context(), duelrl.ReportRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s opponent=%s policy=%s agent_idx=%d\n",
				report.RunID, report.Config.Opponent, report.Config.Policy, report.Config.AgentIdx)
			for _, row := range report.Rows {
				fmt.Fprintf(out, "step=%d game_win0=%.4f game_win1=%.4f game_tie=%.4f game_total=%d rew_shape=%.4f\n",
					row.Step, row.Win0, row.Win1, row.Tie, row.Total, row.Coefficient)
			}
			s := report.Summary
			fmt.Fprintf(out, "summary reports=%d games=%d win0_mean=%.4f win0_std=%.4f win1_mean=%.4f win1_std=%.4f tie_mean=%.4f\n",
				s.Reports, s.Games, s.Win0Mean, s.Win0Std, s.Win1Mean, s.Win1Std, s.TieMean)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the newest run")
	return cmd
}

func newScalarsCmd(opts *rootOptions) *cobra.Command {
	var (
		runID  string
		latest bool
		key    string
	)
	cmd := &cobra.Command{
		Use:   "scalars",
		Short: "Print the stored values of one logged key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			records, err := client.Scalars(cmd.Context(), duelrl.ScalarsRequest{RunID: runID, Latest: latest, Key: key})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "step=%d %s=%g\n", rec.Step, rec.Key, rec.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the newest run")
	cmd.Flags().StringVar(&key, "key", "game_total", "logged key")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to the exports directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), duelrl.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the newest run")
	cmd.Flags().StringVar(&outDir, "out", "", "destination directory")
	return cmd
}
