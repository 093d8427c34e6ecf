package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"duelrl/pkg/duelrl"
)

type rootOptions struct {
	configPath   string
	envFile      string
	storeKind    string
	dbPath       string
	artifactsDir string
	exportsDir   string
	verbose      bool

	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "duelctl",
		Short: "Roll out fixed policies against a background opponent in a two-player race",
		Long: `duelctl drives a two-player run-to-goal environment as a single-agent
process: one slot is held by a fixed background agent, the other by a
foreground policy. Outcomes are tallied per report window, logged and
persisted as run artifacts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			config := zap.NewProductionConfig()
			if opts.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "duelrl.yaml", "run configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the configuration")
	flags.StringVar(&opts.storeKind, "store", "", "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "", "sqlite database path")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "", "run artifacts directory")
	flags.StringVar(&opts.exportsDir, "exports-dir", "", "export destination directory")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newReportCmd(opts),
		newScalarsCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// loadEnvFile loads path into the process environment. A missing file is
// not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (o *rootOptions) client(cmd *cobra.Command) (*duelrl.Client, error) {
	client, err := duelrl.New(duelrl.Options{
		StoreKind:    o.storeKind,
		DBPath:       o.dbPath,
		ArtifactsDir: o.artifactsDir,
		ExportsDir:   o.exportsDir,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
