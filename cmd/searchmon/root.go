package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/config"
	"github.com/JakeFAU/period-search-monitor/internal/logging"
)

// appKeyType is the key for storing the loaded app in the command context.
type appKeyType string

const appKey appKeyType = "app"

// app carries what every subcommand needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "searchmon",
		Short: "Follow and control multi-period search jobs.",
		Long: `searchmon tracks a search job that the backend splits into one task per
period. It reconciles the backend's progress events into a single consistent
view, starts and stops jobs, and records each session's outcome.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a := &app{cfg: cfg}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newStartCmd(),
		newStopCmd(),
		newPlanCmd(),
	)
	return cmd
}

// resolveApp returns the app loaded by the root command and builds its logger
// on first use. logFile sends output to a file instead of stderr.
func resolveApp(ctx context.Context, logFile string) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("configuration not loaded")
	}
	if a.logger != nil {
		return a, nil
	}
	var (
		logger *zap.Logger
		err    error
	)
	if logFile != "" {
		logger, err = logging.NewFile(logFile, a.cfg.Logging.Development)
	} else {
		logger, err = logging.New(a.cfg.Logging.Development)
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a.logger = logger
	return a, nil
}
