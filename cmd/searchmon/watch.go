package main

import (
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/ui"
)

func newWatchCmd() *cobra.Command {
	var (
		logFile  string
		tailSize int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render live search progress in the terminal",
		Long: `Runs the same event pipeline as serve but renders progress bars and a
log tail in the terminal instead of serving HTTP. Logs go to --log-file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context(), logFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			program := tea.NewProgram(ui.NewModel("searchmon", tailSize), tea.WithContext(ctx))
			p, err := buildPipeline(ctx, a.cfg, a.logger, ui.NewSink(program))
			if err != nil {
				return err
			}
			p.start(ctx)

			_, runErr := program.Run()
			interrupted := ctx.Err() != nil
			stop()
			p.shutdown()
			if runErr != nil && !interrupted {
				return fmt.Errorf("run terminal ui: %w", runErr)
			}
			a.logger.Info("watch finished", zap.Uint64("last_seq", p.monitor.Snapshot().Seq))
			return nil
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "searchmon.log", "file that receives log output")
	cmd.Flags().IntVar(&tailSize, "tail", 8, "number of log lines shown")
	return cmd
}
