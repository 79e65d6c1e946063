package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/period-search-monitor/internal/control"
	"github.com/JakeFAU/period-search-monitor/internal/periods"
)

func newStartCmd() *cobra.Command {
	var (
		sel         selectorFlags
		query       string
		correction  string
		cantons     string
		maxArticles int
		startFrom   int
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask the backend to start a search",
		Long: `Sends a single start request to the backend and prints its answer. The
selector is planned locally first so invalid ranges never reach the backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context(), "")
			if err != nil {
				return err
			}
			req := control.StartRequest{
				Query:            query,
				PeriodSelector:   sel.selector(),
				CorrectionMethod: correction,
				Cantons:          strings.Fields(cantons),
			}
			if cmd.Flags().Changed("max-articles") {
				req.MaxArticles = &maxArticles
			}
			if cmd.Flags().Changed("start-from") {
				req.StartFrom = &startFrom
			}
			if err := req.Validate(); err != nil {
				return err
			}
			planned, err := periods.NewPlanner(a.cfg.Periods.MaxSpanYears).Plan(req.PeriodSelector)
			if err != nil {
				return err
			}
			client, err := newControlClient(a.cfg, a.logger)
			if err != nil {
				return err
			}
			resp, err := client.StartJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			if len(resp.Periods) == 0 {
				resp.Periods = planned
			}
			return printJSON(cmd, resp)
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&query, "query", "", "search terms")
	cmd.Flags().StringVar(&correction, "correction", "none", "text correction method applied by the backend")
	cmd.Flags().StringVar(&cantons, "cantons", "", "space separated canton codes")
	cmd.Flags().IntVar(&maxArticles, "max-articles", 0, "articles to save per period")
	cmd.Flags().IntVar(&startFrom, "start-from", 0, "1-based result to resume the first period from")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the backend to stop the running search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context(), "")
			if err != nil {
				return err
			}
			client, err := newControlClient(a.cfg, a.logger)
			if err != nil {
				return err
			}
			resp, err := client.StopJob(cmd.Context())
			if err != nil {
				return err
			}
			if resp.Message == "" {
				resp.Message = control.DefaultStopMessage
			}
			return printJSON(cmd, resp)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}
