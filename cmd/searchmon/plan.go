package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/period-search-monitor/internal/periods"
)

type planOutput struct {
	Selector periods.Selector `json:"selector" yaml:"selector"`
	Tasks    int              `json:"tasks" yaml:"tasks"`
	Periods  []string         `json:"periods" yaml:"periods"`
}

func newPlanCmd() *cobra.Command {
	var (
		sel    selectorFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the periods a selector expands to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context(), "")
			if err != nil {
				return err
			}
			planner := periods.NewPlanner(a.cfg.Periods.MaxSpanYears)
			labels, err := planner.Plan(sel.selector())
			if err != nil {
				return err
			}
			out := planOutput{Selector: sel.selector(), Tasks: len(labels), Periods: labels}
			return writePlan(cmd.OutOrStdout(), format, out)
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func writePlan(w io.Writer, format string, out planOutput) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush plan: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
