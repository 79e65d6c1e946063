package main

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/period-search-monitor/internal/periods"
)

// selectorFlags binds the period selector to command flags.
type selectorFlags struct {
	mode        string
	startYear   int
	endYear     int
	decade      string
	granularity string
}

func (f *selectorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", string(periods.ModeAllTime), "period mode: year_range, decade or all_time")
	cmd.Flags().IntVar(&f.startYear, "start-year", 0, "first year for year_range")
	cmd.Flags().IntVar(&f.endYear, "end-year", 0, "last year for year_range")
	cmd.Flags().StringVar(&f.decade, "decade", "", "decade label for decade mode, e.g. 1900-1909")
	cmd.Flags().StringVar(&f.granularity, "granularity", string(periods.GranularityYear), "task granularity: year or decade")
}

func (f *selectorFlags) selector() periods.Selector {
	return periods.Selector{
		Mode:        periods.Mode(f.mode),
		StartYear:   f.startYear,
		EndYear:     f.endYear,
		Decade:      f.decade,
		Granularity: periods.Granularity(f.granularity),
	}
}
