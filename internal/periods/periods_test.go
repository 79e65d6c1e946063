package periods

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlannerPlan(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(0)
	tests := []struct {
		name string
		sel  Selector
		want []string
	}{
		{name: "all time", sel: Selector{Mode: ModeAllTime}, want: []string{"Default"}},
		{name: "empty mode", sel: Selector{}, want: []string{"Default"}},
		{
			name: "years",
			sel:  Selector{Mode: ModeYearRange, StartYear: 1914, EndYear: 1916},
			want: []string{"1914", "1915", "1916"},
		},
		{
			name: "single year",
			sel:  Selector{Mode: ModeYearRange, StartYear: 1914, EndYear: 1914},
			want: []string{"1914"},
		},
		{
			name: "decade buckets clipped",
			sel:  Selector{Mode: ModeYearRange, StartYear: 1905, EndYear: 1921, Granularity: GranularityDecade},
			want: []string{"1905-1909", "1910-1919", "1920-1921"},
		},
		{
			name: "decade bucket of one year",
			sel:  Selector{Mode: ModeYearRange, StartYear: 1909, EndYear: 1910, Granularity: GranularityDecade},
			want: []string{"1909", "1910"},
		},
		{
			name: "decade per year",
			sel:  Selector{Mode: ModeDecade, Decade: "1920-1929"},
			want: []string{"1920", "1921", "1922", "1923", "1924", "1925", "1926", "1927", "1928", "1929"},
		},
		{
			name: "decade as one task",
			sel:  Selector{Mode: ModeDecade, Decade: "1920-1929", Granularity: GranularityDecade},
			want: []string{"1920-1929"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := planner.Plan(tt.sel)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPlannerRejectsInvalidSelectors(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(50)
	for name, sel := range map[string]Selector{
		"end before start": {Mode: ModeYearRange, StartYear: 1920, EndYear: 1910},
		"missing years":    {Mode: ModeYearRange},
		"span too wide":    {Mode: ModeYearRange, StartYear: 1800, EndYear: 1900},
		"bad granularity":  {Mode: ModeYearRange, StartYear: 1900, EndYear: 1901, Granularity: "century"},
		"bad decade":       {Mode: ModeDecade, Decade: "1905-1914"},
		"decade garbage":   {Mode: ModeDecade, Decade: "nineteen-hundreds"},
		"no dash":          {Mode: ModeDecade, Decade: "1900"},
		"unknown mode":     {Mode: "century"},
	} {
		_, err := planner.Plan(sel)
		require.ErrorIs(t, err, ErrInvalidSelector, name)
	}
}
