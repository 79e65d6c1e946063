package sinks

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

var decades = []string{"1900-1909", "1910-1919", "1920-1929"}

// replay feeds payloads through a fresh Aggregator and returns every snapshot.
func replay(t *testing.T, payloads ...progress.Payload) []progress.Snapshot {
	t.Helper()
	agg := progress.NewAggregator()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]progress.Snapshot, 0, len(payloads))
	for _, p := range payloads {
		ts = ts.Add(10 * time.Second)
		snap := agg.Apply(progress.NewEvent(ts, p))
		require.NoError(t, snap.Validate())
		out = append(out, snap)
	}
	return out
}

// completedSession is a submitted three-decade search that runs to completion.
func completedSession(id uuid.UUID) []progress.Payload {
	return []progress.Payload{
		progress.Connected{},
		progress.SessionSubmitted{SessionID: id.String(), Query: "flood"},
		progress.JobStarted{TotalTasks: progress.Ptr(3), Periods: decades},
		progress.ResultsCount{Total: progress.Ptr(40)},
		progress.Progress{ItemsSaved: progress.Ptr(5), ItemsTotal: progress.Ptr(10)},
		progress.TaskChanged{CurrentTaskIndex: progress.Ptr(2)},
		progress.Progress{ItemsSaved: progress.Ptr(2), ItemsTotal: progress.Ptr(8)},
		progress.ArticleSaved{},
		progress.JobComplete{},
	}
}
