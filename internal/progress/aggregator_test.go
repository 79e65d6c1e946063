package progress

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decades = []string{"1900-1909", "1910-1919", "1920-1929"}

type harness struct {
	t   *testing.T
	agg *Aggregator
	ts  time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return &harness{t: t, agg: NewAggregator(opts...), ts: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (h *harness) apply(p Payload) Snapshot {
	h.t.Helper()
	h.ts = h.ts.Add(time.Second)
	s := h.agg.Apply(NewEvent(h.ts, p))
	require.NoError(h.t, s.Validate(), "snapshot %d after %s", s.Seq, p.Kind())
	return s
}

func hasLine(lines []LogLine, level LogLevel, substr string) bool {
	for _, l := range lines {
		if l.Level == level && strings.Contains(l.Message, substr) {
			return true
		}
	}
	return false
}

func numbers(s Snapshot) [8]any {
	return [8]any{
		s.TotalTasks, s.CompletedTaskCount, s.CurrentTaskIndex, s.CurrentPeriodLabel,
		s.CurrentTaskPercent, s.ItemsSaved, s.ItemsTotal, s.OverallPercent,
	}
}

// TestAggregatorDecadeWalkthrough follows a three-period job from announcement to completion.
func TestAggregatorDecadeWalkthrough(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	s := h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})
	assert.Equal(t, SessionRunning, s.SessionState)
	assert.Equal(t, 3, s.TotalTasks)
	assert.Equal(t, 0, s.CompletedTaskCount)
	assert.Equal(t, 0, s.CurrentTaskIndex)
	assert.Equal(t, 0, s.OverallPercent)
	assert.Equal(t, "1900-1909", s.CurrentPeriodLabel)
	assert.Equal(t, "Search started with 3 tasks", s.LastLogLine)

	s = h.apply(Progress{ItemsSaved: Ptr(50), ItemsTotal: Ptr(100)})
	assert.Equal(t, 50, s.CurrentTaskPercent)
	assert.Equal(t, 16, s.OverallPercent)

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(2)})
	assert.Equal(t, 1, s.CompletedTaskCount)
	assert.Equal(t, 1, s.CurrentTaskIndex)
	assert.Equal(t, 0, s.CurrentTaskPercent)
	assert.Equal(t, 0, s.ItemsSaved)
	assert.Equal(t, 0, s.ItemsTotal)
	assert.Equal(t, 33, s.OverallPercent)
	assert.Equal(t, "1910-1919", s.CurrentPeriodLabel)
	assert.Equal(t, "Now processing task 2 of 3: 1910-1919", s.LastLogLine)

	s = h.apply(JobComplete{})
	assert.Equal(t, SessionCompleted, s.SessionState)
	assert.Equal(t, 3, s.CompletedTaskCount)
	assert.Equal(t, 100, s.OverallPercent)
}

// TestAggregatorJobCompleteForcesFullProgress checks completion regardless of earlier numbers.
func TestAggregatorJobCompleteForcesFullProgress(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(10)})
	h.apply(Progress{Percent: Ptr(5)})
	s := h.apply(JobComplete{Message: Ptr("all periods done")})
	assert.Equal(t, 100, s.OverallPercent)
	assert.Equal(t, 10, s.CompletedTaskCount)
	assert.Equal(t, "all periods done", s.Message)
}

// TestAggregatorReconnectionKeepsNumbers verifies connection churn never moves progress.
func TestAggregatorReconnectionKeepsNumbers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(Connecting{})
	h.apply(Connected{})
	h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})
	before := h.apply(Progress{ItemsSaved: Ptr(50), ItemsTotal: Ptr(100)})

	s := h.apply(Disconnected{Reason: "transport close"})
	assert.Equal(t, ConnDisconnected, s.ConnectionState)
	assert.True(t, hasLine(s.Lines, LevelWarn, "transport close"))
	assert.Equal(t, numbers(before), numbers(s))

	s = h.apply(ReconnectAttempt{Attempt: 1})
	assert.Equal(t, ConnReconnecting, s.ConnectionState)
	assert.Equal(t, 1, s.ReconnectAttempts)

	s = h.apply(Reconnected{Attempts: 1})
	assert.Equal(t, ConnConnected, s.ConnectionState)
	assert.Equal(t, numbers(before), numbers(s))
	assert.Equal(t, SessionRunning, s.SessionState)

	// progress resumes from the frozen snapshot without replay
	s = h.apply(Progress{ItemsSaved: Ptr(75), ItemsTotal: Ptr(100)})
	assert.Equal(t, 25, s.OverallPercent)
}

// TestAggregatorReconnectExhausted verifies the terminal connection state leaves the session alone.
func TestAggregatorReconnectExhausted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(Connected{})
	before := h.apply(JobStarted{TotalTasks: Ptr(2)})
	h.apply(Disconnected{})
	for i := 1; i <= 5; i++ {
		h.apply(ReconnectAttempt{Attempt: i})
	}
	s := h.apply(ReconnectFailed{Attempts: 5})
	assert.Equal(t, ConnReconnectFailed, s.ConnectionState)
	assert.Equal(t, SessionRunning, s.SessionState)
	assert.Equal(t, numbers(before), numbers(s))
	assert.Equal(t, "Failed to reconnect to server after 5 attempts", s.LastLogLine)
}

// TestAggregatorMalformedInput walks through partially informative events.
func TestAggregatorMalformedInput(t *testing.T) {
	t.Parallel()

	t.Run("zero total without percent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.apply(Progress{ItemsSaved: Ptr(0), ItemsTotal: Ptr(0)})
		assert.Equal(t, 0, s.CurrentTaskPercent)
		assert.Equal(t, 0, s.OverallPercent)
	})

	t.Run("job started without count uses periods", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		s := h.apply(JobStarted{Periods: decades})
		assert.Equal(t, 3, s.TotalTasks)
	})

	t.Run("job started without count or periods assumes one task", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		s := h.apply(JobStarted{})
		assert.Equal(t, 1, s.TotalTasks)
		assert.True(t, hasLine(s.Lines, LevelWarn, "assuming 1 task"))
	})

	t.Run("progress without fields keeps numbers", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		before := h.apply(Progress{Percent: Ptr(40)})
		s := h.apply(Progress{Period: Ptr("1950")})
		assert.Equal(t, before.CurrentTaskPercent, s.CurrentTaskPercent)
		assert.Equal(t, "1950", s.CurrentPeriodLabel)
		assert.True(t, hasLine(s.Lines, LevelWarn, "no counts or percent"))
	})

	t.Run("task change without index", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.apply(TaskChanged{TotalTasks: Ptr(4)})
		assert.Equal(t, 4, s.TotalTasks)
		assert.Equal(t, 0, s.CompletedTaskCount)
		assert.True(t, hasLine(s.Lines, LevelWarn, "without a task index"))
	})

	t.Run("decoder diagnostics are logged", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.agg.Apply(Event{
			TS:          h.ts,
			Payload:     Progress{ItemsSaved: Ptr(5)},
			Diagnostics: []string{"itemsTotal: not a number"},
		})
		assert.True(t, hasLine(s.Lines, LevelWarn, "malformed progress event: itemsTotal: not a number"))
		assert.Equal(t, 5, s.ItemsSaved)
		assert.Equal(t, 0, s.CurrentTaskPercent)
	})

	t.Run("unknown and empty events", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		before := h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.apply(Unknown{Name: "mongodb_progress"})
		assert.True(t, hasLine(s.Lines, LevelWarn, `"mongodb_progress"`))
		assert.Equal(t, numbers(before), numbers(s))
		s = h.agg.Apply(Event{TS: h.ts})
		assert.Equal(t, KindUnknown, s.Kind)
		assert.Equal(t, numbers(before), numbers(s))
	})

	t.Run("out of range values are clamped", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.apply(Progress{ItemsSaved: Ptr(120), ItemsTotal: Ptr(100)})
		assert.Equal(t, 100, s.ItemsSaved)
		assert.Equal(t, 100, s.CurrentTaskPercent)
		assert.Equal(t, 50, s.OverallPercent)

		h2 := newHarness(t)
		h2.apply(JobStarted{TotalTasks: Ptr(1)})
		s = h2.apply(Progress{Percent: Ptr(150)})
		assert.Equal(t, 100, s.CurrentTaskPercent)
		assert.True(t, hasLine(s.Lines, LevelWarn, "clamping task percent 150"))
	})
}

// TestAggregatorDirectPercentWins ensures a server percentage is used verbatim over counts.
func TestAggregatorDirectPercentWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(1)})
	s := h.apply(Progress{ItemsSaved: Ptr(1), ItemsTotal: Ptr(4), Percent: Ptr(60)})
	assert.Equal(t, 60, s.CurrentTaskPercent)
	assert.Equal(t, 1, s.ItemsSaved)
	assert.Equal(t, 4, s.ItemsTotal)
	assert.Equal(t, 60, s.OverallPercent)
}

// TestAggregatorTaskChangeReconciliation covers stale, duplicate, skipped and widening task changes.
func TestAggregatorTaskChangeReconciliation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(4)})
	s := h.apply(TaskChanged{CurrentTaskIndex: Ptr(3)})
	assert.Equal(t, 2, s.CompletedTaskCount)
	assert.Equal(t, 50, s.OverallPercent)
	assert.True(t, hasLine(s.Lines, LevelWarn, "missed 1 task change"))

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(2)})
	assert.Equal(t, 2, s.CurrentTaskIndex)
	assert.Equal(t, 50, s.OverallPercent)
	assert.True(t, hasLine(s.Lines, LevelWarn, "stale change to task 2"))

	h.apply(Progress{ItemsSaved: Ptr(10), ItemsTotal: Ptr(20)})
	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(3), Period: Ptr("1922")})
	assert.Equal(t, 50, s.CurrentTaskPercent, "duplicate change must not reset task progress")
	assert.Equal(t, 62, s.OverallPercent)
	assert.Equal(t, "1922", s.CurrentPeriodLabel)

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(6)})
	assert.Equal(t, 6, s.TotalTasks)
	assert.Equal(t, 5, s.CompletedTaskCount)
	assert.Equal(t, 83, s.OverallPercent)

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(6), TotalTasks: Ptr(2)})
	assert.Equal(t, 6, s.TotalTasks, "task count never shrinks")
}

// TestAggregatorHoldsOverallWhenTotalWidens keeps the published percent from dropping.
func TestAggregatorHoldsOverallWhenTotalWidens(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(2)})
	s := h.apply(Progress{Percent: Ptr(100)})
	require.Equal(t, 50, s.OverallPercent)

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(2), TotalTasks: Ptr(10)})
	assert.Equal(t, 10, s.TotalTasks)
	assert.Equal(t, 1, s.CompletedTaskCount)
	assert.Equal(t, 50, s.OverallPercent)
	assert.True(t, hasLine(s.Lines, LevelDebug, "holding overall progress at 50%"))

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(7)})
	assert.Equal(t, 60, s.OverallPercent)
}

// TestAggregatorTaskPercentNeverDrops verifies reordered progress within a task is discarded.
func TestAggregatorTaskPercentNeverDrops(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(1)})
	h.apply(Progress{ItemsSaved: Ptr(80), ItemsTotal: Ptr(100)})
	s := h.apply(Progress{ItemsSaved: Ptr(40), ItemsTotal: Ptr(100)})
	assert.Equal(t, 80, s.CurrentTaskPercent)
	assert.Equal(t, 40, s.ItemsSaved, "counts follow the latest event")
	assert.Equal(t, 100, s.ItemsTotal)
}

// TestAggregatorKeepsCountsWhenTotalGrows verifies a larger total is recorded even though the percent is held.
func TestAggregatorKeepsCountsWhenTotalGrows(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(1)})
	h.apply(Progress{ItemsSaved: Ptr(50), ItemsTotal: Ptr(100)})
	s := h.apply(Progress{ItemsSaved: Ptr(60), ItemsTotal: Ptr(200)})
	assert.Equal(t, 60, s.ItemsSaved)
	assert.Equal(t, 200, s.ItemsTotal)
	assert.Equal(t, 50, s.CurrentTaskPercent)
	assert.Equal(t, 50, s.OverallPercent)

	s = h.apply(Progress{ItemsSaved: Ptr(150), ItemsTotal: Ptr(200)})
	assert.Equal(t, 75, s.CurrentTaskPercent)
}

// TestAggregatorNewJobAfterLostCompletion covers a job whose completion was lost while the channel was down.
func TestAggregatorNewJobAfterLostCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})
	h.apply(TaskChanged{CurrentTaskIndex: Ptr(3)})
	before := h.apply(Progress{ItemsSaved: Ptr(90), ItemsTotal: Ptr(100)})
	require.Equal(t, 96, before.OverallPercent)

	s := h.apply(JobStarted{TotalTasks: Ptr(2), Periods: []string{"1950", "1951"}})
	assert.Equal(t, SessionRunning, s.SessionState)
	assert.Equal(t, 2, s.TotalTasks)
	assert.Equal(t, 0, s.CompletedTaskCount)
	assert.Equal(t, 0, s.CurrentTaskIndex)
	assert.Equal(t, 0, s.CurrentTaskPercent)
	assert.Equal(t, 0, s.OverallPercent)
	assert.Equal(t, "1950", s.CurrentPeriodLabel)
	assert.Equal(t, []string{"1950", "1951"}, s.Periods)
	assert.True(t, hasLine(s.Lines, LevelWarn, "never reported completion"))

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(2)})
	assert.Equal(t, 1, s.CompletedTaskCount)
	assert.Equal(t, "1951", s.CurrentPeriodLabel)
	assert.Equal(t, 50, s.OverallPercent)
	assert.False(t, hasLine(s.Lines, LevelWarn, "stale"))
}

// TestAggregatorBackendOnlyEvents covers article totals and the informational year events.
func TestAggregatorBackendOnlyEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(2)})
	s := h.apply(SearchScope{TotalYears: Ptr(3)})
	assert.True(t, hasLine(s.Lines, LevelDebug, "Search covers 3 years"))

	s = h.apply(YearProgress{CurrentYear: Ptr(1), TotalYears: Ptr(3), Percent: Ptr(33)})
	require.Len(t, s.Lines, 1)
	assert.Equal(t, LevelDebug, s.Lines[0].Level)
	assert.Equal(t, 0, s.OverallPercent)

	s = h.apply(TotalArticles{Total: Ptr(40)})
	assert.Equal(t, 40, s.ItemsTotal)
	assert.Equal(t, 0, s.ItemsSaved)
	assert.Empty(t, s.Lines)

	s = h.apply(Progress{ItemsSaved: Ptr(10)})
	assert.Equal(t, 40, s.ItemsTotal)
	assert.Equal(t, 25, s.CurrentTaskPercent)

	s = h.apply(TotalArticles{Total: Ptr(5)})
	assert.Equal(t, 5, s.ItemsSaved)
	assert.True(t, hasLine(s.Lines, LevelWarn, "clamping items saved 10 to total 5"))

	s = h.apply(TotalArticles{})
	assert.True(t, hasLine(s.Lines, LevelWarn, "total_articles without a total"))
}

// TestAggregatorTerminalFreezes ensures numbers stay put after the job ends while logs still flow.
func TestAggregatorTerminalFreezes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})
	h.apply(Progress{ItemsSaved: Ptr(30), ItemsTotal: Ptr(100)})
	stopped := h.apply(JobStopped{Message: Ptr("Search stopped by user")})
	assert.Equal(t, SessionStopped, stopped.SessionState)
	assert.Equal(t, "Search stopped by user", stopped.LastLogLine)
	assert.Equal(t, 10, stopped.OverallPercent)

	for _, p := range []Payload{
		Progress{ItemsSaved: Ptr(90), ItemsTotal: Ptr(100)},
		TaskChanged{CurrentTaskIndex: Ptr(3)},
		PeriodUpdate{Period: Ptr("1920-1929")},
		JobComplete{},
		ArticleSaved{},
	} {
		s := h.apply(p)
		assert.Equal(t, numbers(stopped), numbers(s), "after %s", p.Kind())
		assert.Equal(t, SessionStopped, s.SessionState)
	}

	s := h.apply(LogMessage{Message: Ptr("worker exited\n")})
	assert.Equal(t, "worker exited", s.LastLogLine)
}

// TestAggregatorBackendFailure covers a backend-reported failure.
func TestAggregatorBackendFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(2)})
	s := h.apply(JobFailed{Message: Ptr("scraper crashed")})
	assert.Equal(t, SessionFailed, s.SessionState)
	assert.Equal(t, "scraper crashed", s.Message)
	assert.True(t, hasLine(s.Lines, LevelError, "scraper crashed"))
}

// TestAggregatorControlLifecycle covers submission, acknowledgement, stop and failure.
func TestAggregatorControlLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("acknowledgement before server announcement", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		s := h.apply(SessionSubmitted{SessionID: "s-1", Query: "harvest"})
		assert.Equal(t, SessionStarting, s.SessionState)
		assert.Equal(t, "s-1", s.SessionID)

		s = h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades, Synthetic: true})
		assert.Equal(t, SessionRunning, s.SessionState)
		assert.Equal(t, 3, s.TotalTasks)
		assert.Equal(t, "s-1", s.SessionID)

		s = h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})
		assert.Equal(t, SessionRunning, s.SessionState)
		assert.Equal(t, "s-1", s.SessionID)
		assert.False(t, hasLine(s.Lines, LevelWarn, "never reported completion"))
	})

	t.Run("server confirmation keeps a pending stop and the planned periods", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(SessionSubmitted{SessionID: "s-6"})
		h.apply(JobStarted{TotalTasks: Ptr(2), Periods: []string{"1900", "1901"}, Synthetic: true})
		h.apply(StopRequested{})

		s := h.apply(JobStarted{TotalTasks: Ptr(2)})
		assert.Equal(t, SessionStopping, s.SessionState)
		assert.Equal(t, []string{"1900", "1901"}, s.Periods)
		assert.Equal(t, "1900", s.CurrentPeriodLabel)
		assert.False(t, hasLine(s.Lines, LevelWarn, "never reported completion"))
	})

	t.Run("acknowledgement after server announcement merges", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(SessionSubmitted{SessionID: "s-2"})
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		before := h.apply(Progress{Percent: Ptr(50)})
		require.Equal(t, 25, before.OverallPercent)

		s := h.apply(JobStarted{TotalTasks: Ptr(2), Periods: []string{"1900", "1901"}, Synthetic: true})
		assert.Equal(t, 25, s.OverallPercent)
		assert.Equal(t, 50, s.CurrentTaskPercent)
		assert.Equal(t, []string{"1900", "1901"}, s.Periods)
		assert.Equal(t, "1900", s.CurrentPeriodLabel)
	})

	t.Run("stale acknowledgement after completion is ignored", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(SessionSubmitted{SessionID: "s-3"})
		h.apply(JobStarted{TotalTasks: Ptr(1)})
		h.apply(JobComplete{})
		s := h.apply(JobStarted{TotalTasks: Ptr(1), Synthetic: true})
		assert.Equal(t, SessionCompleted, s.SessionState)
		assert.Equal(t, 100, s.OverallPercent)
	})

	t.Run("stop request then backend stop", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(2)})
		s := h.apply(StopRequested{})
		assert.Equal(t, SessionStopping, s.SessionState)
		s = h.apply(Progress{Percent: Ptr(10)})
		assert.Equal(t, SessionStopping, s.SessionState)
		assert.Equal(t, 10, s.CurrentTaskPercent)
		s = h.apply(JobStopped{})
		assert.Equal(t, SessionStopped, s.SessionState)
		assert.Equal(t, "Search stopped", s.Message)
	})

	t.Run("control failure then resubmission", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(SessionSubmitted{SessionID: "s-4"})
		s := h.apply(ControlFailed{Op: "start", Message: "backend unavailable"})
		assert.Equal(t, SessionFailed, s.SessionState)
		assert.Equal(t, "start failed: backend unavailable", s.Message)

		s = h.apply(SessionSubmitted{SessionID: "s-5"})
		assert.Equal(t, SessionStarting, s.SessionState)
		assert.Equal(t, "s-5", s.SessionID)
		assert.Empty(t, s.Message)
		assert.Equal(t, 1, s.TotalTasks)
		assert.Equal(t, 0, s.OverallPercent)
	})

	t.Run("new server announcement after completion resets", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.apply(JobStarted{TotalTasks: Ptr(1)})
		h.apply(JobComplete{})
		s := h.apply(JobStarted{TotalTasks: Ptr(4)})
		assert.Equal(t, SessionRunning, s.SessionState)
		assert.Equal(t, 4, s.TotalTasks)
		assert.Equal(t, 0, s.OverallPercent)
	})
}

// TestAggregatorAdoptsRunningJob checks that progress seen before any announcement starts tracking.
func TestAggregatorAdoptsRunningJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	s := h.apply(Progress{ItemsSaved: Ptr(5), ItemsTotal: Ptr(10)})
	assert.Equal(t, SessionRunning, s.SessionState)
	assert.Equal(t, 50, s.OverallPercent)
	assert.True(t, hasLine(s.Lines, LevelWarn, "before job_started"))

	s = h.apply(OverallProgress{Value: Ptr(12), CurrentTask: Ptr(1), TotalTasks: Ptr(4)})
	assert.Equal(t, 4, s.TotalTasks)
	assert.Equal(t, 50, s.OverallPercent, "widened total holds the published value")
}

// TestAggregatorInformationalCounts verifies results and article counters do not move percentages.
func TestAggregatorInformationalCounts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.apply(JobStarted{TotalTasks: Ptr(2), Periods: []string{"1900", "1901"}})
	s := h.apply(ResultsCount{Total: Ptr(812), MaxArticles: Ptr(50), Period: Ptr("1900")})
	assert.Equal(t, 812, s.ResultsTotal)
	assert.Equal(t, 50, s.MaxArticles)
	assert.Equal(t, 0, s.OverallPercent)

	s = h.apply(ArticleSaved{Path: Ptr("out/1900/a.json")})
	assert.Equal(t, 1, s.ArticlesSaved)
	assert.True(t, hasLine(s.Lines, LevelInfo, "Article saved to: out/1900/a.json"))
	assert.Equal(t, "Article saved to: out/1900/a.json", s.LastLogLine)

	s = h.apply(ArticleSaved{Period: Ptr("1900")})
	assert.Equal(t, "Article saved for 1900", s.LastLogLine)
	s = h.apply(ArticleSaved{})
	assert.Equal(t, 3, s.ArticlesSaved)
	assert.Equal(t, "Article saved", s.LastLogLine)

	s = h.apply(TaskChanged{CurrentTaskIndex: Ptr(2)})
	assert.Equal(t, 0, s.ResultsTotal)
	assert.Equal(t, 3, s.ArticlesSaved)
}

// TestAggregatorLogHistory verifies the bounded log ring and sequence numbers.
func TestAggregatorLogHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithLogCapacity(3))

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		h.apply(LogMessage{Message: Ptr(msg)})
	}
	lines := h.agg.Log()
	require.Len(t, lines, 3)
	assert.Equal(t, "three", lines[0].Message)
	assert.Equal(t, uint64(5), lines[2].Seq)

	since := h.agg.LogSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, "five", since[0].Message)

	s := h.apply(LogMessage{Message: Ptr("disk full"), Level: Ptr(LevelError)})
	assert.Equal(t, uint64(6), s.LogSeq)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, LevelError, s.Lines[0].Level)
	assert.Equal(t, h.ts, s.Lines[0].TS)
}

// TestAggregatorDeterministic applies one sequence twice and expects identical snapshots.
func TestAggregatorDeterministic(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0).UTC()
	events := []Event{
		NewEvent(ts, Connected{}),
		NewEvent(ts.Add(time.Second), JobStarted{TotalTasks: Ptr(3), Periods: decades}),
		NewEvent(ts.Add(2*time.Second), Progress{ItemsSaved: Ptr(7), ItemsTotal: Ptr(9)}),
		NewEvent(ts.Add(3*time.Second), TaskChanged{CurrentTaskIndex: Ptr(2)}),
		NewEvent(ts.Add(4*time.Second), Disconnected{Reason: "ping timeout"}),
		NewEvent(ts.Add(5*time.Second), Reconnected{Attempts: 2}),
		NewEvent(ts.Add(6*time.Second), LogMessage{Message: Ptr("Article saved")}),
	}
	run := func() (Snapshot, []LogLine) {
		agg := NewAggregator()
		var last Snapshot
		for _, evt := range events {
			last = agg.Apply(evt)
		}
		return last, agg.Log()
	}
	s1, log1 := run()
	s2, log2 := run()
	require.Equal(t, s1, s2)
	require.Equal(t, log1, log2)
}

// TestAggregatorOverallMonotonic drives generated well-formed sequences with noise and checks
// the overall percent never drops within a job.
func TestAggregatorOverallMonotonic(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 64; seed++ {
		r := rand.New(rand.NewPCG(seed, seed*7919))
		agg := NewAggregator()
		ts := time.Unix(0, 0)
		prev := -1
		apply := func(p Payload) {
			ts = ts.Add(time.Millisecond)
			s := agg.Apply(NewEvent(ts, p))
			require.NoError(t, s.Validate(), "seed %d", seed)
			require.GreaterOrEqual(t, s.OverallPercent, prev, "seed %d after %s", seed, p.Kind())
			prev = s.OverallPercent
		}

		tasks := 1 + r.IntN(6)
		apply(JobStarted{TotalTasks: Ptr(tasks)})
		for i := 0; i < tasks; i++ {
			if i > 0 {
				apply(TaskChanged{CurrentTaskIndex: Ptr(i + 1), TotalTasks: Ptr(tasks)})
			}
			total := r.IntN(120)
			for saved := 0; saved <= total; saved += 1 + r.IntN(25) {
				if r.IntN(3) == 0 {
					apply(Progress{ItemsSaved: Ptr(saved), ItemsTotal: Ptr(total), Percent: Ptr(TaskPercent(saved, total))})
				} else {
					apply(Progress{ItemsSaved: Ptr(saved), ItemsTotal: Ptr(total)})
				}
				switch r.IntN(8) {
				case 0:
					apply(TaskChanged{CurrentTaskIndex: Ptr(i + 1)})
				case 1:
					apply(JobStarted{TotalTasks: Ptr(tasks), Synthetic: true})
				case 2:
					apply(Disconnected{Reason: "blip"})
					apply(Reconnected{Attempts: 1})
				case 3:
					apply(ResultsCount{Total: Ptr(r.IntN(1000))})
				case 4:
					apply(OverallProgress{Value: Ptr(r.IntN(100)), TotalTasks: Ptr(tasks)})
				}
			}
		}
		apply(JobComplete{})
		require.Equal(t, 100, prev, "seed %d", seed)
	}
}

// TestSnapshotJSON checks that states serialize by name.
func TestSnapshotJSON(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.apply(JobStarted{TotalTasks: Ptr(3), Periods: decades})

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"sessionState":"running"`)
	assert.Contains(t, body, `"connectionState":"disconnected"`)
	assert.Contains(t, body, `"overallPercent":0`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, SessionRunning, back.SessionState)
	assert.Equal(t, decades, back.Periods)
}
