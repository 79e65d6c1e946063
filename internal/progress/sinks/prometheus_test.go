package sinks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures gauges and counters follow the snapshots.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	snaps := replay(t, completedSession(uuid.New())...)
	require.NoError(t, sink.Consume(context.Background(), snaps[:5]))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionActive))
	require.Equal(t, 16.0, testutil.ToFloat64(sink.overallPercent))
	require.Equal(t, 50.0, testutil.ToFloat64(sink.taskPercent))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.tasksTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.connection.WithLabelValues("connected")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.connection.WithLabelValues("reconnecting")))

	require.NoError(t, sink.Consume(context.Background(), snaps[5:]))

	require.Equal(t, float64(len(snaps)), testutil.ToFloat64(sink.snapshots))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsFinished.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionActive))
	require.Equal(t, 100.0, testutil.ToFloat64(sink.overallPercent))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.tasksCompleted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.articlesSaved))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sessionRuntime, "searchmon_session_runtime_seconds"))
	require.Positive(t, testutil.ToFloat64(sink.logLines.WithLabelValues(string(progress.LevelInfo))))
}

// TestPrometheusSinkRejectsDuplicateRegistration reports collector conflicts.
func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}
