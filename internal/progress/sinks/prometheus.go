package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// PrometheusSink exports the latest snapshot as gauges and counts session
// outcomes.
type PrometheusSink struct {
	snapshots        prometheus.Counter
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionRuntime   *prometheus.HistogramVec

	overallPercent prometheus.Gauge
	taskPercent    prometheus.Gauge
	tasksTotal     prometheus.Gauge
	tasksCompleted prometheus.Gauge
	articlesSaved  prometheus.Gauge
	sessionActive  prometheus.Gauge
	connection     *prometheus.GaugeVec
	logLines       *prometheus.CounterVec

	tracker tracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchmon_snapshots_total",
			Help: "Snapshots delivered to sinks.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchmon_sessions_started_total",
			Help: "Search sessions that became active.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchmon_sessions_finished_total",
			Help: "Search sessions that ended, partitioned by result.",
		}, []string{"result"}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "searchmon_session_runtime_seconds",
			Help:    "Wall time from submission to the terminal event.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 21600},
		}, []string{"result"}),
		overallPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_overall_percent",
			Help: "Overall progress of the current search.",
		}),
		taskPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_task_percent",
			Help: "Progress within the current task.",
		}),
		tasksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_tasks_total",
			Help: "Known number of tasks in the current search.",
		}),
		tasksCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_tasks_completed",
			Help: "Tasks completed in the current search.",
		}),
		articlesSaved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_articles_saved",
			Help: "Articles reported saved in the current search.",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchmon_session_active",
			Help: "1 while a search is starting, running or stopping.",
		}),
		connection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "searchmon_connection_state",
			Help: "1 for the current event channel state, 0 otherwise.",
		}, []string{"state"}),
		logLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchmon_log_lines_total",
			Help: "Log lines produced, partitioned by level.",
		}, []string{"level"}),
	}
	for _, collector := range []prometheus.Collector{
		s.snapshots,
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionRuntime,
		s.overallPercent,
		s.taskPercent,
		s.tasksTotal,
		s.tasksCompleted,
		s.articlesSaved,
		s.sessionActive,
		s.connection,
		s.logLines,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch in order.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Snapshot) error {
	for _, snap := range batch {
		s.consumeSnapshot(snap)
	}
	return nil
}

func (s *PrometheusSink) consumeSnapshot(snap progress.Snapshot) {
	c := s.tracker.observe(snap)
	s.snapshots.Inc()
	for _, line := range snap.Lines {
		s.logLines.WithLabelValues(string(line.Level)).Inc()
	}

	if c.started {
		s.sessionsStarted.Inc()
	}
	if c.finished {
		result := string(runStatus(snap.SessionState))
		s.sessionsFinished.WithLabelValues(result).Inc()
		if !snap.StartedAt.IsZero() && snap.UpdatedAt.After(snap.StartedAt) {
			s.sessionRuntime.WithLabelValues(result).Observe(snap.UpdatedAt.Sub(snap.StartedAt).Seconds())
		}
	}
	if snap.SessionState.Active() {
		s.sessionActive.Set(1)
	} else {
		s.sessionActive.Set(0)
	}

	s.overallPercent.Set(float64(snap.OverallPercent))
	s.taskPercent.Set(float64(snap.CurrentTaskPercent))
	s.tasksTotal.Set(float64(snap.TotalTasks))
	s.tasksCompleted.Set(float64(snap.CompletedTaskCount))
	s.articlesSaved.Set(float64(snap.ArticlesSaved))

	if c.connChanged {
		for _, state := range progress.ConnectionStates() {
			v := 0.0
			if state == snap.ConnectionState {
				v = 1
			}
			s.connection.WithLabelValues(state.String()).Set(v)
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
