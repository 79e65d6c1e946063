package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// LogSink mirrors snapshot transitions and log history into structured logs.
// It is useful in headless deployments where nothing renders the snapshots.
type LogSink struct {
	logger  *zap.Logger
	tracker tracker
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("search")}
}

// Consume logs every new log line plus session and connection transitions.
func (s *LogSink) Consume(_ context.Context, batch []progress.Snapshot) error {
	for _, snap := range batch {
		c := s.tracker.observe(snap)
		for _, line := range snap.Lines {
			if ce := s.logger.Check(zapLevel(line.Level), line.Message); ce != nil {
				ce.Write(zap.Uint64("log_seq", line.Seq), zap.Time("event_ts", line.TS))
			}
		}
		if c.stateChanged {
			s.logger.Info("search state changed",
				zap.Stringer("from", c.prev.SessionState),
				zap.Stringer("to", snap.SessionState),
				zap.Stringer("session_id", c.id),
				zap.Int("overall_percent", snap.OverallPercent),
				zap.Int("completed_tasks", snap.CompletedTaskCount),
				zap.Int("total_tasks", snap.TotalTasks),
			)
		}
		if c.connChanged {
			s.logger.Info("event channel state changed",
				zap.Stringer("from", c.prev.ConnectionState),
				zap.Stringer("to", snap.ConnectionState),
				zap.Int("reconnect_attempts", snap.ReconnectAttempts),
			)
		}
		s.logger.Debug("progress snapshot",
			zap.Uint64("seq", snap.Seq),
			zap.String("kind", string(snap.Kind)),
			zap.Int("task_index", snap.CurrentTaskIndex),
			zap.String("period", snap.CurrentPeriodLabel),
			zap.Int("task_percent", snap.CurrentTaskPercent),
			zap.Int("overall_percent", snap.OverallPercent),
		)
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func zapLevel(l progress.LogLevel) zapcore.Level {
	switch l {
	case progress.LevelDebug:
		return zapcore.DebugLevel
	case progress.LevelWarn:
		return zapcore.WarnLevel
	case progress.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
