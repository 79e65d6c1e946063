package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// Publisher sends a JSON-encodable payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Outcome is the message published once per finished session.
type Outcome struct {
	SessionID      string    `json:"sessionId"`
	Query          string    `json:"query,omitempty"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	TotalTasks     int       `json:"totalTasks"`
	CompletedTasks int       `json:"completedTasks"`
	OverallPercent int       `json:"overallPercent"`
	ArticlesSaved  int       `json:"articlesSaved"`
	Periods        []string  `json:"periods,omitempty"`
	StartedAt      time.Time `json:"startedAt,omitzero"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Attributes exposes routing metadata for publishers that support it.
func (o Outcome) Attributes() map[string]string {
	return map[string]string{
		"session_id": o.SessionID,
		"status":     o.Status,
	}
}

// PublishSink notifies downstream systems when a session ends.
type PublishSink struct {
	pub     Publisher
	topic   string
	logger  *zap.Logger
	tracker tracker
}

// NewPublishSink publishes outcomes to topic through pub.
func NewPublishSink(pub Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger.Named("publish_sink")}
}

// Consume publishes one Outcome per session that finished within the batch.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Snapshot) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, snap := range batch {
		c := s.tracker.observe(snap)
		if !c.finished {
			continue
		}
		outcome := Outcome{
			SessionID:      c.id.String(),
			Query:          snap.Query,
			Status:         string(runStatus(snap.SessionState)),
			Message:        snap.Message,
			TotalTasks:     snap.TotalTasks,
			CompletedTasks: snap.CompletedTaskCount,
			OverallPercent: snap.OverallPercent,
			ArticlesSaved:  snap.ArticlesSaved,
			Periods:        snap.Periods,
			StartedAt:      snap.StartedAt,
			FinishedAt:     snap.UpdatedAt,
		}
		id, err := s.pub.Publish(ctx, s.topic, outcome)
		if err != nil {
			return fmt.Errorf("publish session outcome: %w", err)
		}
		s.logger.Info("session outcome published",
			zap.String("session_id", outcome.SessionID),
			zap.String("status", outcome.Status),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
