package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
	"github.com/JakeFAU/period-search-monitor/internal/store"
)

// StoreSink records session history via a store.SessionRepository. Progress
// checkpoints are collapsed to the last snapshot per session in each batch to
// reduce write amplification.
type StoreSink struct {
	repo    store.SessionRepository
	logger  *zap.Logger
	tracker tracker
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SessionRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger.Named("store_sink")}
}

// Consume writes session starts, finished periods and terminal outcomes as
// they occur, then one checkpoint per session. It respects ctx deadlines and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Snapshot) error {
	if s == nil || s.repo == nil {
		return nil
	}
	checkpoints := make(map[uuid.UUID]store.Checkpoint)
	var order []uuid.UUID

	for _, snap := range batch {
		c := s.tracker.observe(snap)
		if c.id == uuid.Nil {
			continue
		}
		if err := s.handleChange(ctx, c); err != nil {
			return err
		}
		if snap.SessionState.Active() || c.finished {
			if _, ok := checkpoints[c.id]; !ok {
				order = append(order, c.id)
			}
			checkpoints[c.id] = checkpointFrom(c.id, snap)
		}
	}

	for _, id := range order {
		if err := s.repo.CheckpointSession(ctx, checkpoints[id]); err != nil {
			return fmt.Errorf("checkpoint session: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleChange(ctx context.Context, c change) error {
	snap := c.cur
	if c.started || (c.finished && !(c.sameSession && c.prev.SessionState.Active())) {
		run := store.SessionRun{
			ID:         c.id,
			Query:      snap.Query,
			StartedAt:  snap.StartedAt,
			Status:     store.RunRunning,
			TotalTasks: snap.TotalTasks,
			UpdatedAt:  snap.UpdatedAt,
		}
		if run.StartedAt.IsZero() {
			run.StartedAt = snap.UpdatedAt
		}
		if err := s.repo.UpsertSessionStart(ctx, run); err != nil {
			return fmt.Errorf("upsert session start: %w", err)
		}
	}
	if c.taskAdvanced {
		if err := s.repo.UpsertPeriodResult(ctx, periodResult(c.id, c.prev, snap)); err != nil {
			return fmt.Errorf("upsert period result: %w", err)
		}
	}
	if c.finished {
		if snap.SessionState == progress.SessionCompleted && c.sameSession {
			if err := s.repo.UpsertPeriodResult(ctx, periodResult(c.id, c.prev, snap)); err != nil {
				return fmt.Errorf("upsert period result: %w", err)
			}
		}
		var msg *string
		if snap.Message != "" {
			msg = &snap.Message
		}
		if err := s.repo.FinishSession(ctx, c.id, snap.UpdatedAt, runStatus(snap.SessionState), msg); err != nil {
			return fmt.Errorf("finish session: %w", err)
		}
		s.logger.Debug("session recorded",
			zap.Stringer("session_id", c.id),
			zap.Stringer("state", snap.SessionState),
		)
	}
	return nil
}

// periodResult summarizes the task that prev was working on.
func periodResult(id uuid.UUID, prev, cur progress.Snapshot) store.PeriodResult {
	return store.PeriodResult{
		SessionID:    id,
		TaskIndex:    prev.CurrentTaskIndex,
		Period:       prev.CurrentPeriodLabel,
		ResultsTotal: prev.ResultsTotal,
		ItemsSaved:   prev.ItemsSaved,
		ItemsTotal:   prev.ItemsTotal,
		FinishedAt:   cur.UpdatedAt,
	}
}

func checkpointFrom(id uuid.UUID, snap progress.Snapshot) store.Checkpoint {
	return store.Checkpoint{
		SessionID:      id,
		TotalTasks:     snap.TotalTasks,
		CompletedTasks: snap.CompletedTaskCount,
		OverallPercent: snap.OverallPercent,
		CurrentPeriod:  snap.CurrentPeriodLabel,
		ArticlesSaved:  snap.ArticlesSaved,
		At:             snap.UpdatedAt,
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
