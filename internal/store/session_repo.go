package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("session record not found")

// RunStatus mirrors the search_sessions status column.
type RunStatus string

// Session statuses persisted in search_sessions.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunStopped, RunFailed:
		return true
	default:
		return false
	}
}

// SessionRun models one row of search_sessions.
type SessionRun struct {
	ID        uuid.UUID
	Query     string
	StartedAt time.Time
	// FinishedAt is nil until the session reaches a terminal status.
	FinishedAt *time.Time
	Status     RunStatus
	// Message holds the final stop or failure reason.
	Message        *string
	TotalTasks     int
	CompletedTasks int
	OverallPercent int
	CurrentPeriod  string
	ArticlesSaved  int
	UpdatedAt      time.Time
}

// Checkpoint is the latest progress of a running session.
type Checkpoint struct {
	SessionID      uuid.UUID
	TotalTasks     int
	CompletedTasks int
	OverallPercent int
	CurrentPeriod  string
	ArticlesSaved  int
	At             time.Time
}

// PeriodResult captures the final counts of one task of a session.
type PeriodResult struct {
	SessionID    uuid.UUID
	TaskIndex    int
	Period       string
	ResultsTotal int
	ItemsSaved   int
	ItemsTotal   int
	FinishedAt   time.Time
}

// SessionRepository persists an audit trail of search sessions. It is write
// mostly: the monitor never restores live state from it.
type SessionRepository interface {
	// UpsertSessionStart inserts the session or marks it running again.
	UpsertSessionStart(ctx context.Context, run SessionRun) error
	// CheckpointSession overwrites the progress columns of a session.
	CheckpointSession(ctx context.Context, cp Checkpoint) error
	// UpsertPeriodResult records the final counts for one task.
	UpsertPeriodResult(ctx context.Context, res PeriodResult) error
	// FinishSession marks the session terminal with an optional message.
	FinishSession(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, msg *string) error

	// GetSession loads a single session or returns ErrNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (SessionRun, error)
	// ListSessions returns sessions, newest first, filtered by optional status.
	ListSessions(ctx context.Context, status *RunStatus, limit, offset int) ([]SessionRun, error)
	// ListSessionPeriods returns the recorded task results of a session in task order.
	ListSessionPeriods(ctx context.Context, id uuid.UUID, limit, offset int) ([]PeriodResult, error)
}
