// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/period-search-monitor/internal/store"
)

// Schema creates the tables used by SessionStore.
const Schema = `
CREATE TABLE IF NOT EXISTS search_sessions (
	id              uuid PRIMARY KEY,
	query           text NOT NULL DEFAULT '',
	started_at      timestamptz NOT NULL,
	finished_at     timestamptz,
	status          text NOT NULL,
	message         text,
	total_tasks     integer NOT NULL DEFAULT 1,
	completed_tasks integer NOT NULL DEFAULT 0,
	overall_percent integer NOT NULL DEFAULT 0,
	current_period  text NOT NULL DEFAULT '',
	articles_saved  integer NOT NULL DEFAULT 0,
	updated_at      timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS search_session_periods (
	session_id    uuid NOT NULL REFERENCES search_sessions (id) ON DELETE CASCADE,
	task_index    integer NOT NULL,
	period        text NOT NULL,
	results_total integer NOT NULL DEFAULT 0,
	items_saved   integer NOT NULL DEFAULT 0,
	items_total   integer NOT NULL DEFAULT 0,
	finished_at   timestamptz NOT NULL,
	PRIMARY KEY (session_id, task_index)
);`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// SessionStore implements store.SessionRepository using Postgres.
type SessionStore struct {
	pool querier
}

// NewSessionStore connects a pool using cfg.
func NewSessionStore(ctx context.Context, cfg Config) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SessionStore{pool: pool}, nil
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool querier) (*SessionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SessionStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *SessionStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the session tables when they do not exist.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create session schema: %w", err)
	}
	return nil
}

// UpsertSessionStart inserts a session or marks an existing one running again.
func (s *SessionStore) UpsertSessionStart(ctx context.Context, run store.SessionRun) error {
	query := `
		INSERT INTO search_sessions (id, query, started_at, status, total_tasks, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, finished_at = NULL, updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query, run.ID, run.Query, run.StartedAt, store.RunRunning, run.TotalTasks, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session start: %w", err)
	}
	return nil
}

// CheckpointSession overwrites the progress columns of a session.
func (s *SessionStore) CheckpointSession(ctx context.Context, cp store.Checkpoint) error {
	query := `
		UPDATE search_sessions
		SET total_tasks = $1, completed_tasks = $2, overall_percent = $3,
			current_period = $4, articles_saved = $5, updated_at = $6
		WHERE id = $7;
	`
	res, err := s.pool.Exec(ctx, query,
		cp.TotalTasks, cp.CompletedTasks, cp.OverallPercent, cp.CurrentPeriod, cp.ArticlesSaved, cp.At, cp.SessionID)
	if err != nil {
		return fmt.Errorf("failed to checkpoint session: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertPeriodResult records the counts of one finished task.
func (s *SessionStore) UpsertPeriodResult(ctx context.Context, res store.PeriodResult) error {
	query := `
		INSERT INTO search_session_periods
			(session_id, task_index, period, results_total, items_saved, items_total, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, task_index) DO UPDATE
		SET period = EXCLUDED.period, results_total = EXCLUDED.results_total,
			items_saved = EXCLUDED.items_saved, items_total = EXCLUDED.items_total,
			finished_at = EXCLUDED.finished_at;
	`
	_, err := s.pool.Exec(ctx, query,
		res.SessionID, res.TaskIndex, res.Period, res.ResultsTotal, res.ItemsSaved, res.ItemsTotal, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert period result: %w", err)
	}
	return nil
}

// FinishSession marks a session terminal with an optional message.
func (s *SessionStore) FinishSession(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	msg *string,
) error {
	query := `
		UPDATE search_sessions
		SET finished_at = $1, status = $2, message = $3, updated_at = $1
		WHERE id = $4;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, status, msg, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const sessionColumns = `id, query, started_at, finished_at, status, message, total_tasks,
	completed_tasks, overall_percent, current_period, articles_saved, updated_at`

// GetSession retrieves a single session by its ID.
func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (store.SessionRun, error) {
	query := `SELECT ` + sessionColumns + ` FROM search_sessions WHERE id = $1;`
	run, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SessionRun{}, store.ErrNotFound
		}
		return store.SessionRun{}, fmt.Errorf("failed to get session: %w", err)
	}
	return run, nil
}

// ListSessions retrieves sessions newest first, with optional status filtering.
func (s *SessionStore) ListSessions(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.SessionRun, error) {
	query := `SELECT ` + sessionColumns + `
		FROM search_sessions
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	runs := []store.SessionRun{}
	for rows.Next() {
		run, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return runs, nil
}

// ListSessionPeriods retrieves recorded task results in task order.
func (s *SessionStore) ListSessionPeriods(
	ctx context.Context,
	id uuid.UUID,
	limit,
	offset int,
) ([]store.PeriodResult, error) {
	query := `
		SELECT session_id, task_index, period, results_total, items_saved, items_total, finished_at
		FROM search_session_periods
		WHERE session_id = $1
		ORDER BY task_index
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list session periods: %w", err)
	}
	defer rows.Close()

	results := []store.PeriodResult{}
	for rows.Next() {
		var res store.PeriodResult
		err := rows.Scan(
			&res.SessionID,
			&res.TaskIndex,
			&res.Period,
			&res.ResultsTotal,
			&res.ItemsSaved,
			&res.ItemsTotal,
			&res.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list session periods: %w", err)
	}
	return results, nil
}

func scanSession(row pgx.Row) (store.SessionRun, error) {
	var run store.SessionRun
	err := row.Scan(
		&run.ID,
		&run.Query,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Message,
		&run.TotalTasks,
		&run.CompletedTasks,
		&run.OverallPercent,
		&run.CurrentPeriod,
		&run.ArticlesSaved,
		&run.UpdatedAt,
	)
	return run, err
}
