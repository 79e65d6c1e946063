package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/period-search-monitor/internal/store"
)

// SessionStore implements store.SessionRepository in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]store.SessionRun
	periods  map[uuid.UUID]map[int]store.PeriodResult
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]store.SessionRun),
		periods:  make(map[uuid.UUID]map[int]store.PeriodResult),
	}
}

// UpsertSessionStart inserts the session or marks an existing one running.
func (s *SessionStore) UpsertSessionStart(_ context.Context, run store.SessionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[run.ID]; ok {
		existing.Status = store.RunRunning
		existing.FinishedAt = nil
		existing.UpdatedAt = run.UpdatedAt
		s.sessions[run.ID] = existing
		return nil
	}
	run.Status = store.RunRunning
	s.sessions[run.ID] = run
	return nil
}

// CheckpointSession overwrites the progress fields of a known session.
func (s *SessionStore) CheckpointSession(_ context.Context, cp store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[cp.SessionID]
	if !ok {
		return store.ErrNotFound
	}
	run.TotalTasks = cp.TotalTasks
	run.CompletedTasks = cp.CompletedTasks
	run.OverallPercent = cp.OverallPercent
	run.CurrentPeriod = cp.CurrentPeriod
	run.ArticlesSaved = cp.ArticlesSaved
	run.UpdatedAt = cp.At
	s.sessions[cp.SessionID] = run
	return nil
}

// UpsertPeriodResult records the counts of one task, replacing earlier ones.
func (s *SessionStore) UpsertPeriodResult(_ context.Context, res store.PeriodResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[res.SessionID]; !ok {
		return store.ErrNotFound
	}
	byIndex := s.periods[res.SessionID]
	if byIndex == nil {
		byIndex = make(map[int]store.PeriodResult)
		s.periods[res.SessionID] = byIndex
	}
	byIndex[res.TaskIndex] = res
	return nil
}

// FinishSession marks the session terminal.
func (s *SessionStore) FinishSession(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	msg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	ts := finishedAt
	run.FinishedAt = &ts
	run.Status = status
	if msg != nil {
		m := *msg
		run.Message = &m
	}
	run.UpdatedAt = finishedAt
	s.sessions[id] = run
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id uuid.UUID) (store.SessionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.SessionRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListSessions returns sessions newest first.
func (s *SessionStore) ListSessions(
	_ context.Context,
	status *store.RunStatus,
	limit, offset int,
) ([]store.SessionRun, error) {
	s.mu.RLock()
	runs := make([]store.SessionRun, 0, len(s.sessions))
	for _, run := range s.sessions {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListSessionPeriods returns recorded task results in task order.
func (s *SessionStore) ListSessionPeriods(
	_ context.Context,
	id uuid.UUID,
	limit, offset int,
) ([]store.PeriodResult, error) {
	s.mu.RLock()
	byIndex := s.periods[id]
	out := make([]store.PeriodResult, 0, len(byIndex))
	for _, res := range byIndex {
		out = append(out, res)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TaskIndex < out[j].TaskIndex })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
