package sinks

import (
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
	"github.com/JakeFAU/period-search-monitor/internal/store"
)

// change describes how a snapshot differs from the one a sink saw before it.
type change struct {
	cur  progress.Snapshot
	prev progress.Snapshot
	id   uuid.UUID

	sameSession  bool
	started      bool
	finished     bool
	stateChanged bool
	connChanged  bool
	taskAdvanced bool
}

// tracker remembers the previous snapshot consumed by one sink.
type tracker struct {
	mu     sync.Mutex
	prev   progress.Snapshot
	prevID uuid.UUID
	seen   bool
}

func (t *tracker) observe(s progress.Snapshot) change {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := s.SessionUUID()
	c := change{cur: s, prev: t.prev, id: id}
	sameSession := t.seen && id == t.prevID
	c.sameSession = sameSession
	c.started = s.SessionState.Active() && (!sameSession || !t.prev.SessionState.Active())
	c.finished = s.SessionState.Terminal() && (!sameSession || !t.prev.SessionState.Terminal())
	c.stateChanged = !t.seen || s.SessionState != t.prev.SessionState || !sameSession
	c.connChanged = !t.seen || s.ConnectionState != t.prev.ConnectionState
	c.taskAdvanced = sameSession && s.CurrentTaskIndex > t.prev.CurrentTaskIndex

	t.prev = s
	t.prevID = id
	t.seen = true
	return c
}

// runStatus maps a session state onto the persisted status.
func runStatus(state progress.SessionState) store.RunStatus {
	switch state {
	case progress.SessionCompleted:
		return store.RunCompleted
	case progress.SessionStopped:
		return store.RunStopped
	case progress.SessionFailed:
		return store.RunFailed
	default:
		return store.RunRunning
	}
}
