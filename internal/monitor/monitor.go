// Package monitor owns the process's single Aggregator. Events from the
// channel client and the controller are applied strictly in arrival order on
// one goroutine; readers get the latest snapshot without blocking it for long.
package monitor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/metrics"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// ErrStopped is returned by Deliver once Run has returned.
var ErrStopped = errors.New("monitor stopped")

const defaultInboxSize = 256

// Monitor serializes event delivery into an Aggregator.
type Monitor struct {
	agg     *progress.Aggregator
	emitter progress.Emitter
	inbox   chan envelope
	logger  *zap.Logger

	mu     sync.RWMutex
	latest progress.Snapshot

	done     chan struct{}
	stopOnce sync.Once
}

type envelope struct {
	evt   progress.Event
	reply chan<- progress.Snapshot
}

// New wraps agg. Every applied snapshot is handed to emitter, which must not
// block (progress.Hub does not).
func New(agg *progress.Aggregator, emitter progress.Emitter, inboxSize int, logger *zap.Logger) *Monitor {
	if agg == nil {
		agg = progress.NewAggregator()
	}
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		agg:     agg,
		emitter: emitter,
		inbox:   make(chan envelope, inboxSize),
		logger:  logger.Named("monitor"),
		latest:  agg.Snapshot(),
		done:    make(chan struct{}),
	}
}

// Run applies queued events until ctx is cancelled. Events still queued at
// that point are dropped.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stopOnce.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			if n := len(m.inbox); n > 0 {
				m.logger.Warn("dropping queued events on shutdown", zap.Int("count", n))
			}
			return nil
		case env := <-m.inbox:
			snap := m.apply(env.evt)
			if env.reply != nil {
				env.reply <- snap
			}
			metrics.SetInboxDepth(len(m.inbox))
		}
	}
}

func (m *Monitor) apply(evt progress.Event) progress.Snapshot {
	m.mu.Lock()
	snap := m.agg.Apply(evt)
	m.latest = snap
	m.mu.Unlock()

	if m.emitter != nil {
		m.emitter.Emit(snap)
	}
	return snap
}

// Deliver queues evt for Run. It blocks while the inbox is full, until ctx
// ends or the monitor stops.
func (m *Monitor) Deliver(ctx context.Context, evt progress.Event) error {
	return m.enqueue(ctx, envelope{evt: evt})
}

// Submit queues evt and waits until it has been applied, returning the
// resulting snapshot. Events queued earlier are applied first.
func (m *Monitor) Submit(ctx context.Context, evt progress.Event) (progress.Snapshot, error) {
	reply := make(chan progress.Snapshot, 1)
	if err := m.enqueue(ctx, envelope{evt: evt, reply: reply}); err != nil {
		return progress.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return progress.Snapshot{}, ctx.Err()
	case <-m.done:
		return progress.Snapshot{}, ErrStopped
	}
}

func (m *Monitor) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.inbox <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// Snapshot returns the snapshot produced by the most recently applied event.
func (m *Monitor) Snapshot() progress.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// LogSince returns retained log lines with a sequence number above seq.
func (m *Monitor) LogSince(seq uint64) []progress.LogLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agg.LogSince(seq)
}

// Done is closed when Run returns.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}
