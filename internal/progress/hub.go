package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchSize: flush once this many snapshots queue (default 64).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 50ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize   int
	MaxBatchSize int
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	BaseContext  context.Context
	Logger       *zap.Logger
}

const (
	defaultBufferSize   = 1024
	defaultMaxBatchSize = 64
	defaultMaxBatchWait = 50 * time.Millisecond
	defaultSinkTimeout  = 10 * time.Second
	dropLogInterval     = 5 * time.Second
)

// Hub batches snapshots and fans them out to registered sinks. It is safe for
// concurrent use. Only terminal snapshots may block callers, and only while
// the buffer is full.
type Hub struct {
	cfg       Config
	sinks     []Sink
	snapshots chan Snapshot
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *zap.Logger
	dropLog   rate.Sometimes
	dropped   atomic.Int64
	closed    atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept snapshots.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:       cfg,
		sinks:     append([]Sink(nil), sinks...),
		snapshots: make(chan Snapshot, cfg.BufferSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger.Named("progress_hub"),
		dropLog:   rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues a Snapshot for batching. If the buffer is full the snapshot
// is dropped and a rate-limited warning is logged. Terminal snapshots are
// the exception: Emit waits up to SinkTimeout for room before dropping one.
func (h *Hub) Emit(s Snapshot) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		return
	}
	if err := s.Validate(); err != nil {
		h.logger.Debug("discarding invalid snapshot", zap.Uint64("seq", s.Seq), zap.Error(err))
		return
	}
	select {
	case h.snapshots <- s:
		return
	default:
	}
	if s.SessionState.Terminal() && h.enqueueTerminal(s) {
		return
	}
	h.dropped.Add(1)
	h.dropLog.Do(func() {
		count := h.dropped.Swap(0)
		h.logger.Warn("snapshots dropped due to backpressure", zap.Int64("dropped", count))
	})
}

func (h *Hub) enqueueTerminal(s Snapshot) bool {
	if h.cfg.SinkTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(h.cfg.SinkTimeout)
	defer timer.Stop()
	select {
	case h.snapshots <- s:
		return true
	case <-h.stopCh:
	case <-timer.C:
	}
	h.logger.Warn("terminal snapshot dropped", zap.Uint64("seq", s.Seq), zap.Stringer("state", s.SessionState))
	return false
}

// Close drains remaining snapshots, flushes sinks, and blocks until the background
// goroutine exits. It is safe to call multiple times; subsequent calls are
// ignored once shutdown begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Snapshot, 0, h.cfg.MaxBatchSize)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case s := <-h.snapshots:
			batch = h.enqueue(batch, s, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.handleStop(batch, timer, &timerActive)
			return
		}
	}
}

func (h *Hub) enqueue(batch []Snapshot, s Snapshot, timer *time.Timer, timerActive *bool) []Snapshot {
	batch = append(batch, s)
	if len(batch) >= h.cfg.MaxBatchSize {
		h.flush(batch)
		batch = batch[:0]
		h.stopTimer(timer, timerActive)
	} else if h.cfg.MaxBatchWait > 0 {
		h.resetTimer(timer, timerActive)
	}
	return batch
}

func (h *Hub) handleStop(batch []Snapshot, timer *time.Timer, timerActive *bool) {
	h.stopTimer(timer, timerActive)
	for {
		select {
		case s := <-h.snapshots:
			batch = append(batch, s)
			if len(batch) >= h.cfg.MaxBatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) resetTimer(timer *time.Timer, timerActive *bool) {
	if h.cfg.MaxBatchWait <= 0 {
		return
	}
	if *timerActive {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	timer.Reset(h.cfg.MaxBatchWait)
	*timerActive = true
}

func (h *Hub) stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}

func (h *Hub) flush(batch []Snapshot) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Snapshot(nil), batch...)
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := baseCtx
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

