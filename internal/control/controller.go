package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/periods"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

var (
	// ErrJobRunning is returned by Start while a session is active.
	ErrJobRunning = errors.New("a search is already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("no search is running")
)

// DefaultStopMessage is used when the backend confirms a stop without text.
const DefaultStopMessage = "Search stopped by user"

// Backend is the subset of Client the Controller needs.
type Backend interface {
	StartJob(ctx context.Context, req StartRequest) (StartResponse, error)
	StopJob(ctx context.Context) (StopResponse, error)
}

// Monitor applies events and exposes the current snapshot.
type Monitor interface {
	Submit(ctx context.Context, evt progress.Event) (progress.Snapshot, error)
	Snapshot() progress.Snapshot
}

// Planner expands a period selector into labels.
type Planner interface {
	Plan(sel periods.Selector) ([]string, error)
}

// Clock stamps local events.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints session IDs.
type IDGenerator interface {
	NewSessionID() (string, error)
}

// Controller runs start and stop requests against the backend and reports
// every outcome to the monitor as a local event. Calls are serialized.
type Controller struct {
	backend Backend
	monitor Monitor
	planner Planner
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger

	mu sync.Mutex
}

// NewController wires a Controller.
func NewController(backend Backend, monitor Monitor, planner Planner, clock Clock, ids IDGenerator, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		backend: backend,
		monitor: monitor,
		planner: planner,
		clock:   clock,
		ids:     ids,
		logger:  logger.Named("controller"),
	}
}

// Start submits a new search. It fails with ErrJobRunning while a session is
// active, with periods.ErrInvalidSelector or ErrInvalidRequest for bad input,
// and with the backend error after reporting it as a control failure.
func (c *Controller) Start(ctx context.Context, req StartRequest) (progress.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state := c.monitor.Snapshot().SessionState; state.Active() {
		return progress.Snapshot{}, fmt.Errorf("%w (%s)", ErrJobRunning, state)
	}
	if err := req.Validate(); err != nil {
		return progress.Snapshot{}, err
	}
	planned, err := c.planner.Plan(req.PeriodSelector)
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("plan periods: %w", err)
	}
	sessionID, err := c.ids.NewSessionID()
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("new session id: %w", err)
	}

	if _, err := c.submit(ctx, progress.SessionSubmitted{SessionID: sessionID, Query: req.Query}); err != nil {
		return progress.Snapshot{}, err
	}
	c.logger.Info("starting search",
		zap.String("session_id", sessionID),
		zap.String("query", req.Query),
		zap.Int("planned_periods", len(planned)),
	)

	resp, err := c.backend.StartJob(ctx, req)
	if err != nil {
		c.logger.Warn("start failed", zap.String("session_id", sessionID), zap.Error(err))
		c.fail(ctx, "start", err, resp.Error)
		return progress.Snapshot{}, err
	}

	announced := resp.Periods
	if len(announced) == 0 {
		announced = planned
	}
	total := len(announced)
	switch {
	case resp.TotalTasks != nil && *resp.TotalTasks > 0:
		total = *resp.TotalTasks
	case resp.TasksCount != nil && *resp.TasksCount > 0:
		total = *resp.TasksCount
	}
	return c.submit(ctx, progress.JobStarted{
		TotalTasks: progress.Ptr(total),
		Periods:    announced,
		Synthetic:  true,
	})
}

// Stop asks the backend to stop the active search. The session is marked
// Stopping first and Stopped once the backend confirms.
func (c *Controller) Stop(ctx context.Context) (progress.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state := c.monitor.Snapshot().SessionState; !state.Active() {
		return progress.Snapshot{}, fmt.Errorf("%w (%s)", ErrNotRunning, state)
	}
	if _, err := c.submit(ctx, progress.StopRequested{}); err != nil {
		return progress.Snapshot{}, err
	}

	resp, err := c.backend.StopJob(ctx)
	if err != nil {
		c.logger.Warn("stop failed", zap.Error(err))
		c.fail(ctx, "stop", err, "")
		return progress.Snapshot{}, err
	}
	msg := resp.Message
	if msg == "" {
		msg = DefaultStopMessage
	}
	return c.submit(ctx, progress.JobStopped{Message: progress.Ptr(msg)})
}

func (c *Controller) submit(ctx context.Context, p progress.Payload) (progress.Snapshot, error) {
	snap, err := c.monitor.Submit(ctx, progress.NewEvent(c.clock.Now(), p))
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("deliver %s: %w", p.Kind(), err)
	}
	return snap, nil
}

// fail reports a control failure. The request context may already be done, so
// the event is delivered on a short detached context.
func (c *Controller) fail(ctx context.Context, op string, cause error, detail string) {
	msg := detail
	if msg == "" {
		msg = cause.Error()
	}
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.submit(deliverCtx, progress.ControlFailed{Op: op, Message: msg}); err != nil {
		c.logger.Error("report control failure", zap.String("op", op), zap.Error(err))
	}
}
