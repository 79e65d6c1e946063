package progress

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLogCapacity bounds the log history kept by an Aggregator.
const DefaultLogCapacity = 200

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithLogCapacity overrides how many log lines are retained.
func WithLogCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.logCapacity = n
		}
	}
}

// Aggregator reconciles the event stream of one search job into snapshots.
//
// An Aggregator is not safe for concurrent use. It is meant to be owned by a
// single goroutine that applies events in delivery order.
type Aggregator struct {
	seq       uint64
	ts        time.Time
	kind      Kind
	heldBelow int

	// unconfirmed is set while a locally acknowledged job still awaits the
	// backend's own job_started.
	unconfirmed bool

	sessionID string
	query     string
	state     SessionState
	startedAt time.Time
	message   string

	totalTasks int
	totalKnown bool
	completed  int
	taskIndex  int
	label      string
	periods    []string

	taskPercent   int
	itemsSaved    int
	itemsTotal    int
	overall       int
	resultsTotal  int
	maxArticles   int
	articlesSaved int

	conn connectionSupervisor

	logCapacity int
	log         *logRing
	pending     []LogLine
}

// NewAggregator returns an Aggregator in the Idle state with a disconnected
// channel.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{logCapacity: DefaultLogCapacity, heldBelow: -1}
	for _, opt := range opts {
		opt(a)
	}
	a.log = newLogRing(a.logCapacity)
	a.resetSession()
	return a
}

// Apply folds one event into the aggregate state and returns the resulting
// snapshot. It never fails: fields that are missing or invalid are skipped
// and reported as log lines.
func (a *Aggregator) Apply(evt Event) Snapshot {
	a.seq++
	a.ts = evt.TS
	a.kind = evt.Kind()
	a.pending = nil

	for _, d := range evt.Diagnostics {
		a.logf(LevelWarn, "malformed %s event: %s", a.kind, d)
	}

	switch p := evt.Payload.(type) {
	case JobStarted:
		a.jobStarted(p)
	case TaskChanged:
		a.taskChanged(p)
	case Progress:
		a.progress(p)
	case PeriodUpdate:
		a.periodUpdate(p)
	case ResultsCount:
		a.resultsCount(p)
	case JobComplete:
		a.jobComplete(p)
	case JobStopped:
		a.jobStopped(p)
	case JobFailed:
		a.jobFailed(p)
	case LogMessage:
		a.logMessage(p)
	case OverallProgress:
		a.overallProgress(p)
	case ArticleSaved:
		a.articleSaved(p)
	case TotalArticles:
		a.totalArticles(p)
	case YearProgress:
		a.yearProgress(p)
	case SearchScope:
		a.searchScope(p)
	case SessionSubmitted:
		a.sessionSubmitted(p)
	case StopRequested:
		a.stopRequested()
	case ControlFailed:
		a.controlFailed(p)
	case Connecting, Connected, Disconnected, ReconnectAttempt, Reconnected, ReconnectFailed:
		a.conn.handle(p, a)
	case Unknown:
		a.logf(LevelWarn, "ignoring unrecognized event %q", p.Name)
	case nil:
		a.logf(LevelWarn, "ignoring event without payload")
	default:
		a.logf(LevelWarn, "ignoring unsupported payload %T", p)
	}

	a.recompute()
	return a.snapshot(a.pending)
}

// Snapshot returns the current state without applying anything.
func (a *Aggregator) Snapshot() Snapshot {
	return a.snapshot(nil)
}

// Log returns the retained log history, oldest first.
func (a *Aggregator) Log() []LogLine {
	return a.log.since(0)
}

// LogSince returns retained log lines with a sequence number above seq.
func (a *Aggregator) LogSince(seq uint64) []LogLine {
	return a.log.since(seq)
}

func (a *Aggregator) resetSession() {
	a.sessionID = ""
	a.query = ""
	a.state = SessionIdle
	a.startedAt = time.Time{}
	a.message = ""
	a.resetProgress()
}

func (a *Aggregator) resetProgress() {
	a.totalTasks = 1
	a.totalKnown = false
	a.completed = 0
	a.taskIndex = 0
	a.label = ""
	a.periods = nil
	a.overall = 0
	a.heldBelow = -1
	a.articlesSaved = 0
	a.unconfirmed = false
	a.resetTask()
}

func (a *Aggregator) resetTask() {
	a.taskPercent = 0
	a.itemsSaved = 0
	a.itemsTotal = 0
	a.resultsTotal = 0
	a.maxArticles = 0
}

// recompute re-derives the overall percentage from its inputs. Within one
// session the published value never drops; a lower result only happens when
// the task count widens, and the previous value is held instead.
func (a *Aggregator) recompute() {
	pct := OverallPercent(a.completed, a.taskPercent, a.totalTasks)
	if a.state == SessionCompleted {
		pct = 100
	}
	if pct < a.overall {
		if pct != a.heldBelow {
			a.logf(LevelDebug, "holding overall progress at %d%% (recomputed %d%%)", a.overall, pct)
			a.heldBelow = pct
		}
		return
	}
	a.heldBelow = -1
	a.overall = pct
}

// admit gates events that move numbers. Terminal sessions are frozen. An
// Idle or Starting session that sees progress joined a running job.
func (a *Aggregator) admit() bool {
	switch {
	case a.state.Terminal():
		a.logf(LevelDebug, "ignoring %s after the search %s", a.kind, a.state)
		return false
	case a.state == SessionIdle || a.state == SessionStarting:
		a.logf(LevelWarn, "%s received before job_started; treating the search as running", a.kind)
		a.state = SessionRunning
		if a.startedAt.IsZero() {
			a.startedAt = a.ts
		}
	}
	a.unconfirmed = false
	return true
}

// jobStarted resets progress for a new announcement. A synthetic start only
// merges into a running job, and the first backend announcement after one
// confirms it instead of replacing it.
func (a *Aggregator) jobStarted(p JobStarted) {
	var acknowledged []string
	next := SessionRunning
	switch a.state {
	case SessionRunning, SessionStopping:
		switch {
		case p.Synthetic:
			a.mergeAnnouncement(p)
			return
		case a.unconfirmed:
			acknowledged = a.periods
			next = a.state
		default:
			a.logf(LevelWarn, "job_started while %s; the previous job never reported completion", a.state)
		}
		a.resetProgress()
	case SessionStarting:
		a.resetProgress()
	default:
		if p.Synthetic {
			a.logf(LevelDebug, "ignoring start acknowledgement while %s", a.state)
			return
		}
		if a.state.Terminal() {
			a.logf(LevelInfo, "New search announced by server")
		}
		a.resetSession()
	}

	a.state = next
	if a.startedAt.IsZero() {
		a.startedAt = a.ts
	}
	a.periods = cleanPeriods(p.Periods)
	if a.periods == nil {
		a.periods = acknowledged
	}
	a.totalTasks, a.totalKnown = a.announcedTotal(p.TotalTasks)
	a.label = a.periodAt(0)
	a.unconfirmed = p.Synthetic
	a.logf(LevelInfo, "Search started with %s", plural(a.totalTasks, "task"))
}

// announcedTotal picks the task count from an announcement: the explicit
// count, else the number of periods, else a single task.
func (a *Aggregator) announcedTotal(explicit *int) (int, bool) {
	if explicit != nil {
		n := *explicit
		if n > 0 {
			if len(a.periods) > 0 && len(a.periods) != n {
				a.logf(LevelWarn, "job announced %s but %s", plural(n, "task"), plural(len(a.periods), "period"))
			}
			return n, true
		}
		a.logf(LevelWarn, "ignoring invalid task count %d", n)
	}
	if len(a.periods) > 0 {
		return len(a.periods), true
	}
	a.logf(LevelWarn, "job_started carried no task count or periods; assuming 1 task")
	return 1, false
}

func (a *Aggregator) mergeAnnouncement(p JobStarted) {
	if len(a.periods) == 0 {
		if periods := cleanPeriods(p.Periods); len(periods) > 0 {
			a.periods = periods
			if a.label == "" {
				a.label = a.periodAt(a.taskIndex)
			}
			a.widenTotal(len(periods))
		}
	}
	if p.TotalTasks != nil {
		a.widenTotal(*p.TotalTasks)
	}
}

// widenTotal raises the known task count. It never shrinks it.
func (a *Aggregator) widenTotal(n int) {
	switch {
	case n < 1:
		a.logf(LevelWarn, "ignoring invalid task count %d", n)
	case n > a.totalTasks:
		if a.totalKnown {
			a.logf(LevelInfo, "Task count raised from %d to %d", a.totalTasks, n)
		}
		a.totalTasks = n
		a.totalKnown = true
	case n < a.totalTasks:
		a.logf(LevelDebug, "ignoring task count %d below known %d", n, a.totalTasks)
	default:
		a.totalKnown = true
	}
}

func (a *Aggregator) taskChanged(p TaskChanged) {
	if !a.admit() {
		return
	}
	if p.TotalTasks != nil {
		a.widenTotal(*p.TotalTasks)
	}
	if p.CurrentTaskIndex == nil {
		a.logf(LevelWarn, "task_changed without a task index; staying on task %d", a.taskIndex+1)
		if p.Period != nil && *p.Period != "" {
			a.label = *p.Period
		}
		return
	}
	wire := *p.CurrentTaskIndex
	if wire < 1 {
		a.logf(LevelWarn, "ignoring invalid task index %d", wire)
		return
	}
	idx := wire - 1
	switch {
	case idx < a.taskIndex:
		a.logf(LevelWarn, "ignoring stale change to task %d while on task %d", wire, a.taskIndex+1)
		return
	case idx == a.taskIndex:
		a.logf(LevelDebug, "duplicate change to task %d", wire)
		if p.Period != nil && *p.Period != "" {
			a.label = *p.Period
		}
		return
	}

	if idx >= a.totalTasks {
		a.logf(LevelWarn, "task %d is beyond the known %s", wire, plural(a.totalTasks, "task"))
		a.totalTasks = idx + 1
		a.totalKnown = true
	}
	if missed := idx - a.taskIndex - 1; missed > 0 {
		a.logf(LevelWarn, "missed %s; resuming at task %d", plural(missed, "task change"), wire)
	}
	a.taskIndex = idx
	a.completed = idx
	a.resetTask()
	a.label = a.periodAt(idx)
	if p.Period != nil && *p.Period != "" {
		a.label = *p.Period
	}
	if a.label != "" {
		a.logf(LevelInfo, "Now processing task %d of %d: %s", wire, a.totalTasks, a.label)
	} else {
		a.logf(LevelInfo, "Now processing task %d of %d", wire, a.totalTasks)
	}
}

func (a *Aggregator) progress(p Progress) {
	if !a.admit() {
		return
	}
	if p.Period != nil && *p.Period != "" {
		a.label = *p.Period
	}
	if p.ItemsSaved == nil && p.ItemsTotal == nil && p.Percent == nil {
		a.logf(LevelWarn, "progress event carried no counts or percent")
		return
	}
	saved, total := a.itemsSaved, a.itemsTotal
	if p.ItemsTotal != nil {
		if v := *p.ItemsTotal; v < 0 {
			a.logf(LevelWarn, "ignoring negative items total %d", v)
		} else {
			total = v
		}
	}
	if p.ItemsSaved != nil {
		if v := *p.ItemsSaved; v < 0 {
			a.logf(LevelWarn, "ignoring negative items saved %d", v)
		} else {
			saved = v
		}
	}
	if total > 0 && saved > total {
		a.logf(LevelWarn, "clamping items saved %d to total %d", saved, total)
		saved = total
	}

	pct := TaskPercent(saved, total)
	if p.Percent != nil {
		pct = *p.Percent
		if pct < 0 || pct > 100 {
			a.logf(LevelWarn, "clamping task percent %d to [0,100]", pct)
			pct = clamp(pct, 0, 100)
		}
	}
	a.itemsSaved, a.itemsTotal = saved, total
	if pct < a.taskPercent {
		a.logf(LevelDebug, "ignoring task progress drop from %d%% to %d%%", a.taskPercent, pct)
		return
	}
	a.taskPercent = pct
}

func (a *Aggregator) totalArticles(p TotalArticles) {
	if !a.admit() {
		return
	}
	if p.Total == nil {
		a.logf(LevelWarn, "total_articles without a total")
		return
	}
	total := *p.Total
	if total < 0 {
		a.logf(LevelWarn, "ignoring negative items total %d", total)
		return
	}
	if total > 0 && a.itemsSaved > total {
		a.logf(LevelWarn, "clamping items saved %d to total %d", a.itemsSaved, total)
		a.itemsSaved = total
	}
	a.itemsTotal = total
}

func (a *Aggregator) yearProgress(p YearProgress) {
	if p.CurrentYear == nil || p.TotalYears == nil {
		return
	}
	a.logf(LevelDebug, "Processing year %d of %d", *p.CurrentYear, *p.TotalYears)
}

func (a *Aggregator) searchScope(p SearchScope) {
	if p.TotalYears == nil {
		return
	}
	a.logf(LevelDebug, "Search covers %s", plural(*p.TotalYears, "year"))
}

func (a *Aggregator) periodUpdate(p PeriodUpdate) {
	if a.state.Terminal() {
		a.logf(LevelDebug, "ignoring %s after the search %s", a.kind, a.state)
		return
	}
	if p.Period == nil || *p.Period == "" {
		a.logf(LevelWarn, "period_update without a period")
		return
	}
	a.label = *p.Period
}

func (a *Aggregator) resultsCount(p ResultsCount) {
	if a.state.Terminal() {
		a.logf(LevelDebug, "ignoring %s after the search %s", a.kind, a.state)
		return
	}
	if p.Period != nil && *p.Period != "" {
		a.label = *p.Period
	}
	if p.Total == nil {
		a.logf(LevelWarn, "results_count without a total")
	} else if v := *p.Total; v < 0 {
		a.logf(LevelWarn, "ignoring negative results total %d", v)
	} else {
		a.resultsTotal = v
	}
	if p.MaxArticles != nil && *p.MaxArticles >= 0 {
		a.maxArticles = *p.MaxArticles
	}
}

func (a *Aggregator) jobComplete(p JobComplete) {
	if a.state.Terminal() {
		a.logf(LevelDebug, "ignoring %s after the search %s", a.kind, a.state)
		return
	}
	a.state = SessionCompleted
	a.completed = a.totalTasks
	a.taskIndex = a.totalTasks - 1
	a.taskPercent = 100
	a.message = messageOr(p.Message, "Search completed")
	a.logf(LevelInfo, "%s", a.message)
}

func (a *Aggregator) jobStopped(p JobStopped) {
	msg := messageOr(p.Message, "Search stopped")
	if a.state.Terminal() {
		a.logf(LevelDebug, "search already %s: %s", a.state, msg)
		return
	}
	a.state = SessionStopped
	a.message = msg
	a.logf(LevelInfo, "%s", msg)
}

func (a *Aggregator) jobFailed(p JobFailed) {
	msg := messageOr(p.Message, "Search failed")
	if a.state.Terminal() {
		a.logf(LevelError, "%s", msg)
		return
	}
	a.state = SessionFailed
	a.message = msg
	a.logf(LevelError, "%s", msg)
}

func (a *Aggregator) logMessage(p LogMessage) {
	if p.Message == nil {
		a.logf(LevelWarn, "log_message without a message")
		return
	}
	msg := strings.TrimRight(*p.Message, "\r\n")
	if msg == "" {
		return
	}
	level := LevelInfo
	if p.Level != nil && *p.Level != "" {
		level = *p.Level
	}
	a.logf(level, "%s", msg)
}

func (a *Aggregator) overallProgress(p OverallProgress) {
	if !a.admit() {
		return
	}
	if p.TotalTasks != nil {
		a.widenTotal(*p.TotalTasks)
	}
	if p.CurrentTask != nil && *p.CurrentTask-1 > a.taskIndex {
		a.logf(LevelDebug, "server reports task %d while tracking task %d", *p.CurrentTask, a.taskIndex+1)
	}
}

func (a *Aggregator) articleSaved(p ArticleSaved) {
	if a.state.Terminal() {
		a.logf(LevelDebug, "ignoring %s after the search %s", a.kind, a.state)
		return
	}
	a.articlesSaved++
	switch {
	case p.Path != nil && *p.Path != "":
		a.logf(LevelInfo, "Article saved to: %s", *p.Path)
	case p.Period != nil && *p.Period != "":
		a.logf(LevelInfo, "Article saved for %s", *p.Period)
	default:
		a.logf(LevelInfo, "Article saved")
	}
}

func (a *Aggregator) sessionSubmitted(p SessionSubmitted) {
	if a.state.Active() {
		a.logf(LevelWarn, "new search submitted while %s; discarding the previous session", a.state)
	}
	a.resetSession()
	a.sessionID = p.SessionID
	a.query = p.Query
	a.state = SessionStarting
	a.startedAt = a.ts
	if p.Query != "" {
		a.logf(LevelInfo, "Starting search for %q", p.Query)
	} else {
		a.logf(LevelInfo, "Starting search")
	}
}

func (a *Aggregator) stopRequested() {
	if a.state != SessionRunning && a.state != SessionStarting {
		a.logf(LevelDebug, "stop requested while %s", a.state)
		return
	}
	a.state = SessionStopping
	a.logf(LevelInfo, "Stopping search")
}

func (a *Aggregator) controlFailed(p ControlFailed) {
	op := p.Op
	if op == "" {
		op = "control request"
	}
	msg := p.Message
	if msg == "" {
		msg = "unknown error"
	}
	line := fmt.Sprintf("%s failed: %s", op, msg)
	if a.state.Terminal() {
		a.logf(LevelError, "%s", line)
		return
	}
	a.state = SessionFailed
	a.message = line
	a.logf(LevelError, "%s", line)
}

func (a *Aggregator) periodAt(i int) string {
	if i >= 0 && i < len(a.periods) {
		return a.periods[i]
	}
	return ""
}

func (a *Aggregator) logf(level LogLevel, format string, args ...any) {
	line := a.log.append(LogLine{
		TS:      a.ts,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
	a.pending = append(a.pending, line)
}

func (a *Aggregator) snapshot(lines []LogLine) Snapshot {
	s := Snapshot{
		Seq:                a.seq,
		UpdatedAt:          a.ts,
		Kind:               a.kind,
		SessionID:          a.sessionID,
		Query:              a.query,
		SessionState:       a.state,
		StartedAt:          a.startedAt,
		Message:            a.message,
		TotalTasks:         a.totalTasks,
		CompletedTaskCount: a.completed,
		CurrentTaskIndex:   a.taskIndex,
		CurrentPeriodLabel: a.label,
		CurrentTaskPercent: a.taskPercent,
		ItemsSaved:         a.itemsSaved,
		ItemsTotal:         a.itemsTotal,
		OverallPercent:     a.overall,
		ResultsTotal:       a.resultsTotal,
		MaxArticles:        a.maxArticles,
		ArticlesSaved:      a.articlesSaved,
		ConnectionState:    a.conn.state,
		ReconnectAttempts:  a.conn.attempts,
		LogSeq:             a.log.seq,
	}
	if len(a.periods) > 0 {
		s.Periods = append([]string(nil), a.periods...)
	}
	if last, ok := a.log.last(); ok {
		s.LastLogLine = last.Message
	}
	if len(lines) > 0 {
		s.Lines = append([]LogLine(nil), lines...)
	}
	return s
}

func cleanPeriods(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func messageOr(msg *string, fallback string) string {
	if msg == nil || strings.TrimSpace(*msg) == "" {
		return fallback
	}
	return *msg
}
