package progress

import "time"

// Kind names an event variant.
type Kind string

// Event kinds pushed by the backend over the event channel.
const (
	KindJobStarted      Kind = "job_started"
	KindTaskChanged     Kind = "task_changed"
	KindProgress        Kind = "progress"
	KindPeriodUpdate    Kind = "period_update"
	KindResultsCount    Kind = "results_count"
	KindJobComplete     Kind = "job_complete"
	KindJobStopped      Kind = "job_stopped"
	KindJobFailed       Kind = "job_failed"
	KindLogMessage      Kind = "log_message"
	KindOverallProgress Kind = "overall_progress"
	KindArticleSaved    Kind = "article_saved"
	KindTotalArticles   Kind = "total_articles"
	KindYearProgress    Kind = "year_progress"
	KindSearchScope     Kind = "search_scope"
	KindUnknown         Kind = "unknown"
)

// Local event kinds. They are produced by the control layer and the channel
// client, never decoded from the wire.
const (
	KindSessionSubmitted Kind = "session_submitted"
	KindStopRequested    Kind = "stop_requested"
	KindControlFailed    Kind = "control_failed"
	KindConnecting       Kind = "connecting"
	KindConnected        Kind = "connected"
	KindDisconnected     Kind = "disconnected"
	KindReconnectAttempt Kind = "reconnect_attempt"
	KindReconnected      Kind = "reconnected"
	KindReconnectFailed  Kind = "reconnect_failed"
)

// Payload is the kind-specific body of an Event. Optional wire fields are
// pointers so that absence can be told apart from a zero value.
type Payload interface {
	Kind() Kind
}

// Event is one tagged input to the Aggregator.
type Event struct {
	// TS is when the event was received or produced. Apply copies it onto the
	// snapshot and into log lines instead of reading a clock.
	TS time.Time
	// Payload holds the variant. A nil payload is treated as unknown.
	Payload Payload
	// Diagnostics lists decoding problems found while building the payload.
	Diagnostics []string
}

// Kind returns the payload's kind, or KindUnknown when there is none.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return KindUnknown
	}
	return e.Payload.Kind()
}

// NewEvent pairs a payload with its timestamp.
func NewEvent(ts time.Time, p Payload) Event {
	return Event{TS: ts, Payload: p}
}

// Ptr returns a pointer to v, for filling optional payload fields.
func Ptr[T any](v T) *T {
	return &v
}

// JobStarted announces a job and its task decomposition.
type JobStarted struct {
	TotalTasks *int
	Periods    []string
	// Synthetic marks an announcement built from a start response rather than
	// pushed by the backend. It only applies while the session is Starting.
	Synthetic bool
}

// TaskChanged announces that the backend moved on to another task.
type TaskChanged struct {
	// CurrentTaskIndex is 1-based, as on the wire.
	CurrentTaskIndex *int
	TotalTasks       *int
	Period           *string
}

// Progress refreshes progress within the current task.
type Progress struct {
	ItemsSaved *int
	ItemsTotal *int
	Percent    *int
	Period     *string
}

// PeriodUpdate renames the current period.
type PeriodUpdate struct {
	Period *string
}

// ResultsCount reports how many results the current period matched.
type ResultsCount struct {
	Total       *int
	MaxArticles *int
	Period      *string
}

// JobComplete reports successful completion of every task.
type JobComplete struct {
	Message *string
}

// JobStopped reports that the backend stopped the job.
type JobStopped struct {
	Message *string
}

// JobFailed reports that the backend aborted the job.
type JobFailed struct {
	Message *string
}

// LogMessage carries one line of backend output.
type LogMessage struct {
	Message *string
	Level   *LogLevel
}

// OverallProgress is the backend's own overall estimate. Only its task count
// is used; the overall percentage is always recomputed locally.
type OverallProgress struct {
	Value       *int
	CurrentTask *int
	TotalTasks  *int
}

// ArticleSaved reports one stored article.
type ArticleSaved struct {
	Path   *string
	Period *string
}

// TotalArticles announces how many articles the current task will process.
type TotalArticles struct {
	Total *int
}

// YearProgress reports the backend's position within a multi-year scope.
// It is informational only.
type YearProgress struct {
	CurrentYear *int
	TotalYears  *int
	Percent     *int
}

// SearchScope reports how many years the backend will cover.
type SearchScope struct {
	TotalYears *int
}

// Unknown wraps an event name that has no variant.
type Unknown struct {
	Name string
}

// SessionSubmitted resets the session for a new search request.
type SessionSubmitted struct {
	SessionID string
	Query     string
}

// StopRequested records that the operator asked the backend to stop.
type StopRequested struct{}

// ControlFailed records a failed start or stop call.
type ControlFailed struct {
	Op      string
	Message string
}

// Connecting records the first dial of the event channel.
type Connecting struct{}

// Connected records an established event channel.
type Connected struct{}

// Disconnected records loss of the event channel.
type Disconnected struct {
	Reason string
}

// ReconnectAttempt records the nth reconnection attempt.
type ReconnectAttempt struct {
	Attempt int
}

// Reconnected records a successful reconnection after Attempts tries.
type Reconnected struct {
	Attempts int
}

// ReconnectFailed records that reconnection attempts are exhausted.
type ReconnectFailed struct {
	Attempts int
}

func (JobStarted) Kind() Kind       { return KindJobStarted }
func (TaskChanged) Kind() Kind      { return KindTaskChanged }
func (Progress) Kind() Kind         { return KindProgress }
func (PeriodUpdate) Kind() Kind     { return KindPeriodUpdate }
func (ResultsCount) Kind() Kind     { return KindResultsCount }
func (JobComplete) Kind() Kind      { return KindJobComplete }
func (JobStopped) Kind() Kind       { return KindJobStopped }
func (JobFailed) Kind() Kind        { return KindJobFailed }
func (LogMessage) Kind() Kind       { return KindLogMessage }
func (OverallProgress) Kind() Kind  { return KindOverallProgress }
func (ArticleSaved) Kind() Kind     { return KindArticleSaved }
func (TotalArticles) Kind() Kind    { return KindTotalArticles }
func (YearProgress) Kind() Kind     { return KindYearProgress }
func (SearchScope) Kind() Kind      { return KindSearchScope }
func (Unknown) Kind() Kind          { return KindUnknown }
func (SessionSubmitted) Kind() Kind { return KindSessionSubmitted }
func (StopRequested) Kind() Kind    { return KindStopRequested }
func (ControlFailed) Kind() Kind    { return KindControlFailed }
func (Connecting) Kind() Kind       { return KindConnecting }
func (Connected) Kind() Kind        { return KindConnected }
func (Disconnected) Kind() Kind     { return KindDisconnected }
func (ReconnectAttempt) Kind() Kind { return KindReconnectAttempt }
func (Reconnected) Kind() Kind      { return KindReconnected }
func (ReconnectFailed) Kind() Kind  { return KindReconnectFailed }
