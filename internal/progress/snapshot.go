package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// observedSessionNamespace derives stable IDs for sessions that were announced
// by the backend without a local submission.
var observedSessionNamespace = uuid.MustParse("6c2f3b0e-8f4a-4d0b-9a57-2f1f4f0c9e11")

// LogLine is one entry in the log history.
type LogLine struct {
	Seq     uint64    `json:"seq"`
	TS      time.Time `json:"ts"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// Snapshot is the fully derived progress state after one applied event.
// Snapshots are values; slices are copied so holders never share state with
// the Aggregator.
type Snapshot struct {
	// Seq counts events applied by the Aggregator, starting at 1.
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updatedAt"`
	Kind      Kind      `json:"kind"`

	SessionID    string       `json:"sessionId,omitempty"`
	Query        string       `json:"query,omitempty"`
	SessionState SessionState `json:"sessionState"`
	StartedAt    time.Time    `json:"startedAt,omitzero"`
	Message      string       `json:"message,omitempty"`

	TotalTasks         int      `json:"totalTasks"`
	CompletedTaskCount int      `json:"completedTaskCount"`
	CurrentTaskIndex   int      `json:"currentTaskIndex"`
	CurrentPeriodLabel string   `json:"currentPeriodLabel"`
	Periods            []string `json:"periods,omitempty"`

	CurrentTaskPercent int `json:"currentTaskPercent"`
	ItemsSaved         int `json:"itemsSaved"`
	ItemsTotal         int `json:"itemsTotal"`
	OverallPercent     int `json:"overallPercent"`

	ResultsTotal  int `json:"resultsTotal"`
	MaxArticles   int `json:"maxArticles,omitempty"`
	ArticlesSaved int `json:"articlesSaved"`

	ConnectionState   ConnectionState `json:"connectionState"`
	ReconnectAttempts int             `json:"reconnectAttempts,omitempty"`

	LastLogLine string `json:"lastLogLine"`
	LogSeq      uint64 `json:"logSeq"`
	// Lines holds the log lines appended by this event only.
	Lines []LogLine `json:"lines,omitempty"`
}

// Validate checks the snapshot invariants.
func (s Snapshot) Validate() error {
	if s.Seq == 0 {
		return errors.New("snapshot sequence is required")
	}
	if s.TotalTasks < 1 {
		return fmt.Errorf("total tasks %d must be positive", s.TotalTasks)
	}
	if s.CompletedTaskCount < 0 || s.CompletedTaskCount > s.TotalTasks {
		return fmt.Errorf("completed tasks %d outside [0,%d]", s.CompletedTaskCount, s.TotalTasks)
	}
	if s.CurrentTaskIndex < 0 || s.CurrentTaskIndex >= s.TotalTasks {
		return fmt.Errorf("task index %d outside [0,%d)", s.CurrentTaskIndex, s.TotalTasks)
	}
	if s.CurrentTaskPercent < 0 || s.CurrentTaskPercent > 100 {
		return fmt.Errorf("task percent %d outside [0,100]", s.CurrentTaskPercent)
	}
	if s.OverallPercent < 0 || s.OverallPercent > 100 {
		return fmt.Errorf("overall percent %d outside [0,100]", s.OverallPercent)
	}
	if s.ItemsTotal > 0 && s.ItemsSaved > s.ItemsTotal {
		return fmt.Errorf("items saved %d exceeds total %d", s.ItemsSaved, s.ItemsTotal)
	}
	return nil
}

// SessionUUID identifies the snapshot's session. Locally submitted sessions
// carry a UUID; sessions joined from the event stream get one derived from
// their start time so that every sink agrees on it. It returns uuid.Nil when
// no session has started.
func (s Snapshot) SessionUUID() uuid.UUID {
	if id, err := uuid.Parse(s.SessionID); err == nil {
		return id
	}
	if s.StartedAt.IsZero() {
		return uuid.Nil
	}
	name := s.SessionID + "|" + s.StartedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(observedSessionNamespace, []byte(name))
}
