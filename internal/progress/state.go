package progress

import "fmt"

// SessionState is the lifecycle phase of the tracked search job.
type SessionState uint8

// Session states. Completed, Stopped and Failed are terminal.
const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionRunning
	SessionStopping
	SessionCompleted
	SessionStopped
	SessionFailed
)

var sessionStateNames = [...]string{
	SessionIdle:      "idle",
	SessionStarting:  "starting",
	SessionRunning:   "running",
	SessionStopping:  "stopping",
	SessionCompleted: "completed",
	SessionStopped:   "stopped",
	SessionFailed:    "failed",
}

func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return fmt.Sprintf("session_state(%d)", s)
}

// Terminal reports whether no further progress can be applied to the session.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionStopped || s == SessionFailed
}

// Active reports whether a job has been submitted or is executing.
func (s SessionState) Active() bool {
	return s == SessionStarting || s == SessionRunning || s == SessionStopping
}

// MarshalText encodes the state by name.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *SessionState) UnmarshalText(b []byte) error {
	for i, name := range sessionStateNames {
		if name == string(b) {
			*s = SessionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(b))
}

// ConnectionState describes the event channel as last observed.
type ConnectionState uint8

// Connection states.
const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnReconnectFailed
)

var connectionStateNames = [...]string{
	ConnDisconnected:    "disconnected",
	ConnConnecting:      "connecting",
	ConnConnected:       "connected",
	ConnReconnecting:    "reconnecting",
	ConnReconnectFailed: "reconnect_failed",
}

// ConnectionStates lists every connection state in declaration order.
func ConnectionStates() []ConnectionState {
	out := make([]ConnectionState, len(connectionStateNames))
	for i := range connectionStateNames {
		out[i] = ConnectionState(i)
	}
	return out
}

func (c ConnectionState) String() string {
	if int(c) < len(connectionStateNames) {
		return connectionStateNames[c]
	}
	return fmt.Sprintf("connection_state(%d)", c)
}

// MarshalText encodes the state by name.
func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (c *ConnectionState) UnmarshalText(b []byte) error {
	for i, name := range connectionStateNames {
		if name == string(b) {
			*c = ConnectionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", string(b))
}

// LogLevel grades a log line.
type LogLevel string

// Log levels attached to lines in the log history.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warning"
	LevelError LogLevel = "error"
)

// ParseLogLevel maps loosely spelled level names onto a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, true
	case "info", "INFO":
		return LevelInfo, true
	case "warn", "warning", "WARN", "WARNING":
		return LevelWarn, true
	case "error", "ERROR", "critical", "CRITICAL":
		return LevelError, true
	default:
		return "", false
	}
}
