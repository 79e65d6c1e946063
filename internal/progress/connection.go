package progress

import "fmt"

// connectionSupervisor tracks the event channel lifecycle. It never touches
// session or task fields: a disconnect freezes the last snapshot and a
// reconnect resumes from it without replay.
type connectionSupervisor struct {
	state    ConnectionState
	attempts int
}

// expectedConnectionSources lists the states each signal normally arrives in.
var expectedConnectionSources = map[Kind][]ConnectionState{
	KindConnecting:       {ConnDisconnected, ConnReconnectFailed},
	KindConnected:        {ConnConnecting, ConnReconnecting, ConnDisconnected},
	KindDisconnected:     {ConnConnecting, ConnConnected, ConnReconnecting},
	KindReconnectAttempt: {ConnDisconnected, ConnReconnecting},
	KindReconnected:      {ConnReconnecting, ConnDisconnected},
	KindReconnectFailed:  {ConnReconnecting, ConnDisconnected},
}

// handle applies a channel lifecycle signal. Signals always win: an
// unexpected source state is reported but the target state is still adopted,
// since the transport is the authority on its own condition.
func (c *connectionSupervisor) handle(p Payload, a *Aggregator) {
	kind := p.Kind()
	if kind == KindDisconnected && c.state == ConnDisconnected {
		return
	}
	if !c.expected(kind) {
		a.logf(LevelDebug, "connection signal %s while %s", kind, c.state)
	}
	switch sig := p.(type) {
	case Connecting:
		c.state = ConnConnecting
		c.attempts = 0
		a.logf(LevelInfo, "Connecting to server")
	case Connected:
		c.state = ConnConnected
		c.attempts = 0
		a.logf(LevelInfo, "Connected to server")
	case Disconnected:
		c.state = ConnDisconnected
		reason := sig.Reason
		if reason == "" {
			reason = "unknown reason"
		}
		a.logf(LevelWarn, "Disconnected from server: %s", reason)
	case ReconnectAttempt:
		c.state = ConnReconnecting
		c.attempts = max(sig.Attempt, c.attempts+1)
		a.logf(LevelInfo, "Reconnecting (attempt %d)", c.attempts)
	case Reconnected:
		c.state = ConnConnected
		n := sig.Attempts
		if n < 1 {
			n = c.attempts
		}
		c.attempts = 0
		a.logf(LevelInfo, "Reconnected to server after %s", plural(n, "attempt"))
	case ReconnectFailed:
		c.state = ConnReconnectFailed
		n := sig.Attempts
		if n < 1 {
			n = c.attempts
		}
		a.logf(LevelError, "Failed to reconnect to server after %s", plural(n, "attempt"))
	}
}

func (c *connectionSupervisor) expected(kind Kind) bool {
	for _, s := range expectedConnectionSources[kind] {
		if s == c.state {
			return true
		}
	}
	return false
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
