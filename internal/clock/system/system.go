// Package system provides the wall clock used to stamp received and local
// events.
package system

import "time"

// Clock stamps events with the current UTC time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, keeping the monotonic reading so that
// durations between stamps stay correct across wall clock jumps.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since reports the time elapsed since t.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
