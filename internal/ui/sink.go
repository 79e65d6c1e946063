package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards hub batches into a Bubble Tea program. Only the newest
// snapshot of a batch is rendered; log lines from the whole batch are kept.
type Sink struct {
	program Sender
}

// NewSink wraps program.
func NewSink(program Sender) *Sink {
	return &Sink{program: program}
}

// Consume implements progress.Sink.
func (s *Sink) Consume(ctx context.Context, batch []progress.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := SnapshotMsg{Snapshot: batch[len(batch)-1]}
	for _, snap := range batch {
		msg.Lines = append(msg.Lines, snap.Lines...)
	}
	s.program.Send(msg)
	return nil
}

// Close implements progress.Sink.
func (s *Sink) Close(context.Context) error {
	return nil
}
