package progress

import "context"

// Sink consumes batches of snapshots in the order they were produced.
// Implementations must honor ctx deadlines and tolerate repeated Close calls.
type Sink interface {
	Consume(ctx context.Context, batch []Snapshot) error
	Close(ctx context.Context) error
}

// Emitter publishes individual snapshots; Hub satisfies it so the monitor stays
// agnostic about how snapshots are buffered or rendered.
type Emitter interface {
	Emit(s Snapshot)
}

// SinkFunc adapts a function into a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Snapshot) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Snapshot) error {
	return f(ctx, batch)
}

// Close does nothing.
func (SinkFunc) Close(context.Context) error {
	return nil
}
