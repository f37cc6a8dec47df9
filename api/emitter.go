package api

import (
	"context"

	"github.com/flowforge/orchestrator/graph/emit"
)

// fanoutEmitter forwards every observability event to multiple
// emitters, mirroring fanoutRecorder's approach to graph.Recorder: the
// engine is constructed with exactly one emit.Emitter, so logging and
// in-memory history each get their own and are combined here.
type fanoutEmitter struct {
	emitters []emit.Emitter
}

func newFanoutEmitter(emitters ...emit.Emitter) *fanoutEmitter {
	return &fanoutEmitter{emitters: emitters}
}

func (f *fanoutEmitter) Emit(event emit.Event) {
	for _, e := range f.emitters {
		e.Emit(event)
	}
}

func (f *fanoutEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range f.emitters {
		if err := e.EmitBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanoutEmitter) Flush(ctx context.Context) error {
	for _, e := range f.emitters {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

var _ emit.Emitter = (*fanoutEmitter)(nil)
