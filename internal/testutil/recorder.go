package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/actionmesh/core"
)

// Recorder is a core.Publisher that keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Publish implements core.Publisher.
func (r *Recorder) Publish(_ context.Context, t core.EventType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, core.NewEvent(t))
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Kinds returns the Kind of every recorded event in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type.Kind())
	}
	return out
}

// OfKind returns the recorded event types with the given Kind.
func (r *Recorder) OfKind(kind string) []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.EventType
	for _, e := range r.events {
		if e.Type.Kind() == kind {
			out = append(out, e.Type)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
