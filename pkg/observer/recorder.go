package observer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Recorder keeps every occurrence it is notified of. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	occs    []statemachine.Occurrence
	changed chan struct{}
	err     error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{changed: make(chan struct{})}
}

// FailWith makes subsequent Notify calls record the occurrence and return err.
func (r *Recorder) FailWith(err error) *Recorder {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	return r
}

// Notify records occ and returns the error set by FailWith.
func (r *Recorder) Notify(_ context.Context, occ statemachine.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occs = append(r.occs, occ)
	close(r.changed)
	r.changed = make(chan struct{})
	return r.err
}

// Occurrences returns a copy of the recorded occurrences in arrival order.
func (r *Recorder) Occurrences() []statemachine.Occurrence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statemachine.Occurrence, len(r.occs))
	copy(out, r.occs)
	return out
}

// Kinds returns the kinds of the recorded occurrences in arrival order.
func (r *Recorder) Kinds() []statemachine.OccurrenceKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statemachine.OccurrenceKind, len(r.occs))
	for i, occ := range r.occs {
		out[i] = occ.Kind
	}
	return out
}

// Count returns the number of recorded occurrences.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occs)
}

// CountKind returns how many occurrences of kind were recorded.
func (r *Recorder) CountKind(kind statemachine.OccurrenceKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, occ := range r.occs {
		if occ.Kind == kind {
			n++
		}
	}
	return n
}

// WaitFor blocks until at least n occurrences were recorded or timeout passes.
// It reports whether the count was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if len(r.occs) >= n {
			r.mu.Unlock()
			return true
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return r.Count() >= n
		}
	}
}

// Reset forgets every recorded occurrence.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.occs = nil
	r.mu.Unlock()
}
