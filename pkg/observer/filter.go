package observer

import (
	"context"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

type filter struct {
	next  statemachine.Observer
	kinds map[statemachine.OccurrenceKind]struct{}
}

// Filter forwards only occurrences of the given kinds to next.
// With no kinds every occurrence is forwarded.
func Filter(next statemachine.Observer, kinds ...statemachine.OccurrenceKind) statemachine.Observer {
	if len(kinds) == 0 {
		return next
	}
	f := &filter{next: next, kinds: make(map[statemachine.OccurrenceKind]struct{}, len(kinds))}
	for _, k := range kinds {
		f.kinds[k] = struct{}{}
	}
	return f
}

func (f *filter) Notify(ctx context.Context, occ statemachine.Occurrence) error {
	if _, ok := f.kinds[occ.Kind]; !ok {
		return nil
	}
	return f.next.Notify(ctx, occ)
}
