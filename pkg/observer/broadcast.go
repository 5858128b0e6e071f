package observer

import (
	"context"

	"github.com/dmitrymomot/fsmkit/pkg/broadcast"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Broadcast forwards occurrences into a broadcaster so any number of
// in-process consumers, such as streaming HTTP clients, can follow a machine.
type Broadcast struct {
	b broadcast.Broadcaster[statemachine.Occurrence]
}

// NewBroadcast wraps b as an observer.
func NewBroadcast(b broadcast.Broadcaster[statemachine.Occurrence]) *Broadcast {
	return &Broadcast{b: b}
}

// Notify forwards the occurrence to every stream subscriber.
func (o *Broadcast) Notify(ctx context.Context, occ statemachine.Occurrence) error {
	return o.b.Broadcast(ctx, broadcast.Message[statemachine.Occurrence]{Data: occ})
}
