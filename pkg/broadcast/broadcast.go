package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel messages are delivered on. It is closed when
	// the subscriber is closed, evicted, or the broadcaster shuts down.
	Receive(ctx context.Context) <-chan Message[T]

	// Dropped reports how many messages were discarded because the buffer was full.
	Dropped() uint64

	// Close releases the subscription. It is idempotent.
	Close() error
}

// Broadcaster sends messages to multiple subscribers without blocking on slow ones.
type Broadcaster[T any] interface {
	// Subscribe creates a subscriber that lives until ctx is cancelled or it is closed.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast offers msg to every active subscriber.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

// SlowConsumerPolicy decides what happens when a subscriber's buffer is full.
type SlowConsumerPolicy int

const (
	// DropMessage discards the message for that subscriber and keeps it subscribed.
	DropMessage SlowConsumerPolicy = iota
	// EvictSubscriber discards the message and closes the subscriber.
	EvictSubscriber
)

type subscriber[T any] struct {
	ch      chan Message[T]
	done    chan struct{}
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
	onClose func()
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{
		ch:   make(chan Message[T], bufferSize),
		done: make(chan struct{}),
	}
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// send reports false when the message could not be buffered.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}
