package broadcast

import (
	"context"
	"sync"
)

// Option configures a MemoryBroadcaster.
type Option func(*options)

type options struct {
	bufferSize int
	policy     SlowConsumerPolicy
}

// WithBufferSize sets the per-subscriber channel buffer. Values below 1 are raised to 1.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = max(n, 1)
	}
}

// WithSlowConsumerPolicy selects how full subscriber buffers are handled.
func WithSlowConsumerPolicy(p SlowConsumerPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// MemoryBroadcaster fans messages out to in-process subscribers.
// All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	opts        options
	closed      bool
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewMemoryBroadcaster creates an in-memory broadcaster.
// The default buffer is 16 messages per subscriber with the DropMessage policy.
func NewMemoryBroadcaster[T any](opts ...Option) *MemoryBroadcaster[T] {
	o := options{bufferSize: 16, policy: DropMessage}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		opts:        o,
	}
}

// Subscribe registers a subscriber that is removed when ctx is cancelled or it is closed.
// After Close it returns an already-closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.opts.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}

	sub.onClose = func() { b.remove(sub) }
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Broadcast offers msg to every subscriber without blocking.
// It returns ErrClosed once the broadcaster has been closed.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}

	var evict []*subscriber[T]
	for sub := range b.subscribers {
		if !sub.send(msg) && b.opts.policy == EvictSubscriber {
			evict = append(evict, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range evict {
		_ = sub.Close()
	}
	return nil
}

// Len returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscribers. It is idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}
