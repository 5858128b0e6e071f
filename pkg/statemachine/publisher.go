package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
)

// DeliveryMode selects how the publisher hands occurrences to observers.
type DeliveryMode int

const (
	// DeliverySync notifies observers on the caller's goroutine, in subscription
	// order, before the machine operation returns.
	DeliverySync DeliveryMode = iota
	// DeliveryAsync queues occurrences on a bounded per-observer mailbox drained
	// by a dedicated goroutine. Occurrences are dropped when a mailbox is full.
	DeliveryAsync
)

func (m DeliveryMode) String() string {
	switch m {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	default:
		return "unknown"
	}
}

// ParseDeliveryMode converts "sync" or "async" into a DeliveryMode.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return DeliverySync, nil
	case "async":
		return DeliveryAsync, nil
	default:
		return DeliverySync, fmt.Errorf("%w: %q", ErrUnknownDelivery, s)
	}
}

// SubscriptionID identifies a registered observer.
type SubscriptionID string

// ErrorHandler receives observer failures. It runs on the delivering goroutine
// and must not block.
type ErrorHandler func(ctx context.Context, id SubscriptionID, occ Occurrence, err error)

// Stats is a snapshot of publisher counters.
type Stats struct {
	Published   uint64 `json:"published"` // occurrences accepted while enabled
	Delivered   uint64 `json:"delivered"` // observer calls that returned nil
	Failed      uint64 `json:"failed"`    // observer calls that returned an error
	Panicked    uint64 `json:"panicked"`  // observer calls that panicked
	TimedOut    uint64 `json:"timed_out"` // observer calls abandoned after the dispatch timeout
	Dropped     uint64 `json:"dropped"`   // async occurrences discarded on a full mailbox
	Subscribers int    `json:"subscribers"`
}

const defaultMailboxSize = 64

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger used to report observer failures.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPublisherDelivery selects synchronous or asynchronous delivery.
func WithPublisherDelivery(mode DeliveryMode) PublisherOption {
	return func(p *Publisher) { p.delivery = mode }
}

// WithPublisherTimeout bounds each observer call. Zero disables the bound.
func WithPublisherTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = max(d, 0) }
}

// WithPublisherMailboxSize sets the per-observer queue length for async delivery.
func WithPublisherMailboxSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.mailboxSize = n
		}
	}
}

// WithPublisherErrorHandler registers a callback for observer failures.
func WithPublisherErrorHandler(h ErrorHandler) PublisherOption {
	return func(p *Publisher) { p.onError = h }
}

// Publisher fans occurrences out to subscribed observers.
//
// Subscriptions are kept in a copy-on-write slice: Publish iterates over the
// snapshot taken when it started, so Subscribe and Unsubscribe may be called
// from inside an observer. Observer errors and panics are contained here and
// never reach the code that published the occurrence.
type Publisher struct {
	logger      *slog.Logger
	delivery    DeliveryMode
	timeout     time.Duration
	mailboxSize int
	onError     ErrorHandler

	enabled atomic.Bool
	closed  atomic.Bool

	mu   sync.Mutex
	subs atomic.Pointer[[]*subscription]
	wg   sync.WaitGroup

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	timedOut  atomic.Uint64
	dropped   atomic.Uint64
}

type subscription struct {
	id       SubscriptionID
	observer Observer

	mu      sync.RWMutex
	closed  bool
	mailbox chan queuedOccurrence
}

type queuedOccurrence struct {
	ctx context.Context
	occ Occurrence
}

// NewPublisher creates an enabled publisher.
func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{
		logger:      slog.Default(),
		delivery:    DeliverySync,
		mailboxSize: defaultMailboxSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("fsm.publisher"))
	p.enabled.Store(true)
	empty := make([]*subscription, 0)
	p.subs.Store(&empty)
	return p
}

// Enabled reports whether occurrences are currently delivered.
func (p *Publisher) Enabled() bool {
	return p.enabled.Load() && !p.closed.Load()
}

// SetEnabled switches delivery on or off. Subscriptions are kept either way.
func (p *Publisher) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// Delivery returns the configured delivery mode.
func (p *Publisher) Delivery() DeliveryMode {
	return p.delivery
}

// Timeout returns the per-observer dispatch bound. Zero means unbounded.
func (p *Publisher) Timeout() time.Duration {
	return p.timeout
}

// Subscribe registers an observer and returns its subscription id.
// It returns an empty id for a nil observer or a closed publisher.
func (p *Publisher) Subscribe(o Observer) SubscriptionID {
	if o == nil {
		return ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ""
	}

	sub := &subscription{
		id:       SubscriptionID(uuid.NewString()),
		observer: o,
	}
	if p.delivery == DeliveryAsync {
		sub.mailbox = make(chan queuedOccurrence, p.mailboxSize)
		p.wg.Add(1)
		go p.drain(sub)
	}

	current := *p.subs.Load()
	next := make([]*subscription, len(current), len(current)+1)
	copy(next, current)
	next = append(next, sub)
	p.subs.Store(&next)

	return sub.id
}

// Unsubscribe removes an observer. It reports whether the id was registered.
// An async observer still receives what is already in its mailbox.
func (p *Publisher) Unsubscribe(id SubscriptionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := *p.subs.Load()
	for i, sub := range current {
		if sub.id != id {
			continue
		}
		next := make([]*subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		p.subs.Store(&next)
		sub.close()
		return true
	}
	return false
}

// Len returns the number of subscribed observers.
func (p *Publisher) Len() int {
	return len(*p.subs.Load())
}

// Publish delivers occ to every observer subscribed when the call starts.
// It is a no-op while the publisher is disabled or closed.
func (p *Publisher) Publish(ctx context.Context, occ Occurrence) {
	if !p.Enabled() {
		return
	}
	p.published.Add(1)
	ctx = orBackground(ctx)

	for _, sub := range *p.subs.Load() {
		if p.delivery == DeliveryAsync {
			p.enqueue(ctx, sub, occ)
			continue
		}
		p.deliver(ctx, sub, occ)
	}
}

// Stats returns a snapshot of the delivery counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published:   p.published.Load(),
		Delivered:   p.delivered.Load(),
		Failed:      p.failed.Load(),
		Panicked:    p.panicked.Load(),
		TimedOut:    p.timedOut.Load(),
		Dropped:     p.dropped.Load(),
		Subscribers: p.Len(),
	}
}

// Close stops accepting occurrences, removes every subscription and waits for
// async mailboxes to drain. It returns ctx.Err() if ctx ends first.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	current := *p.subs.Load()
	empty := make([]*subscription, 0)
	p.subs.Store(&empty)
	p.mu.Unlock()

	for _, sub := range current {
		sub.close()
	}
	ctx = orBackground(ctx)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) enqueue(ctx context.Context, sub *subscription, occ Occurrence) {
	q := queuedOccurrence{ctx: context.WithoutCancel(ctx), occ: occ}
	if sub.offer(q) {
		return
	}
	if sub.isClosed() {
		return
	}
	p.dropped.Add(1)
	p.logger.LogAttrs(ctx, slog.LevelWarn, "observer mailbox full, occurrence dropped",
		logger.MachineID(occ.MachineID),
		logger.SubscriptionID(string(sub.id)),
		logger.Occurrence(occ.Kind.String()),
		logger.Sequence(occ.Sequence),
	)
}

func (p *Publisher) drain(sub *subscription) {
	defer p.wg.Done()
	for q := range sub.mailbox {
		p.deliver(q.ctx, sub, q.occ)
	}
}

// deliver hands each observer its own copy of the transition.
func (p *Publisher) deliver(ctx context.Context, sub *subscription, occ Occurrence) {
	start := time.Now()
	occ.Transition = occ.Transition.clone()

	var err error
	if p.timeout > 0 {
		err = notifyWithTimeout(ctx, sub.observer, occ, p.timeout)
	} else {
		err = notifySafely(ctx, sub.observer, occ)
	}

	if err == nil {
		p.delivered.Add(1)
		return
	}

	var panicErr *ErrRecoveredPanic
	switch {
	case errors.Is(err, ErrObserverTimeout):
		p.timedOut.Add(1)
	case errors.As(err, &panicErr):
		p.panicked.Add(1)
	default:
		p.failed.Add(1)
	}

	p.logger.LogAttrs(ctx, slog.LevelError, "observer failed",
		logger.MachineID(occ.MachineID),
		logger.SubscriptionID(string(sub.id)),
		logger.Occurrence(occ.Kind.String()),
		logger.Sequence(occ.Sequence),
		logger.Duration(time.Since(start)),
		logger.Error(err),
	)
	p.report(ctx, sub.id, occ, err)
}

func (p *Publisher) report(ctx context.Context, id SubscriptionID, occ Occurrence, err error) {
	if p.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.LogAttrs(ctx, slog.LevelError, "observer error handler panicked",
				logger.SubscriptionID(string(id)),
				slog.Any("panic", r),
			)
		}
	}()
	p.onError(ctx, id, occ, err)
}

func notifySafely(ctx context.Context, o Observer, occ Occurrence) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrRecoveredPanic{Value: r, Stack: debug.Stack()}
		}
	}()
	return o.Notify(ctx, occ)
}

// notifyWithTimeout runs the observer on its own goroutine and stops waiting
// after timeout. The observer's context is cancelled at that point; a call that
// ignores it keeps running in the background.
func notifyWithTimeout(ctx context.Context, o Observer, occ Occurrence, timeout time.Duration) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- notifySafely(callCtx, o, occ)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrObserverTimeout, timeout)
	}
}

func (s *subscription) offer(q queuedOccurrence) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.mailbox <- q:
		return true
	default:
		return false
	}
}

func (s *subscription) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.mailbox != nil {
		close(s.mailbox)
	}
}
