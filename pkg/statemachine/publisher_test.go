package statemachine_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fsmkit/pkg/observer"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

func TestObserverIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		reported []error
	)
	handler := func(ctx context.Context, id statemachine.SubscriptionID, occ statemachine.Occurrence, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	boom := errors.New("sink unavailable")
	rec := observer.NewRecorder()
	m := newScenarioMachine(t,
		statemachine.WithErrorHandler(handler),
		statemachine.WithObservers(
			statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error { panic("observer exploded") }),
			statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error { return boom }),
			rec,
		),
	)

	require.NoError(t, m.Start(ctx))
	res := m.SendEvent(ctx, E1, nil)

	require.True(t, res.Applied())
	assert.Equal(t, S2, m.CurrentState())
	assert.Equal(t, 5, rec.Count())

	stats := m.Stats()
	assert.Equal(t, uint64(5), stats.Published)
	assert.Equal(t, uint64(5), stats.Panicked)
	assert.Equal(t, uint64(5), stats.Failed)
	assert.Equal(t, uint64(5), stats.Delivered)
	assert.Equal(t, 3, stats.Subscribers)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 10)
	assert.True(t, statemachine.IsRecoveredPanic(reported[0]))
	assert.ErrorIs(t, reported[1], boom)
}

func TestErrorHandlerPanicIsContained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := observer.NewRecorder()

	m := newScenarioMachine(t,
		statemachine.WithErrorHandler(func(context.Context, statemachine.SubscriptionID, statemachine.Occurrence, error) {
			panic("handler exploded")
		}),
		statemachine.WithObservers(
			statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error { return errors.New("x") }),
			rec,
		),
	)

	require.NoError(t, m.Start(ctx))
	assert.True(t, m.SendEvent(ctx, E1, nil).Applied())
	assert.Equal(t, 5, rec.Count())
}

func TestSubscriptionChangesDuringPublish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newScenarioMachine(t)

	late := observer.NewRecorder()
	var (
		selfID statemachine.SubscriptionID
		once   sync.Once
		calls  atomic.Int32
	)
	selfID = m.Subscribe(statemachine.ObserverFunc(func(ctx context.Context, occ statemachine.Occurrence) error {
		calls.Add(1)
		once.Do(func() {
			assert.True(t, m.Unsubscribe(selfID))
			m.Subscribe(late)
		})
		return nil
	}))
	require.NotEmpty(t, selfID)

	require.NoError(t, m.Start(ctx))
	require.True(t, m.SendEvent(ctx, E1, nil).Applied())

	assert.Equal(t, int32(1), calls.Load())
	// Late subscriber misses MachineStarted, which was already being delivered.
	assert.Equal(t, 4, late.Count())
	assert.False(t, m.Unsubscribe(selfID))
	assert.False(t, m.Unsubscribe("missing"))
}

func TestSubscribeNil(t *testing.T) {
	t.Parallel()
	m := newScenarioMachine(t)
	assert.Empty(t, m.Subscribe(nil))
	assert.Zero(t, m.Stats().Subscribers)
}

func TestReentrantSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	back := statemachine.StringEvent("back")
	m := statemachine.MustNew(S1,
		statemachine.WithTransition(S1, S2, E1),
		statemachine.WithTransition(S2, S1, back),
	)
	t.Cleanup(func() { _ = m.Close(ctx) })

	var (
		nested     statemachine.Result
		stopErr    error
		observedAt statemachine.State
	)
	m.Subscribe(statemachine.ObserverFunc(func(ctx context.Context, occ statemachine.Occurrence) error {
		if occ.Kind == statemachine.TransitionEnded {
			observedAt = m.CurrentState()
			nested = m.SendEvent(ctx, back, nil)
			stopErr = m.Stop(ctx)
		}
		return nil
	}))

	require.NoError(t, m.Start(ctx))

	done := make(chan statemachine.Result, 1)
	go func() { done <- m.SendEvent(ctx, E1, nil) }()

	select {
	case res := <-done:
		assert.True(t, res.Applied())
	case <-time.After(2 * time.Second):
		t.Fatal("reentrant send deadlocked")
	}

	assert.Equal(t, S2, observedAt)
	assert.Equal(t, statemachine.ReasonReentrant, nested.Reason)
	assert.ErrorIs(t, nested.Err(), statemachine.ErrReentrantSend)
	assert.ErrorIs(t, stopErr, statemachine.ErrReentrantSend)
	assert.Equal(t, S2, m.CurrentState())
	assert.True(t, m.IsStarted())

	// A fresh context is not treated as reentrant.
	assert.True(t, m.SendEvent(context.Background(), back, nil).Applied())
}

func TestAsyncDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("preserves order per observer", func(t *testing.T) {
		t.Parallel()
		back := statemachine.StringEvent("back")
		rec := observer.NewRecorder()
		m := statemachine.MustNew(S1,
			statemachine.WithDelivery(statemachine.DeliveryAsync),
			statemachine.WithMailboxSize(256),
			statemachine.WithTransition(S1, S2, E1),
			statemachine.WithTransition(S2, S1, back),
			statemachine.WithObservers(rec),
		)

		require.NoError(t, m.Start(ctx))
		for range 10 {
			require.True(t, m.SendEvent(ctx, E1, nil).Applied())
			require.True(t, m.SendEvent(ctx, back, nil).Applied())
		}
		require.NoError(t, m.Close(ctx))

		occs := rec.Occurrences()
		require.Len(t, occs, 81)
		for i, occ := range occs {
			assert.Equal(t, uint64(i+1), occ.Sequence)
		}
	})

	t.Run("drops on full mailbox", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		var delivered atomic.Int32
		m := newScenarioMachine(t,
			statemachine.WithDelivery(statemachine.DeliveryAsync),
			statemachine.WithMailboxSize(1),
			statemachine.WithObservers(statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error {
				<-release
				delivered.Add(1)
				return nil
			})),
		)

		require.NoError(t, m.Start(ctx))
		require.True(t, m.SendEvent(ctx, E1, nil).Applied())
		assert.Equal(t, S2, m.CurrentState())

		assert.GreaterOrEqual(t, m.Stats().Dropped, uint64(3))

		close(release)
		require.NoError(t, m.Close(ctx))

		stats := m.Stats()
		assert.Equal(t, uint64(5), stats.Delivered+stats.Dropped)
		assert.Equal(t, int32(stats.Delivered), delivered.Load())
	})

	t.Run("observers may send events", func(t *testing.T) {
		t.Parallel()
		back := statemachine.StringEvent("back")
		var once sync.Once
		var m *statemachine.Machine
		m = statemachine.MustNew(S1,
			statemachine.WithDelivery(statemachine.DeliveryAsync),
			statemachine.WithTransition(S1, S2, E1),
			statemachine.WithTransition(S2, S1, back),
			statemachine.WithObservers(statemachine.ObserverFunc(func(ctx context.Context, occ statemachine.Occurrence) error {
				if occ.Kind == statemachine.StateEntered && occ.State == S2 {
					once.Do(func() { _ = m.SendEvent(ctx, back, nil) })
				}
				return nil
			})),
		)
		t.Cleanup(func() { _ = m.Close(ctx) })

		require.NoError(t, m.Start(ctx))
		require.True(t, m.SendEvent(ctx, E1, nil).Applied())

		assert.Eventually(t, func() bool { return m.CurrentState() == S1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("close times out on a stuck observer", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		defer close(release)

		m := newScenarioMachine(t,
			statemachine.WithDelivery(statemachine.DeliveryAsync),
			statemachine.WithObservers(statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error {
				<-release
				return nil
			})),
		)
		require.NoError(t, m.Start(ctx))

		closeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, m.Close(closeCtx), context.DeadlineExceeded)
		assert.False(t, m.NotificationsEnabled())
	})
}

func TestObserverTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := observer.NewRecorder()
	m := newScenarioMachine(t,
		statemachine.WithObserverTimeout(20*time.Millisecond),
		statemachine.WithObservers(
			statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			}),
			rec,
		),
	)

	require.NoError(t, m.Start(ctx))

	start := time.Now()
	res := m.SendEvent(ctx, E1, nil)
	elapsed := time.Since(start)

	require.True(t, res.Applied())
	assert.Less(t, elapsed, 700*time.Millisecond)
	assert.Equal(t, 5, rec.Count())
	assert.Equal(t, uint64(5), m.Stats().TimedOut)
}

func TestConcurrentEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	A := statemachine.StringState("A")
	B := statemachine.StringState("B")
	toB := statemachine.StringEvent("to_b")
	toA := statemachine.StringEvent("to_a")
	noop := statemachine.StringEvent("noop")

	rec := observer.NewRecorder()
	m := statemachine.MustNew(A,
		statemachine.WithTransition(A, B, toB),
		statemachine.WithTransition(B, A, toA),
		statemachine.WithObservers(rec),
	)
	t.Cleanup(func() { _ = m.Close(ctx) })
	require.NoError(t, m.Start(ctx))

	events := []statemachine.Event{toB, toA, noop, noop}
	var (
		wg      sync.WaitGroup
		applied atomic.Int64
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				ev := events[rand.IntN(len(events))]
				res := m.SendEvent(ctx, ev, nil)
				if res.Applied() {
					applied.Add(1)
				}
				if ev == noop {
					assert.Equal(t, statemachine.ReasonNoMatchingTransition, res.Reason)
				}
				_ = m.CurrentState()
			}
		}()
	}
	wg.Wait()

	occs := rec.Occurrences()
	require.Equal(t, 1+4*int(applied.Load()), len(occs))

	for i, occ := range occs {
		require.Equal(t, uint64(i+1), occ.Sequence)
	}

	// Every applied transition is a contiguous block of four.
	want := []statemachine.OccurrenceKind{
		statemachine.TransitionStarted,
		statemachine.StateExited,
		statemachine.StateEntered,
		statemachine.TransitionEnded,
	}
	last := statemachine.State(A)
	for i := 1; i < len(occs); i += 4 {
		for j, kind := range want {
			require.Equal(t, kind, occs[i+j].Kind)
		}
		require.Equal(t, last, occs[i+1].State)
		last = occs[i+2].State
	}
	assert.Equal(t, last, m.CurrentState())
}

func TestParseDeliveryMode(t *testing.T) {
	t.Parallel()

	mode, err := statemachine.ParseDeliveryMode("ASYNC")
	require.NoError(t, err)
	assert.Equal(t, statemachine.DeliveryAsync, mode)

	mode, err = statemachine.ParseDeliveryMode("")
	require.NoError(t, err)
	assert.Equal(t, statemachine.DeliverySync, mode)

	_, err = statemachine.ParseDeliveryMode("batch")
	assert.ErrorIs(t, err, statemachine.ErrUnknownDelivery)
}

func TestPublisherStandalone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := statemachine.NewPublisher()
	rec := observer.NewRecorder()
	id := p.Subscribe(rec)

	p.Publish(ctx, statemachine.Occurrence{Kind: statemachine.StateEntered})
	p.SetEnabled(false)
	p.Publish(ctx, statemachine.Occurrence{Kind: statemachine.StateEntered})
	p.SetEnabled(true)

	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, 1, p.Len())

	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
	p.Publish(ctx, statemachine.Occurrence{Kind: statemachine.StateEntered})
	assert.Equal(t, 1, rec.Count())
	assert.Empty(t, p.Subscribe(rec))
	assert.False(t, p.Unsubscribe(id))
}
