package statemachine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

func newToggleMachine(b *testing.B, opts ...statemachine.Option) (*statemachine.Machine, statemachine.Event, statemachine.Event) {
	b.Helper()
	idle := statemachine.StringState("idle")
	running := statemachine.StringState("running")
	start := statemachine.StringEvent("start")
	stop := statemachine.StringEvent("stop")

	opts = append(opts,
		statemachine.WithTransition(idle, running, start),
		statemachine.WithTransition(running, idle, stop),
	)
	sm := statemachine.MustNew(idle, opts...)
	if err := sm.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = sm.Close(context.Background()) })
	return sm, start, stop
}

func noopObserver() statemachine.Observer {
	return statemachine.ObserverFunc(func(context.Context, statemachine.Occurrence) error { return nil })
}

func BenchmarkMachine_SendEvent_NotificationsDisabled(b *testing.B) {
	ctx := context.Background()
	sm, start, stop := newToggleMachine(b,
		statemachine.WithNotifications(false),
		statemachine.WithObservers(noopObserver()),
	)

	for b.Loop() {
		_ = sm.SendEvent(ctx, start, nil)
		_ = sm.SendEvent(ctx, stop, nil)
	}
}

func BenchmarkMachine_SendEvent_Observers(b *testing.B) {
	for _, n := range []int{0, 1, 8} {
		b.Run(fmt.Sprintf("observers=%d", n), func(b *testing.B) {
			ctx := context.Background()
			sm, start, stop := newToggleMachine(b)
			for range n {
				sm.Subscribe(noopObserver())
			}

			for b.Loop() {
				_ = sm.SendEvent(ctx, start, nil)
				_ = sm.SendEvent(ctx, stop, nil)
			}
		})
	}
}

func BenchmarkMachine_SendEvent_Async(b *testing.B) {
	ctx := context.Background()
	sm, start, stop := newToggleMachine(b,
		statemachine.WithDelivery(statemachine.DeliveryAsync),
		statemachine.WithMailboxSize(1024),
		statemachine.WithObservers(noopObserver()),
	)

	for b.Loop() {
		_ = sm.SendEvent(ctx, start, nil)
		_ = sm.SendEvent(ctx, stop, nil)
	}
}

func BenchmarkMachine_CanFire(b *testing.B) {
	ctx := context.Background()
	sm, start, stop := newToggleMachine(b)

	for b.Loop() {
		_ = sm.CanFire(ctx, start, nil)
		_ = sm.CanFire(ctx, stop, nil)
	}
}

func BenchmarkMachine_ConcurrentReadsAndWrites(b *testing.B) {
	ctx := context.Background()
	sm, start, stop := newToggleMachine(b, statemachine.WithObservers(noopObserver()))

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			switch i % 4 {
			case 0:
				_ = sm.SendEvent(ctx, start, nil)
			case 1:
				_ = sm.SendEvent(ctx, stop, nil)
			default:
				_ = sm.CurrentState()
				_ = sm.CanFire(ctx, start, nil)
			}
			i++
		}
	})
}

func BenchmarkNew_LargeTransitionTable(b *testing.B) {
	states := make([]statemachine.State, 100)
	for i := range states {
		states[i] = statemachine.StringState(fmt.Sprintf("s%d", i))
	}
	defs := make([]statemachine.TransitionDef, 0, len(states))
	next := statemachine.StringEvent("next")
	for i := range states {
		defs = append(defs, statemachine.TransitionDef{
			From:  states[i],
			To:    states[(i+1)%len(states)],
			Event: next,
		})
	}

	for b.Loop() {
		_ = statemachine.MustNew(states[0],
			statemachine.WithStates(states...),
			statemachine.WithTransitions(defs),
		)
	}
}
