package observer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fsmkit/pkg/observer"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	t.Run("records in order", func(t *testing.T) {
		t.Parallel()
		r := observer.NewRecorder()
		ctx := context.Background()

		require.NoError(t, r.Notify(ctx, statemachine.Occurrence{Kind: statemachine.TransitionStarted, Sequence: 1}))
		require.NoError(t, r.Notify(ctx, statemachine.Occurrence{Kind: statemachine.StateExited, Sequence: 2}))

		assert.Equal(t, 2, r.Count())
		assert.Equal(t, []statemachine.OccurrenceKind{statemachine.TransitionStarted, statemachine.StateExited}, r.Kinds())
		assert.Equal(t, 1, r.CountKind(statemachine.StateExited))
		assert.Equal(t, uint64(2), r.Occurrences()[1].Sequence)

		r.Reset()
		assert.Zero(t, r.Count())
	})

	t.Run("wait for is bounded", func(t *testing.T) {
		t.Parallel()
		r := observer.NewRecorder()

		start := time.Now()
		assert.False(t, r.WaitFor(1, 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("wait for wakes on notify", func(t *testing.T) {
		t.Parallel()
		r := observer.NewRecorder()

		var wg sync.WaitGroup
		for i := range 3 {
			wg.Add(1)
			go func(seq uint64) {
				defer wg.Done()
				_ = r.Notify(context.Background(), statemachine.Occurrence{Kind: statemachine.StateEntered, Sequence: seq})
			}(uint64(i))
		}

		assert.True(t, r.WaitFor(3, time.Second))
		wg.Wait()
	})

	t.Run("fail with returns error after recording", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		r := observer.NewRecorder().FailWith(boom)

		err := r.Notify(context.Background(), statemachine.Occurrence{Kind: statemachine.MachineStarted})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, r.Count())
	})
}

func TestFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := observer.NewRecorder()
	f := observer.Filter(rec, statemachine.StateEntered, statemachine.MachineStopped)

	for _, k := range []statemachine.OccurrenceKind{
		statemachine.MachineStarted,
		statemachine.TransitionStarted,
		statemachine.StateExited,
		statemachine.StateEntered,
		statemachine.TransitionEnded,
		statemachine.MachineStopped,
	} {
		require.NoError(t, f.Notify(ctx, statemachine.Occurrence{Kind: k}))
	}

	assert.Equal(t, []statemachine.OccurrenceKind{statemachine.StateEntered, statemachine.MachineStopped}, rec.Kinds())

	all := observer.NewRecorder()
	assert.Same(t, all, observer.Filter(all))
}
