package uifeed

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/attendance"
	"github.com/trezcool/presence/core/gesture"
	"github.com/trezcool/presence/core/session"
)

func TestFeed_SinceAndRing(t *testing.T) {
	f := New(3, nil)
	for i := 0; i < 5; i++ {
		f.OnGestureState(gesture.StateChange{PressID: uint64(i)})
	}

	events, last := f.Since(0)
	assert.Equal(t, uint64(5), last)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)

	events, _ = f.Since(4)
	require.Len(t, events, 1)
	assert.Equal(t, GestureState, events[0].Type)

	events, _ = f.Since(5)
	assert.Empty(t, events)
}

func TestFeed_SubmitErrorIsRendered(t *testing.T) {
	f := New(10, nil)
	f.OnSubmitResult(session.SubmitResult{SessionID: "s", Err: core.WithKind(core.ErrSubmitFailed, errors.New("503"))})

	events := f.Events(SubmitResult)
	require.Len(t, events, 1)
	payload := events[0].Data.(submitPayload)
	assert.Equal(t, "report submission failed: 503", payload.Error)
}

func TestFeed_Events(t *testing.T) {
	f := New(10, nil)
	f.OnCountdownTick(session.CountdownTick{SessionID: "s"})
	f.OnModalClose(attendance.ModalClose{SessionID: "s"})
	f.OnCountdownTick(session.CountdownTick{SessionID: "s"})

	assert.Len(t, f.Events(), 3)
	assert.Len(t, f.Events(CountdownTick), 2)
	assert.Len(t, f.Events(CountdownTick, ModalClose), 3)
	assert.Empty(t, f.Events(NotifyResult))
}

func TestFeed_Wait(t *testing.T) {
	f := New(10, nil)

	done := make(chan []Event, 1)
	go func() {
		events, _, err := f.Wait(context.Background(), 0)
		assert.NoError(t, err)
		done <- events
	}()

	time.Sleep(10 * time.Millisecond)
	f.OnCountdownCancelled(session.CountdownCancel{SessionID: "s", Reason: session.CancelFocus})

	select {
	case events := <-done:
		require.Len(t, events, 1)
		assert.Equal(t, CountdownCancelled, events[0].Type)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	events, last, err := f.Wait(ctx, 1)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(1), last)
}
