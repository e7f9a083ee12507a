// Package uifeed buffers UI events so HTTP clients can poll them in order.
package uifeed

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/presence/core/attendance"
	"github.com/trezcool/presence/core/gesture"
	"github.com/trezcool/presence/core/session"
)

// Event types.
const (
	GestureState       = "gesture_state"
	ChargeProgress     = "charge_progress"
	ModalOpen          = "modal_open"
	ModalClose         = "modal_close"
	SessionUpdate      = "session_update"
	CountdownTick      = "countdown_tick"
	CountdownCancelled = "countdown_cancelled"
	SubmitResult       = "submit_result"
	NotifyResult       = "notify_result"
)

type Event struct {
	Seq  uint64      `json:"seq"`
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

type submitPayload struct {
	session.SubmitResult
	Error string `json:"error,omitempty"`
}

// Feed is an attendance.UiSink keeping the last events in memory.
// Writes come from the loop; reads may come from any goroutine.
type Feed struct {
	mu     sync.Mutex
	now    func() time.Time
	size   int
	seq    uint64
	events []Event
	wake   chan struct{}
}

var _ attendance.UiSink = (*Feed)(nil)

func New(size int, now func() time.Time) *Feed {
	if size <= 0 {
		size = 512
	}
	if now == nil {
		now = time.Now
	}
	return &Feed{
		now:    now,
		size:   size,
		events: make([]Event, 0, size),
		wake:   make(chan struct{}),
	}
}

func (f *Feed) publish(typ string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	if len(f.events) == f.size {
		copy(f.events, f.events[1:])
		f.events = f.events[:f.size-1]
	}
	f.events = append(f.events, Event{Seq: f.seq, Type: typ, At: f.now(), Data: data})

	close(f.wake)
	f.wake = make(chan struct{})
}

// Since returns the buffered events with a sequence number above after, and the last sequence
// number published.
func (f *Feed) Since(after uint64) ([]Event, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since(after), f.seq
}

func (f *Feed) since(after uint64) []Event {
	events := make([]Event, 0)
	for _, e := range f.events {
		if e.Seq > after {
			events = append(events, e)
		}
	}
	return events
}

// Wait is Since, blocking until there is at least one event to return or ctx is done.
func (f *Feed) Wait(ctx context.Context, after uint64) ([]Event, uint64, error) {
	for {
		f.mu.Lock()
		events, last, wake := f.since(after), f.seq, f.wake
		f.mu.Unlock()
		if len(events) > 0 {
			return events, last, nil
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return events, last, ctx.Err()
		}
	}
}

// Events returns the buffered events of the given types (all of them if none is given).
func (f *Feed) Events(types ...string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]Event, 0)
	for _, e := range f.events {
		if len(types) == 0 {
			events = append(events, e)
			continue
		}
		for _, typ := range types {
			if e.Type == typ {
				events = append(events, e)
				break
			}
		}
	}
	return events
}

func (f *Feed) OnGestureState(change gesture.StateChange) {
	f.publish(GestureState, change)
}

func (f *Feed) OnChargeProgress(prog gesture.ChargeProgress) {
	f.publish(ChargeProgress, prog)
}

func (f *Feed) OnModalOpen(open attendance.ModalOpen) {
	f.publish(ModalOpen, open)
}

func (f *Feed) OnModalClose(close attendance.ModalClose) {
	f.publish(ModalClose, close)
}

func (f *Feed) OnSessionUpdate(view session.View) {
	f.publish(SessionUpdate, view)
}

func (f *Feed) OnCountdownTick(tick session.CountdownTick) {
	f.publish(CountdownTick, tick)
}

func (f *Feed) OnCountdownCancelled(cancel session.CountdownCancel) {
	f.publish(CountdownCancelled, cancel)
}

func (f *Feed) OnSubmitResult(result session.SubmitResult) {
	payload := submitPayload{SubmitResult: result}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}
	f.publish(SubmitResult, payload)
}

func (f *Feed) OnNotifyResult(result session.NotifyResult) {
	f.publish(NotifyResult, result)
}
