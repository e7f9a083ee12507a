package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Mock is a virtual Clock for tests. Nothing happens until Advance (or Flush) is called;
// callbacks then run on the calling goroutine in due-time order.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	timers  []*mockTimer
	goDelay time.Duration
}

var (
	_ Clock  = (*Mock)(nil) // interface compliance check
	_ Runner = (*Mock)(nil)
)

func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

type mockTimer struct {
	mock    *Mock
	due     time.Time
	seq     uint64
	fn      func()
	stopped bool
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.mock.remove(t)
	return true
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule(d, fn)
}

func (m *Mock) Post(fn func()) {
	m.AfterFunc(0, fn)
}

// Go runs fn as a virtual background job: after the current GoDelay has elapsed, on the
// test goroutine.
func (m *Mock) Go(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule(m.goDelay, fn)
}

// SetGoDelay sets how long background jobs started with Go take to run.
func (m *Mock) SetGoDelay(d time.Duration) {
	m.mu.Lock()
	m.goDelay = d
	m.mu.Unlock()
}

func (m *Mock) schedule(d time.Duration, fn func()) *mockTimer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &mockTimer{mock: m, due: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	return t
}

func (m *Mock) remove(t *mockTimer) {
	for i, tt := range m.timers {
		if tt == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Advance moves virtual time forward by d, running every callback due on the way,
// including callbacks scheduled by those callbacks.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for len(m.timers) > 0 && !m.timers[0].due.After(target) {
		t := m.timers[0]
		m.timers = m.timers[1:]
		t.stopped = true
		if t.due.After(m.now) {
			m.now = t.due
		}
		m.mu.Unlock()
		t.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Do runs fn right away, on the calling goroutine.
func (m *Mock) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

// Flush runs everything due now.
func (m *Mock) Flush() { m.Advance(0) }

// Pending returns the number of scheduled callbacks.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
