// Package clock is the single-threaded event loop every core component runs on.
//
// Components never lock. Instead, input events, timer firings and results of blocking work
// are all delivered as funcs on one loop, in order. A Clock schedules those funcs.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrLoopClosed = errors.New("loop closed")

// Timer is a handle on a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Post runs fn on the loop as soon as possible, after the funcs already queued.
	Post(fn func())
	// Go runs fn off the loop. Blocking work goes here; its results come back through Post.
	Go(fn func())
}

// Runner runs a func on the loop and waits for it. It is how other goroutines call into
// loop-owned components.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Loop is the real-time Clock. Callbacks run on the goroutine calling Run.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	// OnPanic, when set, receives values recovered from panicking callbacks.
	OnPanic func(v interface{})
}

var (
	_ Clock  = (*Loop)(nil) // interface compliance check
	_ Runner = (*Loop)(nil)
)

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// stopped is only touched on the loop
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

func (l *Loop) Go(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// Run processes queued funcs until ctx is done. Work started with Go is waited for before
// Run returns; its late results are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.pending = nil
		l.mu.Unlock()
		close(l.done)
		l.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	if l.OnPanic != nil {
		defer func() {
			if v := recover(); v != nil {
				l.OnPanic(v)
			}
		}()
	}
	fn()
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

type loopTimer struct {
	timer   *time.Timer
	stopped bool
}

// Stop must be called on the loop.
func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
