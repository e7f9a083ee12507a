package session

import (
	"time"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
)

// Batcher decides when the attendance summary of a session goes out: right away once every
// student is marked, or after a quiet period following the last mark. It flushes at most once.
type Batcher struct {
	clk          clock.Clock
	idleDelay    time.Duration
	onCompletion bool
	flush        func(reason core.SummaryReason)

	generation uint64
	timer      clock.Timer
	notified   bool
	closed     bool
}

func NewBatcher(clk clock.Clock, cfg core.NotifyConfig, flush func(core.SummaryReason)) *Batcher {
	return &Batcher{
		clk:          clk,
		idleDelay:    cfg.IdleDelay,
		onCompletion: cfg.OnCompletion,
		flush:        flush,
	}
}

// Marked records mark activity. complete tells whether no student is left unmarked.
func (b *Batcher) Marked(complete bool) {
	if b.notified || b.closed {
		return
	}
	if complete && b.onCompletion {
		b.fire(core.ReasonCompletion)
		return
	}

	b.stop()
	b.generation++
	gen := b.generation
	b.timer = b.clk.AfterFunc(b.idleDelay, func() {
		if gen == b.generation && !b.notified && !b.closed {
			b.fire(core.ReasonIdleTimeout)
		}
	})
}

// Notified reports whether the summary was flushed.
func (b *Batcher) Notified() bool { return b.notified }

// Pending reports whether an idle flush is scheduled.
func (b *Batcher) Pending() bool { return b.timer != nil }

// Close drops a scheduled flush without sending it.
func (b *Batcher) Close() {
	b.stop()
	b.generation++
	b.closed = true
}

func (b *Batcher) fire(reason core.SummaryReason) {
	b.stop()
	b.generation++
	b.notified = true
	b.flush(reason)
}

func (b *Batcher) stop() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
