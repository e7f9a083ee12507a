package session

import (
	"time"

	"github.com/trezcool/presence/core/clock"
)

// Countdown cancellation reasons.
const (
	CancelEdit   = "edit"
	CancelRole   = "role_cleared"
	CancelFocus  = "focus"
	CancelClosed = "closed"
)

// Debouncer runs the auto-submit countdown of one session.
//
// Arm (re)starts the countdown; when it expires with no Arm or Disarm in between, fire is
// called once and the debouncer stays idle until armed again. Only one fire may be
// outstanding: the owner calls Settle when the submission it started is over, and a countdown
// that expired meanwhile is reported back instead of firing on top of it.
type Debouncer struct {
	clk      clock.Clock
	delay    time.Duration
	interval time.Duration

	fire     func()
	onTick   func(remaining time.Duration)
	onCancel func(reason string)

	generation uint64
	armed      bool
	dueAt      time.Time
	timer      clock.Timer
	ticker     clock.Timer
	inFlight   bool
	deferred   bool
	closed     bool
}

func NewDebouncer(clk clock.Clock, delay, tickInterval time.Duration, fire func(), onTick func(time.Duration), onCancel func(string)) *Debouncer {
	return &Debouncer{
		clk:      clk,
		delay:    delay,
		interval: tickInterval,
		fire:     fire,
		onTick:   onTick,
		onCancel: onCancel,
	}
}

// Arm restarts the countdown from now.
func (d *Debouncer) Arm() {
	if d.closed {
		return
	}
	d.stop()
	d.generation++
	gen := d.generation
	d.armed = true
	d.dueAt = d.clk.Now().Add(d.delay)
	d.timer = d.clk.AfterFunc(d.delay, func() { d.expire(gen) })
	d.tick(gen)
}

// Disarm cancels a running countdown. It does nothing if none is running.
func (d *Debouncer) Disarm(reason string) {
	if !d.armed {
		return
	}
	d.stop()
	d.generation++
	d.armed = false
	if d.onCancel != nil {
		d.onCancel(reason)
	}
}

// Settle marks the outstanding fire as finished. It reports whether a countdown expired while
// it was running.
func (d *Debouncer) Settle() (expired bool) {
	d.inFlight = false
	expired, d.deferred = d.deferred, false
	return expired && !d.closed
}

// Close disarms for good.
func (d *Debouncer) Close() {
	d.Disarm(CancelClosed)
	d.closed = true
	d.deferred = false
}

func (d *Debouncer) Armed() bool        { return d.armed }
func (d *Debouncer) InFlight() bool     { return d.inFlight }
func (d *Debouncer) DueAt() time.Time   { return d.dueAt }
func (d *Debouncer) Generation() uint64 { return d.generation }

// Remaining is the time left on the countdown, zero when disarmed.
func (d *Debouncer) Remaining() time.Duration {
	if !d.armed {
		return 0
	}
	if r := d.dueAt.Sub(d.clk.Now()); r > 0 {
		return r
	}
	return 0
}

func (d *Debouncer) expire(gen uint64) {
	if gen != d.generation || !d.armed || d.closed {
		return
	}
	d.stop()
	d.armed = false
	if d.inFlight {
		d.deferred = true
		return
	}
	d.inFlight = true
	d.fire()
}

func (d *Debouncer) tick(gen uint64) {
	if d.onTick != nil {
		d.onTick(d.Remaining())
	}
	if d.interval <= 0 {
		return
	}
	d.ticker = d.clk.AfterFunc(d.interval, func() {
		if gen == d.generation && d.armed && d.Remaining() > 0 {
			d.tick(gen)
		}
	})
}

func (d *Debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
