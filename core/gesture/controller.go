// Package gesture turns a sustained press into a staged "charge then open" gesture.
//
// A press moves Idle -> Pressing -> Charging -> Preloading -> Committed. Charging starts a
// prefetch of the pressed target; Committed hands the press to a Committer which opens the
// session. Releasing (or dragging) earlier aborts the press. All methods must be called on
// the clock's loop.
package gesture

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
)

type (
	// Prefetcher is told to warm up a target as soon as a press starts charging.
	Prefetcher interface {
		Prefetch(target core.Target)
	}

	// Committer opens whatever a committed press points at.
	Committer interface {
		Commit(press PressSession)
	}

	Sink interface {
		OnGestureState(change StateChange)
		OnChargeProgress(progress ChargeProgress)
	}

	Controller struct {
		clk        clock.Clock
		cfg        core.GestureConfig
		prefetcher Prefetcher
		committer  Committer
		sink       Sink
		log        core.Logger

		state       State
		lastID      uint64
		press       *PressSession // held press
		releasing   *PressSession // press whose release animation is playing
		commitDelay time.Duration

		stages       []clock.Timer
		ticker       clock.Timer
		releaseTimer clock.Timer
	}
)

func NewController(clk clock.Clock, cfg core.GestureConfig, prefetcher Prefetcher, committer Committer, sink Sink, logger core.Logger) *Controller {
	return &Controller{
		clk:        clk,
		cfg:        cfg,
		prefetcher: prefetcher,
		committer:  committer,
		sink:       sink,
		log:        logger,
	}
}

func (c *Controller) State() State { return c.state }

// Active returns a copy of the press being held, if any.
func (c *Controller) Active() (PressSession, bool) {
	if c.press == nil {
		return PressSession{}, false
	}
	return *c.press, true
}

// PressDown starts a press on target. It fails with core.ErrGestureConflict unless the
// controller is Idle, including while the release animation of the previous press plays;
// the new press is then ignored.
func (c *Controller) PressDown(target core.Target, at Point) error {
	switch {
	case c.state.holding():
		return core.WithKind(core.ErrGestureConflict, errors.Errorf("press %d is %s", c.press.ID, c.state))
	case c.releasing != nil:
		return core.WithKind(core.ErrGestureConflict, errors.Errorf("press %d is %s", c.releasing.ID, c.state))
	}

	c.lastID++
	id := c.lastID
	c.press = &PressSession{
		ID:        id,
		Target:    target,
		StartTime: c.clk.Now(),
		Start:     at,
	}
	c.transition(c.press, Pressing)

	var charge, preload time.Duration
	charge, preload, c.commitDelay = c.delays(target)
	c.stages = []clock.Timer{
		c.clk.AfterFunc(charge, func() { c.charge(id) }),
		c.clk.AfterFunc(preload, func() { c.preload(id) }),
		c.clk.AfterFunc(c.commitDelay, func() { c.commit(id) }),
	}
	return nil
}

// PointerMove cancels the held press once the pointer drifts beyond the move threshold
// (the user is scrolling, not pressing).
func (c *Controller) PointerMove(at Point) {
	if !c.state.holding() {
		return
	}
	if c.cfg.MoveThreshold <= 0 || c.press.Start.Dist(at) <= c.cfg.MoveThreshold {
		return
	}
	charged := c.state.charged()
	c.press.Cancelled = true
	c.transition(c.press, Cancelled)
	c.abort(charged)
}

// PressUp ends the held press. Before the commit delay this aborts it; a press released
// before it started charging leaves no trace.
func (c *Controller) PressUp(Point) {
	if !c.state.holding() {
		return
	}
	c.abort(c.state.charged())
}

// abort drops the held press, playing the release animation if charging was visible.
// In-flight prefetches are left alone.
func (c *Controller) abort(charged bool) {
	p := c.press
	c.press = nil
	c.stopStages()
	if !charged {
		c.transition(p, Idle)
		return
	}
	c.startRelease(p)
}

func (c *Controller) startRelease(p *PressSession) {
	if c.state == Releasing && c.releasing == p {
		return
	}
	c.releasing = p
	c.transition(p, Releasing)
	id := p.ID
	c.releaseTimer = c.clk.AfterFunc(c.cfg.ReleaseDuration, func() { c.finishRelease(id) })
}

func (c *Controller) finishRelease(id uint64) {
	if c.state != Releasing || c.releasing == nil || c.releasing.ID != id {
		c.log.Debug("stale release callback", map[string]interface{}{"press": id})
		return
	}
	p := c.releasing
	c.releasing = nil
	c.transition(p, Idle)
}

func (c *Controller) charge(id uint64) {
	if !c.current(id, Pressing) {
		return
	}
	c.transition(c.press, Charging)
	c.log.Info("prefetch triggered", map[string]interface{}{"press": id, "target": c.press.Target.String()})
	c.prefetcher.Prefetch(c.press.Target)
	c.tick(id)
}

func (c *Controller) preload(id uint64) {
	if !c.current(id, Charging) {
		return
	}
	c.transition(c.press, Preloading)
}

func (c *Controller) commit(id uint64) {
	if !c.current(id, Preloading) {
		return
	}
	p := c.press
	c.press = nil
	c.stopStages()
	c.sink.OnChargeProgress(ChargeProgress{PressID: id, Target: p.Target, State: Preloading, Progress: 1})
	c.transition(p, Committed)
	c.committer.Commit(*p)
	if c.state == Committed {
		c.transition(p, Idle)
	}
}

func (c *Controller) tick(id uint64) {
	p := c.press
	progress := 1.0
	if c.commitDelay > 0 {
		progress = float64(c.clk.Now().Sub(p.StartTime)) / float64(c.commitDelay)
	}
	if progress > 1 {
		progress = 1
	}
	c.sink.OnChargeProgress(ChargeProgress{PressID: id, Target: p.Target, State: c.state, Progress: progress})

	if c.cfg.ProgressInterval <= 0 {
		return
	}
	c.ticker = c.clk.AfterFunc(c.cfg.ProgressInterval, func() {
		if c.current(id, Charging, Preloading) {
			c.tick(id)
		}
	})
}

// current reports whether id is the held press and it is in one of states.
// Every deferred callback checks it before acting.
func (c *Controller) current(id uint64, states ...State) bool {
	if c.press == nil || c.press.ID != id {
		return false
	}
	for _, s := range states {
		if c.state == s {
			return true
		}
	}
	return false
}

func (c *Controller) stopStages() {
	for _, t := range c.stages {
		t.Stop()
	}
	c.stages = nil
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) transition(p *PressSession, to State) {
	from := c.state
	c.state = to
	p.LastState = to
	c.sink.OnGestureState(StateChange{PressID: p.ID, Target: p.Target, From: from, To: to, At: c.clk.Now()})
}

// delays returns the charge, preload and commit offsets of a press on target, kept in order.
func (c *Controller) delays(target core.Target) (charge, preload, commit time.Duration) {
	charge = c.cfg.ChargeDelay
	preload = c.cfg.PreloadDelay
	if preload < charge {
		preload = charge
	}
	commit = c.cfg.CommitDelayFor(target.Kind)
	if commit < preload {
		commit = preload
	}
	return charge, preload, commit
}
