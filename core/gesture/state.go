package gesture

import (
	"math"
	"time"

	"github.com/trezcool/presence/core"
)

// State of the gesture recognizer. UI styling is a pure function of it.
type State int

const (
	Idle State = iota
	Pressing
	Charging
	Preloading
	Releasing
	Committed
	Cancelled
)

var stateNames = [...]string{"idle", "pressing", "charging", "preloading", "releasing", "committed", "cancelled"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// holding reports whether the pointer is still down on an accepted press.
func (s State) holding() bool {
	return s == Pressing || s == Charging || s == Preloading
}

// charged reports whether the charging feedback is visible.
func (s State) charged() bool {
	return s == Charging || s == Preloading
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// PressSession is the press currently owned by the Controller.
type PressSession struct {
	ID        uint64      `json:"id"`
	Target    core.Target `json:"target"`
	StartTime time.Time   `json:"start_time"`
	Start     Point       `json:"start"`
	LastState State       `json:"last_state"`
	Cancelled bool        `json:"cancelled"`
}

type StateChange struct {
	PressID uint64      `json:"press_id"`
	Target  core.Target `json:"target"`
	From    State       `json:"from"`
	To      State       `json:"to"`
	At      time.Time   `json:"at"`
}

// ChargeProgress is the elapsed press time over the commit delay, in [0, 1].
type ChargeProgress struct {
	PressID  uint64      `json:"press_id"`
	Target   core.Target `json:"target"`
	State    State       `json:"state"`
	Progress float64     `json:"progress"`
}
