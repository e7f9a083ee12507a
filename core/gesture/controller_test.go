package gesture

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
	logsvc "github.com/trezcool/presence/services/logger"
)

var (
	math101 = core.Target{Course: "Math 101", Period: "日 15:15-17:15", Date: "2026/10/18"}
	special = core.Target{Course: "Robotics", Period: "六 09:00-12:00", Kind: "special"}
)

func testConfig() core.GestureConfig {
	return core.GestureConfig{
		ChargeDelay:      500 * time.Millisecond,
		PreloadDelay:     time.Second,
		CommitDelay:      1500 * time.Millisecond,
		CommitDelays:     map[string]time.Duration{"special": 2 * time.Second},
		ReleaseDuration:  300 * time.Millisecond,
		ProgressInterval: 50 * time.Millisecond,
		MoveThreshold:    15,
	}
}

type recorder struct {
	changes    []StateChange
	progress   []ChargeProgress
	prefetched []core.Target
	committed  []PressSession
}

func (r *recorder) Prefetch(target core.Target)          { r.prefetched = append(r.prefetched, target) }
func (r *recorder) Commit(press PressSession)            { r.committed = append(r.committed, press) }
func (r *recorder) OnGestureState(change StateChange)    { r.changes = append(r.changes, change) }
func (r *recorder) OnChargeProgress(prog ChargeProgress) { r.progress = append(r.progress, prog) }

func (r *recorder) path() []State {
	states := make([]State, 0, len(r.changes))
	for _, c := range r.changes {
		states = append(states, c.To)
	}
	return states
}

func newTestController(t *testing.T) (*Controller, *clock.Mock, *recorder) {
	t.Helper()
	clk := clock.NewMock(time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC))
	rec := new(recorder)
	ctrl := NewController(clk, testConfig(), rec, rec, rec, logsvc.NewNop())
	return ctrl, clk, rec
}

func TestController_ShortPress(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(300 * time.Millisecond)
	ctrl.PressUp(Point{})
	clk.Advance(5 * time.Second)

	assert.Equal(t, []State{Pressing, Idle}, rec.path())
	assert.Empty(t, rec.prefetched)
	assert.Empty(t, rec.progress)
	assert.Empty(t, rec.committed)
	assert.Equal(t, 0, clk.Pending())
}

func TestController_FullPressCommitsOnce(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{X: 10, Y: 10}))
	clk.Advance(2 * time.Second)
	ctrl.PressUp(Point{X: 10, Y: 10})
	clk.Advance(time.Second)

	assert.Equal(t, []State{Pressing, Charging, Preloading, Committed, Idle}, rec.path())
	assert.Equal(t, []core.Target{math101}, rec.prefetched)
	require.Len(t, rec.committed, 1)
	assert.Equal(t, uint64(1), rec.committed[0].ID)
	assert.Equal(t, math101, rec.committed[0].Target)
	assert.Equal(t, Committed, rec.committed[0].LastState)
	assert.Equal(t, Idle, ctrl.State())

	_, active := ctrl.Active()
	assert.False(t, active)
}

func TestController_ChargeProgress(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(2 * time.Second)

	require.NotEmpty(t, rec.progress)
	assert.InDelta(t, 1.0/3, rec.progress[0].Progress, 1e-9)
	assert.Equal(t, Charging, rec.progress[0].State)
	last := rec.progress[len(rec.progress)-1]
	assert.Equal(t, 1.0, last.Progress)
	for i := 1; i < len(rec.progress); i++ {
		assert.GreaterOrEqual(t, rec.progress[i].Progress, rec.progress[i-1].Progress)
	}
}

func TestController_ReleaseWhileCharging(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(800 * time.Millisecond)
	ctrl.PressUp(Point{})
	ctrl.PressUp(Point{}) // second release is a no-op
	assert.Equal(t, Releasing, ctrl.State())

	clk.Advance(300 * time.Millisecond)
	assert.Equal(t, []State{Pressing, Charging, Releasing, Idle}, rec.path())
	assert.Len(t, rec.prefetched, 1, "the prefetch stays in flight")
	assert.Empty(t, rec.committed)
}

func TestController_ReleaseWhilePreloading(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(1200 * time.Millisecond)
	ctrl.PressUp(Point{})
	clk.Advance(time.Second)

	assert.Equal(t, []State{Pressing, Charging, Preloading, Releasing, Idle}, rec.path())
	assert.Empty(t, rec.committed)
}

func TestController_RepeatedEarlyReleasesNeverCommit(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	for _, held := range []time.Duration{300, 800, 1200, 1499, 100, 1400} {
		require.NoError(t, ctrl.PressDown(math101, Point{}))
		clk.Advance(held * time.Millisecond)
		ctrl.PressUp(Point{})
		clk.Advance(350 * time.Millisecond) // past the release animation
	}
	clk.Advance(10 * time.Second)

	assert.Empty(t, rec.committed)
	assert.Equal(t, Idle, ctrl.State())
}

func TestController_PressConflict(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(700 * time.Millisecond)

	err := ctrl.PressDown(special, Point{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrGestureConflict))
	assert.Equal(t, core.ErrGestureConflict, errors.Cause(err))

	press, ok := ctrl.Active()
	require.True(t, ok)
	assert.Equal(t, uint64(1), press.ID)
	assert.Equal(t, math101, press.Target)

	clk.Advance(time.Second)
	require.Len(t, rec.committed, 1)
	assert.Equal(t, math101, rec.committed[0].Target)
}

func TestController_PressDuringReleaseIsIgnored(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(800 * time.Millisecond)
	ctrl.PressUp(Point{})
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, Releasing, ctrl.State())

	err := ctrl.PressDown(special, Point{})
	assert.True(t, errors.Is(err, core.ErrGestureConflict))
	_, ok := ctrl.Active()
	assert.False(t, ok)

	clk.Advance(2 * time.Second) // no queued press surfaces after the animation
	assert.Equal(t, Idle, ctrl.State())
	assert.Empty(t, rec.committed)
	assert.Len(t, rec.prefetched, 1)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(1500 * time.Millisecond)
	require.Len(t, rec.committed, 1)
	assert.Equal(t, uint64(2), rec.committed[0].ID)
}

func TestController_StaleReleaseCallback(t *testing.T) {
	ctrl, clk, _ := newTestController(t)

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(800 * time.Millisecond)
	ctrl.PressUp(Point{})
	require.Equal(t, Releasing, ctrl.State())

	ctrl.finishRelease(99)
	assert.Equal(t, Releasing, ctrl.State())
	ctrl.finishRelease(1)
	assert.Equal(t, Idle, ctrl.State())
	ctrl.finishRelease(1)
	assert.Equal(t, Idle, ctrl.State())
}

func TestController_PointerMove(t *testing.T) {
	tests := []struct {
		name     string
		heldFor  time.Duration
		moveTo   Point
		wantPath []State
	}{
		{
			name:     "within threshold",
			heldFor:  600 * time.Millisecond,
			moveTo:   Point{X: 10, Y: 5},
			wantPath: []State{Pressing, Charging, Preloading, Committed, Idle},
		},
		{
			name:     "drag before charging",
			heldFor:  200 * time.Millisecond,
			moveTo:   Point{X: 0, Y: 40},
			wantPath: []State{Pressing, Cancelled, Idle},
		},
		{
			name:     "drag while charging",
			heldFor:  600 * time.Millisecond,
			moveTo:   Point{X: 20, Y: 0},
			wantPath: []State{Pressing, Charging, Cancelled, Releasing, Idle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, clk, rec := newTestController(t)

			require.NoError(t, ctrl.PressDown(math101, Point{}))
			clk.Advance(tt.heldFor)
			ctrl.PointerMove(tt.moveTo)
			clk.Advance(3 * time.Second)
			ctrl.PressUp(tt.moveTo)

			assert.Equal(t, tt.wantPath, rec.path())
		})
	}
}

func TestController_CommitDelayPerKind(t *testing.T) {
	ctrl, clk, rec := newTestController(t)

	require.NoError(t, ctrl.PressDown(special, Point{}))
	clk.Advance(1600 * time.Millisecond)
	assert.Empty(t, rec.committed)
	assert.Equal(t, Preloading, ctrl.State())

	clk.Advance(400 * time.Millisecond)
	assert.Len(t, rec.committed, 1)
}

func TestController_MisorderedDelays(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	rec := new(recorder)
	cfg := testConfig()
	cfg.CommitDelay = 200 * time.Millisecond // shorter than the charge delay
	ctrl := NewController(clk, cfg, rec, rec, rec, logsvc.NewNop())

	require.NoError(t, ctrl.PressDown(math101, Point{}))
	clk.Advance(time.Second)

	assert.Equal(t, []State{Pressing, Charging, Preloading, Committed, Idle}, rec.path())
	assert.Len(t, rec.prefetched, 1)
}
