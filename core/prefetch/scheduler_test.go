package prefetch

import (
	"context"
	"sync"
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
	math101 = core.Target{Course: "Math 101", Period: "日 15:15-17:15"}
	art     = core.Target{Course: "Art", Period: "一 09:00-11:00"}
	roster  = core.Roster{
		Course:   core.CourseInfo{Teacher: "王老師", Course: "Math 101", Period: "日 15:15-17:15"},
		Students: []core.StudentRecord{{ID: "s1", Name: "小明"}, {ID: "s2", Name: "小華"}},
	}
)

type fakeLoader struct {
	mu    sync.Mutex
	calls []core.Target
	errs  []error // returned in order, then nil
}

func (l *fakeLoader) LoadCourseAndRoster(_ context.Context, target core.Target) (core.Roster, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, target)
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return core.Roster{}, err
		}
	}
	return roster, nil
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func testConfig() core.PrefetchConfig {
	return core.PrefetchConfig{
		TTL:           time.Minute,
		FailedTTL:     5 * time.Second,
		LoadTimeout:   time.Second,
		RetryAttempts: 3,
		RetryInterval: time.Millisecond,
	}
}

func newTestScheduler(loader *fakeLoader) (*Scheduler, *clock.Mock) {
	clk := clock.NewMock(time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC))
	clk.SetGoDelay(200 * time.Millisecond)
	return NewScheduler(clk, loader, testConfig(), logsvc.NewNop()), clk
}

func TestScheduler_Deduplicates(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	first := s.Request(math101)
	second := s.Request(math101)
	assert.Equal(t, Pending, first.Status)
	assert.Equal(t, first.Seq, second.Seq)

	clk.Advance(time.Second)
	third := s.Request(math101)
	assert.Equal(t, Ready, third.Status)
	assert.Equal(t, roster, third.Roster)
	assert.Equal(t, first.Seq, third.Seq)

	assert.Equal(t, 1, loader.count())
	assert.Equal(t, Stats{Requests: 3, Hits: 2, Loads: 1}, s.Stats())
	assert.Equal(t, Pending, first.Status, "snapshots never change")
}

func TestScheduler_TargetsAreIndependent(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	s.Request(math101)
	s.Request(art)
	s.Request(core.Target{Course: " math 101 ", Period: "日 15:15-17:15"}) // same key
	clk.Advance(time.Second)

	assert.Equal(t, 2, loader.count())
}

func TestScheduler_TTL(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	s.Request(math101)
	clk.Advance(time.Second)
	_, ok := s.Lookup(math101)
	require.True(t, ok)

	clk.Advance(59 * time.Second)
	_, ok = s.Lookup(math101)
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = s.Lookup(math101)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Stats().Evictions)

	assert.Equal(t, Pending, s.Request(math101).Status)
	clk.Advance(time.Second)
	assert.Equal(t, 2, loader.count())
}

func TestScheduler_FailedMarker(t *testing.T) {
	loader := &fakeLoader{errs: []error{errors.New("sheet timeout")}}
	s, clk := newTestScheduler(loader)

	s.Request(math101)
	clk.Advance(time.Second)

	failed := s.Request(math101)
	require.Equal(t, Failed, failed.Status)
	assert.True(t, errors.Is(failed.Err, core.ErrPrefetchFailed))
	assert.Equal(t, 1, loader.count())

	clk.Advance(4200 * time.Millisecond) // the marker resolved at 200ms and lives 5s
	assert.Equal(t, Pending, s.Request(math101).Status)
	clk.Advance(time.Second)
	assert.Equal(t, Ready, s.Request(math101).Status)
	assert.Equal(t, 2, loader.count())
}

func TestScheduler_ReloadRetries(t *testing.T) {
	loader := &fakeLoader{errs: []error{errors.New("503"), errors.New("503")}}
	s, clk := newTestScheduler(loader)

	first := s.Reload(math101)
	assert.Equal(t, Pending, first.Status)
	clk.Advance(time.Second)

	got, ok := s.Lookup(math101)
	require.True(t, ok)
	assert.Equal(t, Ready, got.Status)
	assert.Equal(t, 3, loader.count())
}

func TestScheduler_ReloadGivesUp(t *testing.T) {
	loader := &fakeLoader{errs: []error{errors.New("503"), errors.New("503"), errors.New("503"), nil}}
	s, clk := newTestScheduler(loader)

	s.Reload(math101)
	clk.Advance(time.Second)

	got, _ := s.Lookup(math101)
	assert.Equal(t, Failed, got.Status)
	assert.Equal(t, 3, loader.count())
}

func TestScheduler_ReloadStopsOnBadTarget(t *testing.T) {
	bad := core.NewValidationError(errors.New("unknown course"), core.FieldError{Field: "course", Error: "unknown course"})
	loader := &fakeLoader{errs: []error{bad}}
	s, clk := newTestScheduler(loader)

	s.Reload(math101)
	clk.Advance(time.Second)

	got, _ := s.Lookup(math101)
	assert.Equal(t, Failed, got.Status)
	assert.Equal(t, 1, loader.count())
}

func TestScheduler_ReloadJoinsPendingLoad(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	first := s.Request(math101)
	reloaded := s.Reload(math101)
	assert.Equal(t, first.Seq, reloaded.Seq)

	clk.Advance(time.Second)
	assert.Equal(t, 1, loader.count())

	replaced := s.Reload(math101)
	assert.NotEqual(t, first.Seq, replaced.Seq)
}

func TestScheduler_Await(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	s.Request(math101)
	var got []Entry
	s.Await(math101, func(e Entry) { got = append(got, e) })
	cancel := s.Await(math101, func(e Entry) { t.Error("cancelled waiter was called") })
	cancel()

	clk.Advance(100 * time.Millisecond)
	assert.Empty(t, got)
	clk.Advance(100 * time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, Ready, got[0].Status)

	// already resolved: delivered on the next loop turn
	var late []Entry
	s.Await(math101, func(e Entry) { late = append(late, e) })
	assert.Empty(t, late)
	clk.Flush()
	assert.Len(t, late, 1)
	assert.Equal(t, 1, loader.count())
}

func TestScheduler_AwaitStartsLoad(t *testing.T) {
	loader := new(fakeLoader)
	s, clk := newTestScheduler(loader)

	var got Entry
	s.Await(art, func(e Entry) { got = e })
	clk.Advance(time.Second)

	assert.Equal(t, Ready, got.Status)
	assert.Equal(t, []core.Target{art}, loader.calls)
}
