// Package prefetch caches roster loads per target so a charging press can warm up the data
// its modal will need.
//
// Entries are stored before their load starts, so every request for the same target made
// while the load runs shares it. Resolved entries live for a TTL; failed ones only for a short
// while, after which a new request loads again. Callers only ever get Entry values, so a
// snapshot never changes under them.
package prefetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
)

type Status int

const (
	Pending Status = iota
	Ready
	Failed
)

var statusNames = [...]string{"pending", "ready", "failed"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Entry is a snapshot of a cached load.
type Entry struct {
	Target      core.Target `json:"target"`
	Seq         uint64      `json:"seq"`
	Status      Status      `json:"status"`
	RequestedAt time.Time   `json:"requested_at"`
	ResolvedAt  time.Time   `json:"resolved_at,omitempty"`
	Roster      core.Roster `json:"roster"`
	Err         error       `json:"-"`
}

func (e Entry) Resolved() bool { return e.Status != Pending }

type Stats struct {
	Requests  uint64 `json:"requests"`
	Hits      uint64 `json:"hits"`
	Loads     uint64 `json:"loads"`
	Failures  uint64 `json:"failures"`
	Evictions uint64 `json:"evictions"`
}

type entry struct {
	Entry
	waiters map[uint64]func(Entry)
	expiry  clock.Timer
}

// Scheduler must only be used from the clock's loop.
type Scheduler struct {
	clk    clock.Clock
	loader core.DataLoader
	cfg    core.PrefetchConfig
	log    core.Logger

	entries  map[string]*entry
	seq      uint64
	waiterID uint64
	stats    Stats
}

func NewScheduler(clk clock.Clock, loader core.DataLoader, cfg core.PrefetchConfig, logger core.Logger) *Scheduler {
	return &Scheduler{
		clk:     clk,
		loader:  loader,
		cfg:     cfg,
		log:     logger,
		entries: make(map[string]*entry),
	}
}

// Prefetch makes Scheduler a gesture.Prefetcher.
func (s *Scheduler) Prefetch(target core.Target) {
	s.Request(target)
}

// Request returns the live entry of target, or stores a new pending one and starts loading it.
func (s *Scheduler) Request(target core.Target) Entry {
	s.stats.Requests++
	if e := s.live(target.Key()); e != nil {
		s.stats.Hits++
		return e.Entry
	}
	return s.start(target, false).Entry
}

// Lookup returns the live entry of target without loading anything.
func (s *Scheduler) Lookup(target core.Target) (Entry, bool) {
	if e := s.live(target.Key()); e != nil {
		return e.Entry, true
	}
	return Entry{}, false
}

// Reload replaces the entry of target with a fresh load, retried with exponential backoff.
// A load already in flight is joined instead.
func (s *Scheduler) Reload(target core.Target) Entry {
	s.stats.Requests++
	if e := s.entries[target.Key()]; e != nil && e.Status == Pending {
		s.stats.Hits++
		return e.Entry
	}
	return s.start(target, true).Entry
}

// Await calls fn on the loop with the resolved entry of target, loading it if needed.
// The returned func cancels the call if it has not happened yet.
func (s *Scheduler) Await(target core.Target, fn func(Entry)) (cancel func()) {
	e := s.live(target.Key())
	if e == nil {
		s.stats.Requests++
		e = s.start(target, false)
	}

	if e.Resolved() {
		snapshot := e.Entry
		cancelled := false
		s.clk.Post(func() {
			if !cancelled {
				fn(snapshot)
			}
		})
		return func() { cancelled = true }
	}

	s.waiterID++
	id := s.waiterID
	e.waiters[id] = fn
	return func() { delete(e.waiters, id) }
}

func (s *Scheduler) Stats() Stats { return s.stats }

// live returns the entry stored under key unless it has expired.
func (s *Scheduler) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.Status != Pending && !s.clk.Now().Before(e.ResolvedAt.Add(s.ttl(e.Status))) {
		s.evict(key, e)
		return nil
	}
	return e
}

func (s *Scheduler) ttl(status Status) time.Duration {
	if status == Failed {
		return s.cfg.FailedTTL
	}
	return s.cfg.TTL
}

func (s *Scheduler) start(target core.Target, retry bool) *entry {
	key := target.Key()
	if old := s.entries[key]; old != nil && old.expiry != nil {
		old.expiry.Stop()
	}

	s.seq++
	e := &entry{
		Entry: Entry{
			Target:      target,
			Seq:         s.seq,
			Status:      Pending,
			RequestedAt: s.clk.Now(),
		},
		waiters: make(map[uint64]func(Entry)),
	}
	s.entries[key] = e
	s.stats.Loads++

	s.clk.Go(func() {
		roster, err := s.load(target, retry)
		s.clk.Post(func() { s.resolve(key, e, roster, err) })
	})
	return e
}

// load runs off the loop.
func (s *Scheduler) load(target core.Target, retry bool) (core.Roster, error) {
	ctx := context.Background()
	if s.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LoadTimeout)
		defer cancel()
	}
	if !retry || s.cfg.RetryAttempts <= 1 {
		return s.loader.LoadCourseAndRoster(ctx, target)
	}

	bo := backoff.NewExponentialBackOff()
	if s.cfg.RetryInterval > 0 {
		bo.InitialInterval = s.cfg.RetryInterval
	}
	return backoff.Retry(ctx, func() (core.Roster, error) {
		roster, err := s.loader.LoadCourseAndRoster(ctx, target)
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return roster, backoff.Permanent(err) // bad target, retrying won't help
		}
		return roster, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(s.cfg.RetryAttempts))
}

func (s *Scheduler) resolve(key string, e *entry, roster core.Roster, err error) {
	e.ResolvedAt = s.clk.Now()
	if err != nil {
		s.stats.Failures++
		e.Status = Failed
		e.Err = core.WithKind(core.ErrPrefetchFailed, err)
		s.log.Warn("prefetch failed", e.Err, e.Target)
	} else {
		e.Status = Ready
		e.Roster = roster
	}

	if s.entries[key] == e {
		e.expiry = s.clk.AfterFunc(s.ttl(e.Status), func() {
			if s.entries[key] == e {
				s.evict(key, e)
			}
		})
	}

	waiters := e.waiters
	e.waiters = nil
	for _, fn := range waiters {
		fn(e.Entry)
	}
}

func (s *Scheduler) evict(key string, e *entry) {
	if e.expiry != nil {
		e.expiry.Stop()
	}
	delete(s.entries, key)
	s.stats.Evictions++
}
