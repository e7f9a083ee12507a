package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
)

// Roster builds a roster of n students named s1..sn.
func Roster(course string, n int) core.Roster {
	r := core.Roster{Course: core.CourseInfo{Teacher: "王老師", Course: course, Period: "日 15:15-17:15", Date: "2026/10/18"}}
	for i := 1; i <= n; i++ {
		r.Students = append(r.Students, core.StudentRecord{ID: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("學生%d", i)})
	}
	return r
}

// Loader is a core.DataLoader serving canned rosters by Target.Course.
type Loader struct {
	mu      sync.Mutex
	Rosters map[string]core.Roster
	Errs    []error // returned by the next calls, in order
	calls   []core.Target
}

var _ core.DataLoader = (*Loader)(nil)

func NewLoader(rosters ...core.Roster) *Loader {
	l := &Loader{Rosters: make(map[string]core.Roster)}
	for _, r := range rosters {
		l.Rosters[r.Course.Course] = r
	}
	return l
}

func (l *Loader) LoadCourseAndRoster(_ context.Context, target core.Target) (core.Roster, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, target)
	if len(l.Errs) > 0 {
		err := l.Errs[0]
		l.Errs = l.Errs[1:]
		if err != nil {
			return core.Roster{}, err
		}
	}
	r, ok := l.Rosters[target.Course]
	if !ok {
		return core.Roster{}, errors.Errorf("no roster for %s", target)
	}
	return r, nil
}

func (l *Loader) FailNext(errs ...error) {
	l.mu.Lock()
	l.Errs = append(l.Errs, errs...)
	l.mu.Unlock()
}

func (l *Loader) Calls() []core.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Target(nil), l.calls...)
}

type Submission struct {
	SessionID string
	Report    core.Report
}

// Submitter is a core.Submitter recording every report.
type Submitter struct {
	mu    sync.Mutex
	Errs  []error
	calls []Submission
}

var _ core.Submitter = (*Submitter)(nil)

func (s *Submitter) SubmitReport(_ context.Context, sessionID string, report core.Report) (core.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Submission{SessionID: sessionID, Report: report})
	if len(s.Errs) > 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		if err != nil {
			return core.Ack{}, err
		}
	}
	return core.Ack{ID: fmt.Sprintf("ack-%d", len(s.calls)), Message: "ok", SubmittedAt: time.Unix(0, 0).UTC()}, nil
}

func (s *Submitter) FailNext(errs ...error) {
	s.mu.Lock()
	s.Errs = append(s.Errs, errs...)
	s.mu.Unlock()
}

func (s *Submitter) Calls() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.calls...)
}

type Notification struct {
	SessionID string
	Summary   core.Summary
}

// Notifier is a core.Notifier recording every summary.
type Notifier struct {
	mu    sync.Mutex
	Err   error
	calls []Notification
}

var _ core.Notifier = (*Notifier)(nil)

func (n *Notifier) SendAttendanceSummary(_ context.Context, sessionID string, summary core.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{SessionID: sessionID, Summary: summary})
	return n.Err
}

func (n *Notifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

type Mark struct {
	Target  core.Target
	Student core.StudentRecord
	State   core.MarkState
}

// Recorder is a core.MarkRecorder recording every mark.
type Recorder struct {
	mu    sync.Mutex
	marks []Mark
}

var _ core.MarkRecorder = (*Recorder)(nil)

func (r *Recorder) RecordMark(_ context.Context, target core.Target, _ core.CourseInfo, student core.StudentRecord, state core.MarkState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, Mark{Target: target, Student: student, State: state})
	return nil
}

func (r *Recorder) Marks() []Mark {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mark(nil), r.marks...)
}
