// Package session holds what an opened attendance modal owns: the roster and its marks, the
// teacher report draft with its auto-submit countdown, and the summary notification batcher.
//
// A Session is created when a press commits and lives until Close. It is driven from the
// clock's loop only; submissions and notifications run off the loop and report back to it.
package session

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
)

type Status int

const (
	Loading  Status = iota // waiting for the roster
	Ready                  // roster loaded
	Degraded               // no roster: teacher report only
	Closed
)

var statusNames = [...]string{"loading", "ready", "degraded", "closed"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type (
	// Sink receives what the modal renders.
	Sink interface {
		OnSessionUpdate(view View)
		OnCountdownTick(tick CountdownTick)
		OnCountdownCancelled(cancel CountdownCancel)
		OnSubmitResult(result SubmitResult)
		OnNotifyResult(result NotifyResult)
	}

	CountdownTick struct {
		SessionID  string        `json:"session_id"`
		Generation uint64        `json:"generation"`
		Remaining  time.Duration `json:"remaining"`
	}

	CountdownCancel struct {
		SessionID string `json:"session_id"`
		Reason    string `json:"reason"`
	}

	SubmitResult struct {
		SessionID string      `json:"session_id"`
		Report    core.Report `json:"report"`
		Ack       core.Ack    `json:"ack"`
		Err       error       `json:"-"`
	}

	// NotifyResult reports a delivered summary. Failed deliveries are only logged.
	NotifyResult struct {
		SessionID string       `json:"session_id"`
		Summary   core.Summary `json:"summary"`
	}

	// Deps are the collaborators shared by all sessions.
	Deps struct {
		Clock      clock.Clock
		Submitter  core.Submitter
		Notifier   core.Notifier
		Recorder   core.MarkRecorder // optional
		Validate   *validator.Validate
		Translator ut.Translator
		Sink       Sink
		Log        core.Logger
		Debounce   core.DebounceConfig
		Notify     core.NotifyConfig
	}

	Draft struct {
		Role    core.Role `json:"role"`
		Content string    `json:"content"`
	}

	Session struct {
		ID        string
		Target    core.Target
		CreatedAt time.Time

		deps     Deps
		status   Status
		course   core.CourseInfo
		students []core.StudentRecord
		marks    map[string]core.MarkState
		loadErr  error

		draft       Draft
		dirty       bool // draft changed since the last submission
		focused     bool
		submissions int
		lastAck     *core.Ack
		lastSubmit  error

		notifyReason core.SummaryReason

		debouncer *Debouncer
		batcher   *Batcher
	}
)

// Open creates a session waiting for its roster.
func Open(id string, target core.Target, deps Deps) *Session {
	s := &Session{
		ID:        id,
		Target:    target,
		CreatedAt: deps.Clock.Now(),
		deps:      deps,
		status:    Loading,
		course:    core.CourseInfo{Course: target.Course, Period: target.Period, Date: target.Date},
		marks:     make(map[string]core.MarkState),
	}
	s.debouncer = NewDebouncer(deps.Clock, deps.Debounce.Delay, deps.Debounce.TickInterval,
		s.submit,
		func(remaining time.Duration) {
			deps.Sink.OnCountdownTick(CountdownTick{SessionID: id, Generation: s.debouncer.Generation(), Remaining: remaining})
		},
		func(reason string) {
			deps.Sink.OnCountdownCancelled(CountdownCancel{SessionID: id, Reason: reason})
		},
	)
	s.batcher = NewBatcher(deps.Clock, deps.Notify, s.notify)
	return s
}

// Load resolves the roster of a Loading session. A failed or empty roster leaves the session
// usable for the teacher report only.
func (s *Session) Load(roster core.Roster, err error) {
	if s.status != Loading {
		return
	}
	if err != nil {
		s.status = Degraded
		s.loadErr = core.WithKind(core.ErrRosterUnavailable, err)
		s.deps.Log.Warn("session opened without roster", s.loadErr, s.Target, map[string]interface{}{"session": s.ID})
		s.loaded()
		return
	}

	if roster.Course.Course != "" {
		s.course = roster.Course
	}
	s.students = append([]core.StudentRecord(nil), roster.Students...)
	for _, st := range s.students {
		s.marks[st.ID] = core.Unmarked
	}
	if len(s.students) == 0 {
		s.status = Degraded
		s.loadErr = core.WithKind(core.ErrRosterUnavailable, errors.New("no students enrolled"))
	} else {
		s.status = Ready
	}
	s.loaded()
}

// loaded starts the countdown held back while the roster was loading.
func (s *Session) loaded() {
	if s.dirty && !s.focused && s.qualifies() == nil {
		s.debouncer.Arm()
	}
	s.update()
}

func (s *Session) Status() Status { return s.status }

// MarkStudent sets the attendance of one student. Setting a student to the state it already
// has does nothing.
func (s *Session) MarkStudent(studentID string, state core.MarkState) error {
	switch s.status {
	case Closed:
		return core.ErrSessionClosed
	case Loading, Degraded:
		return core.WithKind(core.ErrRosterUnavailable, errors.Errorf("session %s has no roster", s.ID))
	}
	if state < core.Unmarked || state > core.Absent {
		return core.NewValidationError(errors.Errorf("invalid mark state %d", state),
			core.FieldError{Field: "state", Error: "invalid mark state"})
	}

	studentID = core.CleanString(studentID)
	current, ok := s.marks[studentID]
	if !ok {
		return &core.UnknownStudentError{ID: studentID, Suggestion: suggest(studentID, s.students)}
	}
	if current == state {
		return nil
	}
	s.marks[studentID] = state
	s.record(studentID, state)
	s.update()
	s.batcher.Marked(s.complete())
	return nil
}

// SetContent replaces the report text.
func (s *Session) SetContent(content string) error {
	if s.status == Closed {
		return core.ErrSessionClosed
	}
	if content != s.draft.Content {
		s.draft.Content = content
		s.dirty = true
	}
	s.rearm(CancelEdit)
	s.update()
	return nil
}

// SelectRole picks who files the report. Selecting a role, even the current one, restarts a
// running countdown.
func (s *Session) SelectRole(role core.Role) error {
	if s.status == Closed {
		return core.ErrSessionClosed
	}
	if role == core.RoleNone {
		return s.ClearRole()
	}
	if err := s.deps.Validate.Var(string(role), "role"); err != nil {
		return core.NewValidationError(errors.Errorf("invalid role %q", role),
			core.FieldError{Field: "role", Error: "role must be one of: teacher, assistant"})
	}
	if role != s.draft.Role {
		s.draft.Role = role
		s.dirty = true
	}
	s.rearm(CancelEdit)
	s.update()
	return nil
}

func (s *Session) ClearRole() error {
	if s.status == Closed {
		return core.ErrSessionClosed
	}
	if s.draft.Role != core.RoleNone {
		s.draft.Role = core.RoleNone
		s.dirty = true
	}
	s.debouncer.Disarm(CancelRole)
	s.update()
	return nil
}

// Focus pauses the countdown while the user types.
func (s *Session) Focus() error {
	if s.status == Closed {
		return core.ErrSessionClosed
	}
	s.focused = true
	s.debouncer.Disarm(CancelFocus)
	s.update()
	return nil
}

// Blur resumes the countdown if the draft changed since it was last sent.
func (s *Session) Blur() error {
	if s.status == Closed {
		return core.ErrSessionClosed
	}
	s.focused = false
	if s.dirty && s.qualifies() == nil {
		s.debouncer.Arm()
	}
	s.update()
	return nil
}

// Close releases every timer of the session. A submission in flight completes, but its result
// is dropped.
func (s *Session) Close() {
	if s.status == Closed {
		return
	}
	s.status = Closed
	s.debouncer.Close()
	s.batcher.Close()
	s.update()
}

// rearm restarts the countdown after an edit. A draft that was already sent stays idle until
// it changes.
func (s *Session) rearm(reason string) {
	switch {
	case s.qualifies() != nil:
		s.debouncer.Disarm(reason)
	case s.dirty || s.debouncer.Armed():
		s.debouncer.Arm()
	}
}

func (s *Session) report() core.Report {
	return core.Report{
		Teacher:      s.course.Teacher,
		Course:       s.course.Course,
		Period:       s.course.Period,
		Date:         s.course.Date,
		Role:         s.draft.Role,
		Content:      core.CleanString(s.draft.Content),
		StudentCount: len(s.students),
	}
}

// qualifies validates the report the draft would produce. Nothing qualifies before the
// roster is in, since the report carries its teacher and headcount.
func (s *Session) qualifies() error {
	if s.status == Loading {
		return core.WithKind(core.ErrRosterUnavailable, errors.Errorf("session %s is loading its roster", s.ID))
	}
	if err := s.deps.Validate.Struct(s.report()); err != nil {
		return core.TranslateErrors(err, s.deps.Translator)
	}
	return nil
}

// submit runs when the countdown expires.
func (s *Session) submit() {
	report := s.report()
	if err := s.qualifies(); err != nil {
		s.debouncer.Settle()
		s.deps.Log.Debug("countdown expired on an invalid draft", err, map[string]interface{}{"session": s.ID})
		return
	}
	s.dirty = false
	s.update()

	clk, submitter, timeout, id := s.deps.Clock, s.deps.Submitter, s.deps.Debounce.SubmitTimeout, s.ID
	clk.Go(func() {
		ctx, cancel := contextWithTimeout(timeout)
		defer cancel()
		ack, err := submitter.SubmitReport(ctx, id, report)
		clk.Post(func() { s.submitted(report, ack, err) })
	})
}

func (s *Session) submitted(report core.Report, ack core.Ack, err error) {
	expired := s.debouncer.Settle()
	s.submissions++
	if s.status == Closed {
		s.deps.Log.Info("submission finished after close", err, map[string]interface{}{"session": s.ID})
		return
	}

	result := SubmitResult{SessionID: s.ID, Report: report}
	if err != nil {
		result.Err = core.WithKind(core.ErrSubmitFailed, err)
		s.lastSubmit = result.Err
		s.dirty = true
		s.deps.Log.Error("report submission failed", result.Err, map[string]interface{}{"session": s.ID})
	} else {
		result.Ack = ack
		s.lastAck = &ack
		s.lastSubmit = nil
	}
	s.deps.Sink.OnSubmitResult(result)

	if expired && s.dirty && s.qualifies() == nil {
		s.debouncer.Arm()
	}
	s.update()
}

// notify is the Batcher's flush.
func (s *Session) notify(reason core.SummaryReason) {
	s.notifyReason = reason
	summary := s.summary(reason)
	s.update()

	clk, notifier, timeout, id, log := s.deps.Clock, s.deps.Notifier, s.deps.Notify.Timeout, s.ID, s.deps.Log
	clk.Go(func() {
		ctx, cancel := contextWithTimeout(timeout)
		defer cancel()
		if err := notifier.SendAttendanceSummary(ctx, id, summary); err != nil {
			// never surfaced nor retried
			log.Error("attendance notification failed", core.WithKind(core.ErrNotifyFailed, err), map[string]interface{}{"session": id})
			return
		}
		clk.Post(func() {
			if s.status != Closed {
				s.deps.Sink.OnNotifyResult(NotifyResult{SessionID: id, Summary: summary})
			}
		})
	})
}

func (s *Session) summary(reason core.SummaryReason) core.Summary {
	sum := core.Summary{Target: s.Target, Course: s.course, Reason: reason, At: s.deps.Clock.Now()}
	for _, st := range s.students {
		switch s.marks[st.ID] {
		case core.Present:
			sum.Present = append(sum.Present, st)
		case core.Absent:
			sum.Absent = append(sum.Absent, st)
		default:
			sum.Unmarked = append(sum.Unmarked, st)
		}
	}
	return sum
}

func (s *Session) complete() bool {
	for _, st := range s.marks {
		if st == core.Unmarked {
			return false
		}
	}
	return len(s.marks) > 0
}

// record writes a mark through to the attendance store, best effort.
func (s *Session) record(studentID string, state core.MarkState) {
	if s.deps.Recorder == nil {
		return
	}
	var student core.StudentRecord
	for _, st := range s.students {
		if st.ID == studentID {
			student = st
			break
		}
	}
	recorder, target, course, log, timeout := s.deps.Recorder, s.Target, s.course, s.deps.Log, s.deps.Notify.Timeout
	s.deps.Clock.Go(func() {
		ctx, cancel := contextWithTimeout(timeout)
		defer cancel()
		if err := recorder.RecordMark(ctx, target, course, student, state); err != nil {
			log.Warn("recording mark failed", err, map[string]interface{}{"student": student.ID, "state": state.String()})
		}
	})
}

func (s *Session) update() {
	s.deps.Sink.OnSessionUpdate(s.View())
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}
