// Package attendance wires the press gesture, the roster prefetch cache and the attendance
// sessions together: a committed press opens a session fed from the prefetched roster.
package attendance

import (
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
	"github.com/trezcool/presence/core/gesture"
	"github.com/trezcool/presence/core/prefetch"
	"github.com/trezcool/presence/core/session"
)

type (
	// UiSink receives everything the UI renders from.
	UiSink interface {
		gesture.Sink
		session.Sink
		OnModalOpen(open ModalOpen)
		OnModalClose(close ModalClose)
	}

	ModalOpen struct {
		SessionID string       `json:"session_id"`
		Target    core.Target  `json:"target"`
		PressID   uint64       `json:"press_id"`
		Loading   bool         `json:"loading"`  // waiting on the roster
		Prefetch  string       `json:"prefetch"` // status of the prefetch entry at commit
		View      session.View `json:"view"`
	}

	ModalClose struct {
		SessionID string `json:"session_id"`
	}

	Options struct {
		Clock     clock.Clock
		Config    *core.Config
		Loader    core.DataLoader
		Submitter core.Submitter
		Notifier  core.Notifier
		Recorder  core.MarkRecorder // optional
		Sink      UiSink
		Logger    core.Logger
		NewID     func() string // defaults to random UUIDs
	}

	openSession struct {
		sess        *session.Session
		cancelAwait func()
	}

	// Service must only be used from the clock's loop.
	Service struct {
		sink     UiSink
		log      core.Logger
		newID    func() string
		gestures *gesture.Controller
		prefetch *prefetch.Scheduler
		deps     session.Deps

		sessions map[string]*openSession
		order    []string
	}
)

var _ gesture.Committer = (*Service)(nil)

func NewService(opts Options) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Clock, "Clock"),
		vala.IsNotNil(opts.Config, "Config"),
		vala.IsNotNil(opts.Loader, "Loader"),
		vala.IsNotNil(opts.Submitter, "Submitter"),
		vala.IsNotNil(opts.Notifier, "Notifier"),
		vala.IsNotNil(opts.Sink, "Sink"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "validating attendance options")
	}

	conf := opts.Config
	validate, translator := core.NewValidator(conf.Debounce.ContentRules())
	svc := &Service{
		sink:     opts.Sink,
		log:      opts.Logger,
		newID:    opts.NewID,
		sessions: make(map[string]*openSession),
		deps: session.Deps{
			Clock:      opts.Clock,
			Submitter:  opts.Submitter,
			Notifier:   opts.Notifier,
			Recorder:   opts.Recorder,
			Validate:   validate,
			Translator: translator,
			Sink:       opts.Sink,
			Log:        opts.Logger,
			Debounce:   conf.Debounce,
			Notify:     conf.Notify,
		},
	}
	if svc.newID == nil {
		svc.newID = func() string { return uuid.New().String() }
	}
	svc.prefetch = prefetch.NewScheduler(opts.Clock, opts.Loader, conf.Prefetch, opts.Logger)
	svc.gestures = gesture.NewController(opts.Clock, conf.Gesture, svc.prefetch, svc, opts.Sink, opts.Logger)
	return svc, nil
}

// Input

func (svc *Service) PressDown(target core.Target, at gesture.Point) error {
	if err := svc.deps.Validate.Struct(target); err != nil {
		return core.TranslateErrors(err, svc.deps.Translator)
	}
	return svc.gestures.PressDown(target, at)
}

func (svc *Service) PointerMove(at gesture.Point) { svc.gestures.PointerMove(at) }
func (svc *Service) PressUp(at gesture.Point)     { svc.gestures.PressUp(at) }

// GestureState returns the recognizer state and the held press, if any.
func (svc *Service) GestureState() (gesture.State, *gesture.PressSession) {
	if press, ok := svc.gestures.Active(); ok {
		return svc.gestures.State(), &press
	}
	return svc.gestures.State(), nil
}

func (svc *Service) PrefetchStats() prefetch.Stats { return svc.prefetch.Stats() }

// Commit opens a session for a committed press, from the prefetched roster when it is ready.
// A pending prefetch is awaited with the modal in its loading view; a failed one is reloaded.
func (svc *Service) Commit(press gesture.PressSession) {
	id := svc.newID()
	sess := session.Open(id, press.Target, svc.deps)
	open := &openSession{sess: sess}
	svc.sessions[id] = open
	svc.order = append(svc.order, id)

	entry, ok := svc.prefetch.Lookup(press.Target)
	switch {
	case !ok:
		entry = svc.prefetch.Request(press.Target)
	case entry.Status == prefetch.Failed:
		svc.log.Info("prefetch failed, reloading roster", press.Target, map[string]interface{}{"session": id})
		entry = svc.prefetch.Reload(press.Target)
	}
	prefetchStatus := entry.Status.String()
	if entry.Status == prefetch.Ready {
		sess.Load(entry.Roster, nil)
	}

	svc.sink.OnModalOpen(ModalOpen{
		SessionID: id,
		Target:    press.Target,
		PressID:   press.ID,
		Loading:   sess.Status() == session.Loading,
		Prefetch:  prefetchStatus,
		View:      sess.View(),
	})

	if sess.Status() == session.Loading {
		open.cancelAwait = svc.prefetch.Await(press.Target, func(e prefetch.Entry) {
			open.cancelAwait = nil
			sess.Load(e.Roster, e.Err)
		})
	}
}

// Sessions

func (svc *Service) get(id string) (*session.Session, error) {
	open, ok := svc.sessions[id]
	if !ok {
		return nil, errors.Wrapf(core.ErrSessionNotFound, "session %s", id)
	}
	return open.sess, nil
}

func (svc *Service) Session(id string) (session.View, error) {
	sess, err := svc.get(id)
	if err != nil {
		return session.View{}, err
	}
	return sess.View(), nil
}

// Sessions lists the open sessions, oldest first.
func (svc *Service) Sessions() []session.View {
	views := make([]session.View, 0, len(svc.order))
	for _, id := range svc.order {
		views = append(views, svc.sessions[id].sess.View())
	}
	return views
}

func (svc *Service) Mark(id, studentID string, state core.MarkState) error {
	sess, err := svc.get(id)
	if err != nil {
		return err
	}
	return sess.MarkStudent(studentID, state)
}

func (svc *Service) EditContent(id, content string) error {
	sess, err := svc.get(id)
	if err != nil {
		return err
	}
	return sess.SetContent(content)
}

// SelectRole selects role, or clears the selection when role is core.RoleNone.
func (svc *Service) SelectRole(id string, role core.Role) error {
	sess, err := svc.get(id)
	if err != nil {
		return err
	}
	return sess.SelectRole(role)
}

func (svc *Service) Focus(id string) error {
	sess, err := svc.get(id)
	if err != nil {
		return err
	}
	return sess.Focus()
}

func (svc *Service) Blur(id string) error {
	sess, err := svc.get(id)
	if err != nil {
		return err
	}
	return sess.Blur()
}

// Close closes the modal of a session and forgets it.
func (svc *Service) Close(id string) error {
	open, ok := svc.sessions[id]
	if !ok {
		return errors.Wrapf(core.ErrSessionNotFound, "session %s", id)
	}
	if open.cancelAwait != nil {
		open.cancelAwait()
	}
	open.sess.Close()
	delete(svc.sessions, id)
	for i, sid := range svc.order {
		if sid == id {
			svc.order = append(svc.order[:i], svc.order[i+1:]...)
			break
		}
	}
	svc.sink.OnModalClose(ModalClose{SessionID: id})
	return nil
}

// CloseAll closes every open session.
func (svc *Service) CloseAll() {
	for _, id := range append([]string(nil), svc.order...) {
		_ = svc.Close(id)
	}
}
