package session

import (
	"time"

	"github.com/trezcool/presence/core"
)

type (
	StudentView struct {
		core.StudentRecord
		State core.MarkState `json:"state"`
	}

	CountdownView struct {
		Armed      bool      `json:"armed"`
		DueAt      time.Time `json:"due_at,omitempty"`
		Generation uint64    `json:"generation"`
		InFlight   bool      `json:"in_flight"`
	}

	// View is a read-only snapshot of a Session.
	View struct {
		ID           string             `json:"id"`
		Target       core.Target        `json:"target"`
		Status       Status             `json:"status"`
		CreatedAt    time.Time          `json:"created_at"`
		Course       core.CourseInfo    `json:"course"`
		Students     []StudentView      `json:"students"`
		LoadError    string             `json:"load_error,omitempty"`
		Draft        Draft              `json:"draft"`
		Dirty        bool               `json:"dirty"`
		Focused      bool               `json:"focused"`
		Countdown    CountdownView      `json:"countdown"`
		Submissions  int                `json:"submissions"`
		LastAck      *core.Ack          `json:"last_ack,omitempty"`
		SubmitError  string             `json:"submit_error,omitempty"`
		Notified     bool               `json:"notified"`
		NotifyReason core.SummaryReason `json:"notify_reason,omitempty"`
	}
)

// Counts returns how many students are present, absent and unmarked.
func (v View) Counts() (present, absent, unmarked int) {
	for _, st := range v.Students {
		switch st.State {
		case core.Present:
			present++
		case core.Absent:
			absent++
		default:
			unmarked++
		}
	}
	return present, absent, unmarked
}

func (s *Session) View() View {
	v := View{
		ID:        s.ID,
		Target:    s.Target,
		Status:    s.status,
		CreatedAt: s.CreatedAt,
		Course:    s.course,
		Students:  make([]StudentView, 0, len(s.students)),
		Draft:     s.draft,
		Dirty:     s.dirty,
		Focused:   s.focused,
		Countdown: CountdownView{
			Armed:      s.debouncer.Armed(),
			Generation: s.debouncer.Generation(),
			InFlight:   s.debouncer.InFlight(),
		},
		Submissions:  s.submissions,
		Notified:     s.batcher.Notified(),
		NotifyReason: s.notifyReason,
	}
	for _, st := range s.students {
		v.Students = append(v.Students, StudentView{StudentRecord: st, State: s.marks[st.ID]})
	}
	if v.Countdown.Armed {
		v.Countdown.DueAt = s.debouncer.DueAt()
	}
	if s.loadErr != nil {
		v.LoadError = s.loadErr.Error()
	}
	if s.lastAck != nil {
		ack := *s.lastAck
		v.LastAck = &ack
	}
	if s.lastSubmit != nil {
		v.SubmitError = s.lastSubmit.Error()
	}
	return v
}
