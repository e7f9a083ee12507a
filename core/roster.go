package core

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Target identifies what a press opens: one course in one time slot.
type Target struct {
	Course string `json:"course" validate:"required"`
	Period string `json:"period" validate:"required"` // eg. "日 15:15-17:15"
	Date   string `json:"date,omitempty"`            // YYYY/MM/DD
	Kind   string `json:"kind,omitempty"`            // course type; selects the commit delay
}

// Key is the cache/identity key of the Target.
func (t Target) Key() string {
	return strings.Join([]string{
		CleanString(t.Course, true /* lower */),
		CleanString(t.Period),
		CleanString(t.Date),
	}, "|")
}

func (t Target) String() string {
	s := CleanString(t.Course) + " " + CleanString(t.Period)
	if t.Date != "" {
		s += " " + CleanString(t.Date)
	}
	return s
}

type CourseInfo struct {
	Teacher string `json:"teacher"`
	Course  string `json:"course"`
	Period  string `json:"period"`
	Date    string `json:"date"`
	Note    string `json:"note,omitempty"`
}

type StudentRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Roster is what a DataLoader returns for a Target.
type Roster struct {
	Course   CourseInfo      `json:"course"`
	Students []StudentRecord `json:"students"`
}

// DataLoader loads course info and the student roster of a Target. It may block.
type DataLoader interface {
	LoadCourseAndRoster(ctx context.Context, target Target) (Roster, error)
}

// MarkState is the attendance state of one student within a session.
type MarkState int

const (
	Unmarked MarkState = iota
	Present
	Absent
)

var markStateNames = [...]string{"unmarked", "present", "absent"}

func (s MarkState) String() string {
	if int(s) < len(markStateNames) && s >= 0 {
		return markStateNames[s]
	}
	return "invalid"
}

// ParseMarkState parses "unmarked", "present" or "absent".
func ParseMarkState(s string) (MarkState, bool) {
	s = CleanString(s, true /* lower */)
	for i, name := range markStateNames {
		if name == s {
			return MarkState(i), true
		}
	}
	return Unmarked, false
}

func (s MarkState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MarkState) UnmarshalText(text []byte) error {
	st, ok := ParseMarkState(string(text))
	if !ok {
		err := errors.Errorf("invalid mark state %q", text)
		return NewValidationError(err, FieldError{Field: "state", Error: err.Error()})
	}
	*s = st
	return nil
}

// MarkRecorder writes a single mark through to the attendance store. Fire-and-forget.
type MarkRecorder interface {
	RecordMark(ctx context.Context, target Target, course CourseInfo, student StudentRecord, state MarkState) error
}
