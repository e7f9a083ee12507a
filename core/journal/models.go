// Package journal keeps a history of what sessions sent out: teacher reports and attendance
// summaries, with their outcome.
package journal

import (
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindSubmission   Kind = "submission"
	KindNotification Kind = "notification"
)

var ErrUnknownKind = errors.New("unknown journal entry kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindSubmission, KindNotification:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", s)
}

type (
	Entry struct {
		ID        string    `json:"id"`
		Kind      Kind      `json:"kind"`
		SessionID string    `json:"session_id"`
		Course    string    `json:"course"`
		Period    string    `json:"period"`
		Date      string    `json:"date,omitempty"`
		Detail    string    `json:"detail"` // report content, or the summary reason
		Count     int       `json:"count"`  // students on the report, or students present
		AckID     string    `json:"ack_id,omitempty"`
		Error     string    `json:"error,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	// QueryFilter fields are ANDed; zero values match everything.
	QueryFilter struct {
		Kind      Kind
		SessionID string
		Course    string
		Since     time.Time
		Limit     int
	}
)

func (e Entry) Failed() bool { return e.Error != "" }
