package core

import (
	"context"
	"time"
)

// Role is who is filing the teacher report.
type Role string

const (
	RoleNone      Role = ""
	RoleTeacher   Role = "teacher"
	RoleAssistant Role = "assistant"
)

var Roles = []Role{RoleTeacher, RoleAssistant}

// Report is the teacher report submitted when the auto-submit countdown expires.
type Report struct {
	Teacher      string `json:"teacher_name"`
	Course       string `json:"course_name"`
	Period       string `json:"course_time"`
	Date         string `json:"date"`
	Role         Role   `json:"role" validate:"required,role"`
	Content      string `json:"course_content" validate:"required,meaningful"`
	StudentCount int    `json:"student_count" validate:"gte=0"`
}

// Ack is the Submitter's acknowledgement of a Report.
type Ack struct {
	ID          string    `json:"id,omitempty"`
	Message     string    `json:"message,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submitter files teacher reports. It may block.
type Submitter interface {
	SubmitReport(ctx context.Context, sessionID string, report Report) (Ack, error)
}
