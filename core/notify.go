package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SummaryReason tells why a NotificationBatcher flushed.
type SummaryReason string

const (
	ReasonCompletion  SummaryReason = "completion"
	ReasonIdleTimeout SummaryReason = "idle_timeout"
)

// Summary is the aggregated attendance of one session.
type Summary struct {
	Target   Target          `json:"target"`
	Course   CourseInfo      `json:"course"`
	Present  []StudentRecord `json:"present"`
	Absent   []StudentRecord `json:"absent"`
	Unmarked []StudentRecord `json:"unmarked"`
	Reason   SummaryReason   `json:"reason"`
	At       time.Time       `json:"at"`
}

func (s Summary) Total() int { return len(s.Present) + len(s.Absent) + len(s.Unmarked) }

// Text renders the summary as a chat message.
func (s Summary) Text() string {
	var b strings.Builder
	b.WriteString("📚 學生簽到通知\n\n")
	if s.Course.Teacher != "" {
		fmt.Fprintf(&b, "👨‍🏫 講師：%s\n", s.Course.Teacher)
	}
	course := s.Course.Course
	if course == "" {
		course = s.Target.Course
	}
	fmt.Fprintf(&b, "📖 課程：%s\n", course)
	if s.Course.Period != "" {
		fmt.Fprintf(&b, "🕐 時間：%s\n", s.Course.Period)
	}
	if date := s.Course.Date; date != "" {
		fmt.Fprintf(&b, "📅 日期：%s\n", date)
	}

	section := func(title string, students []StudentRecord) {
		if len(students) == 0 {
			return
		}
		names := make([]string, 0, len(students))
		for _, st := range students {
			names = append(names, st.Name)
		}
		fmt.Fprintf(&b, "\n%s (%d人)：\n%s\n", title, len(students), strings.Join(names, "、"))
	}
	section("✅ 出席", s.Present)
	section("❌ 缺席", s.Absent)
	section("⏳ 未選擇", s.Unmarked)

	if !s.At.IsZero() {
		fmt.Fprintf(&b, "\n⏰ 簽到時間：%s", s.At.Format("2006/01/02 15:04:05"))
	}
	return b.String()
}

// Notifier delivers attendance summaries. Failures are logged by the caller, never retried.
type Notifier interface {
	SendAttendanceSummary(ctx context.Context, sessionID string, summary Summary) error
}
