package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
)

const defaultLimit = 50

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry) (Entry, error)
		// FilterEntries returns the matching entries, newest first.
		FilterEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
		now    func() time.Time
	}

	submitter struct {
		svc  *Service
		next core.Submitter
	}

	notifier struct {
		svc  *Service
		next core.Notifier
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// History lists journal entries, newest first.
func (svc *Service) History(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	if _, err := ParseKind(string(filter.Kind)); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	entries, err := svc.repo.FilterEntries(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying journal")
	}
	return entries, nil
}

// record stores entry. Journal failures never fail the journaled call.
func (svc *Service) record(ctx context.Context, entry Entry) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = svc.now().UTC()
	// the journaled call may have used up its deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := svc.repo.CreateEntry(ctx, entry); err != nil {
		svc.logger.Error("writing journal entry", err, map[string]interface{}{"session": entry.SessionID, "kind": string(entry.Kind)})
	}
}

// Submitter journals every report submitted through next.
func (svc *Service) Submitter(next core.Submitter) core.Submitter {
	return &submitter{svc: svc, next: next}
}

// Notifier journals every summary sent through next.
func (svc *Service) Notifier(next core.Notifier) core.Notifier {
	return &notifier{svc: svc, next: next}
}

func (s *submitter) SubmitReport(ctx context.Context, sessionID string, report core.Report) (core.Ack, error) {
	ack, err := s.next.SubmitReport(ctx, sessionID, report)
	entry := Entry{
		Kind:      KindSubmission,
		SessionID: sessionID,
		Course:    report.Course,
		Period:    report.Period,
		Date:      report.Date,
		Detail:    report.Content,
		Count:     report.StudentCount,
		AckID:     ack.ID,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.svc.record(ctx, entry)
	return ack, err
}

func (n *notifier) SendAttendanceSummary(ctx context.Context, sessionID string, summary core.Summary) error {
	err := n.next.SendAttendanceSummary(ctx, sessionID, summary)
	course := summary.Course.Course
	if course == "" {
		course = summary.Target.Course
	}
	entry := Entry{
		Kind:      KindNotification,
		SessionID: sessionID,
		Course:    course,
		Period:    summary.Target.Period,
		Date:      summary.Target.Date,
		Detail:    string(summary.Reason),
		Count:     len(summary.Present),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	n.svc.record(ctx, entry)
	return err
}
