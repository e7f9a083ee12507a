package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/journal"
	logsvc "github.com/trezcool/presence/services/logger"
	inmemdb "github.com/trezcool/presence/storage/database/inmem"
	testutil "github.com/trezcool/presence/tests"
)

var target = core.Target{Course: "Math 101", Period: "日 15:15-17:15", Date: "2026/10/18"}

func newService() *journal.Service {
	return journal.NewService(inmemdb.NewJournalRepository(inmemdb.Open()), logsvc.NewNop())
}

func TestService_JournalsSubmissions(t *testing.T) {
	svc := newService()
	next := new(testutil.Submitter)
	sub := svc.Submitter(next)
	ctx := context.Background()
	report := core.Report{Teacher: "王老師", Course: "Math 101", Period: target.Period, Role: core.RoleTeacher, Content: "分數", StudentCount: 3}

	ack, err := sub.SubmitReport(ctx, "sess-1", report)
	require.NoError(t, err)
	assert.Equal(t, "ack-1", ack.ID)

	next.FailNext(errors.New("sheet down"))
	_, err = sub.SubmitReport(ctx, "sess-1", report)
	assert.EqualError(t, err, "sheet down")
	assert.Len(t, next.Calls(), 2)

	entries, err := svc.History(ctx, journal.QueryFilter{Kind: journal.KindSubmission})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	failed, ok := entries[0], entries[1]
	assert.True(t, failed.Failed())
	assert.Equal(t, "sheet down", failed.Error)
	assert.False(t, ok.Failed())
	assert.Equal(t, "ack-1", ok.AckID)
	assert.Equal(t, "分數", ok.Detail)
	assert.Equal(t, 3, ok.Count)
	assert.NotEmpty(t, ok.ID)
	assert.WithinDuration(t, time.Now(), ok.CreatedAt, time.Minute)
}

func TestService_JournalsNotifications(t *testing.T) {
	svc := newService()
	next := new(testutil.Notifier)
	ctx := context.Background()
	summary := core.Summary{
		Target:  target,
		Present: []core.StudentRecord{{ID: "s1", Name: "學生1"}, {ID: "s2", Name: "學生2"}},
		Reason:  core.ReasonCompletion,
	}

	require.NoError(t, svc.Notifier(next).SendAttendanceSummary(ctx, "sess-2", summary))
	next.Err = errors.New("line down")
	assert.Error(t, svc.Notifier(next).SendAttendanceSummary(ctx, "sess-3", summary))

	entries, err := svc.History(ctx, journal.QueryFilter{SessionID: "sess-2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.KindNotification, entries[0].Kind)
	assert.Equal(t, "Math 101", entries[0].Course)
	assert.Equal(t, "completion", entries[0].Detail)
	assert.Equal(t, 2, entries[0].Count)

	entries, err = svc.History(ctx, journal.QueryFilter{Course: "math 101"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_History(t *testing.T) {
	svc := newService()
	sub := svc.Submitter(new(testutil.Submitter))
	for i := 0; i < 60; i++ {
		_, err := sub.SubmitReport(context.Background(), "sess", core.Report{Course: "Art"})
		require.NoError(t, err)
	}

	entries, err := svc.History(context.Background(), journal.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 50, "default limit")

	entries, err = svc.History(context.Background(), journal.QueryFilter{Limit: 5, Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	_, err = svc.History(context.Background(), journal.QueryFilter{Kind: "audit"})
	assert.True(t, errors.Is(err, journal.ErrUnknownKind))
}
