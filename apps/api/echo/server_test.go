package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/attendance"
	"github.com/trezcool/presence/core/clock"
	"github.com/trezcool/presence/core/journal"
	logsvc "github.com/trezcool/presence/services/logger"
	"github.com/trezcool/presence/services/uifeed"
	inmemdb "github.com/trezcool/presence/storage/database/inmem"
	testutil "github.com/trezcool/presence/tests"
)

var math101 = core.Target{Course: "Math 101", Period: "日 15:15-17:15", Date: "2026/10/18"}

type fixture struct {
	srv        *Server
	clk        *clock.Mock
	conf       *core.Config
	submitter  *testutil.Submitter
	token      string
	adminToken string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := testutil.Config()
	clk := clock.NewMock(time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC))
	feed := uifeed.New(conf.Server.FeedSize, clk.Now)
	logger := logsvc.NewNop()
	journalSvc := journal.NewService(inmemdb.NewJournalRepository(inmemdb.Open()), logger)

	f := &fixture{clk: clk, conf: conf, submitter: new(testutil.Submitter)}
	var ids int
	svc, err := attendance.NewService(attendance.Options{
		Clock:     clk,
		Config:    conf,
		Loader:    testutil.NewLoader(testutil.Roster("Math 101", 2)),
		Submitter: journalSvc.Submitter(f.submitter),
		Notifier:  journalSvc.Notifier(new(testutil.Notifier)),
		Sink:      feed,
		Logger:    logger,
		NewID: func() string {
			ids++
			return fmt.Sprintf("sess-%d", ids)
		},
	})
	require.NoError(t, err)

	validate, translator := core.NewValidator(conf.Debounce.ContentRules())
	f.srv = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Loop:           clk,
		Attendance:     svc,
		Feed:           feed,
		Journal:        journalSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = f.srv.Close() })

	f.token = f.getToken(t, false)
	f.adminToken = f.getToken(t, true)
	return f
}

func (f *fixture) getToken(t *testing.T, admin bool) string {
	t.Helper()
	token, err := GenerateToken(NewClaims(f.conf, "tablet-1", "王老師", admin), f.conf.SecretKey)
	require.NoError(t, err)
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// open presses math101 long enough to commit, opening sess-1.
func (f *fixture) open(t *testing.T) {
	t.Helper()
	press := map[string]interface{}{"target": math101, "x": 10, "y": 10}
	rec := f.do(t, http.MethodPost, "/v1/press", f.token, press)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.clk.Advance(f.conf.Gesture.CommitDelay)
	rec = f.do(t, http.MethodPost, "/v1/press/up", f.token, map[string]float64{"x": 10, "y": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHome(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Presence API!", rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	f := setup(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/v1/press"},
		{http.MethodPost, "/v1/press"},
		{http.MethodGet, "/v1/events"},
		{http.MethodGet, "/v1/sessions"},
		{http.MethodPut, "/v1/sessions/sess-1/draft"},
		{http.MethodGet, "/v1/journal"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := f.do(t, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body httpErr
			decode(t, rec, &body)
			assert.Equal(t, "missing or malformed jwt", body.Error)
		})
	}

	rec := f.do(t, http.MethodGet, "/v1/sessions", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPress(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/press", f.token, map[string]interface{}{"target": math101, "x": 1, "y": 2})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		State string `json:"state"`
		Press struct {
			Target core.Target `json:"target"`
		} `json:"press"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "pressing", resp.State)
	assert.Equal(t, math101, resp.Press.Target)

	t.Run("second press conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/press", f.token, map[string]interface{}{"target": math101})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("charging", func(t *testing.T) {
		f.clk.Advance(f.conf.Gesture.ChargeDelay)
		rec := f.do(t, http.MethodGet, "/v1/press", f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &resp)
		assert.Equal(t, "charging", resp.State)
	})

	t.Run("drag cancels", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/press/move", f.token, map[string]float64{"x": 200, "y": 2})
		require.Equal(t, http.StatusOK, rec.Code)
		f.clk.Advance(time.Second)

		rec = f.do(t, http.MethodGet, "/v1/sessions", f.token, nil)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestPress_InvalidTarget(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/v1/press", f.token, map[string]interface{}{"target": core.Target{Course: "Math 101"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body, "period")
}

func TestSessions(t *testing.T) {
	f := setup(t)
	f.open(t)

	rec := f.do(t, http.MethodGet, "/v1/sessions", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "sess-1", views[0].ID)
	assert.Equal(t, "ready", views[0].Status)

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode int
	}{
		{name: "get", method: http.MethodGet, path: "/v1/sessions/sess-1", wantCode: http.StatusOK},
		{name: "not found", method: http.MethodGet, path: "/v1/sessions/nope", wantCode: http.StatusNotFound},
		{name: "mark present", method: http.MethodPut, path: "/v1/sessions/sess-1/marks/s1", body: map[string]string{"state": "present"}, wantCode: http.StatusOK},
		{name: "mark unknown student", method: http.MethodPut, path: "/v1/sessions/sess-1/marks/s9", body: map[string]string{"state": "absent"}, wantCode: http.StatusNotFound},
		{name: "mark without state", method: http.MethodPut, path: "/v1/sessions/sess-1/marks/s1", body: map[string]string{}, wantCode: http.StatusBadRequest},
		{name: "mark bad state", method: http.MethodPut, path: "/v1/sessions/sess-1/marks/s1", body: map[string]string{"state": "late"}, wantCode: http.StatusBadRequest},
		{name: "empty draft", method: http.MethodPut, path: "/v1/sessions/sess-1/draft", body: map[string]string{}, wantCode: http.StatusBadRequest},
		{name: "bad role", method: http.MethodPut, path: "/v1/sessions/sess-1/draft", body: map[string]string{"role": "janitor"}, wantCode: http.StatusBadRequest},
		{name: "focus", method: http.MethodPost, path: "/v1/sessions/sess-1/focus", wantCode: http.StatusOK},
		{name: "blur", method: http.MethodPost, path: "/v1/sessions/sess-1/blur", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, f.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	t.Run("suggestion", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/v1/sessions/sess-1/marks/s11", f.token, map[string]string{"state": "absent"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		var body struct {
			Error      string              `json:"error"`
			Suggestion *core.StudentRecord `json:"suggestion"`
		}
		decode(t, rec, &body)
		assert.Contains(t, body.Error, "unknown student")
		require.NotNil(t, body.Suggestion)
		assert.Equal(t, "s1", body.Suggestion.ID)
	})

	t.Run("close", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/v1/sessions/sess-1", f.token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(t, http.MethodDelete, "/v1/sessions/sess-1", f.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDraftSubmitsAndJournals(t *testing.T) {
	f := setup(t)
	f.open(t)

	draft := map[string]string{"content": "三角函數", "role": "teacher"}
	rec := f.do(t, http.MethodPut, "/v1/sessions/sess-1/draft", f.token, draft)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Countdown struct {
			Armed bool `json:"armed"`
		} `json:"countdown"`
	}
	decode(t, rec, &view)
	assert.True(t, view.Countdown.Armed)

	f.clk.Advance(f.conf.Debounce.Delay)
	require.Len(t, f.submitter.Calls(), 1)
	assert.Equal(t, "三角函數", f.submitter.Calls()[0].Report.Content)

	t.Run("journal is admin only", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/journal", f.token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		var body httpErr
		decode(t, rec, &body)
		assert.Equal(t, "permission denied", body.Error)
	})

	t.Run("journal", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/journal?kind=submission&course=math%20101", f.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []journal.Entry
		decode(t, rec, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, "sess-1", entries[0].SessionID)
		assert.Equal(t, journal.KindSubmission, entries[0].Kind)
		assert.False(t, entries[0].Failed())
	})

	t.Run("journal filters", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/journal?kind=notification", f.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())

		for _, q := range []string{"kind=lol", "since=yesterday", "limit=-1"} {
			rec := f.do(t, http.MethodGet, "/v1/journal?"+q, f.adminToken, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}

func TestEvents(t *testing.T) {
	f := setup(t)
	f.open(t)

	rec := f.do(t, http.MethodGet, "/v1/events", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Events []struct {
			Seq  uint64 `json:"seq"`
			Type string `json:"type"`
		} `json:"events"`
		Last uint64 `json:"last"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, resp.Last, resp.Events[len(resp.Events)-1].Seq)

	var types []string
	for _, e := range resp.Events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, uifeed.GestureState)
	assert.Contains(t, types, uifeed.ModalOpen)

	t.Run("nothing new", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/v1/events?after=%d&wait=10ms", resp.Last), f.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"events": [], "last": %d}`, resp.Last), rec.Body.String())
	})

	t.Run("bad query", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/events?after=x", f.token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(t, http.MethodGet, "/v1/events?wait=soon", f.token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
