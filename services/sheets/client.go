// Package sheetsvc talks to the Apps Script endpoints fronting the attendance spreadsheets.
// It loads rosters, files teacher reports and writes single marks through.
package sheetsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/time/rate"

	"github.com/trezcool/presence/core"
)

const (
	actionRoster = "getRosterAttendance"
	actionReport = "appendTeacherCourse"
	actionMark   = "update"

	reportSheet = "報表"

	// headcount the sheet expects for home-visit and custom courses
	customCourseCount = 99
)

var customCourseMarkers = []string{"到府", "客製化"}

type (
	// Client implements core.DataLoader, core.Submitter and core.MarkRecorder.
	Client struct {
		http    *rest.Client
		conf    core.SheetsConfig
		limiter *rate.Limiter
		now     func() time.Time
		logger  core.Logger
	}

	response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	rosterResponse struct {
		response
		Count  int `json:"count"`
		Course struct {
			Teacher string `json:"teacher"`
			Course  string `json:"course"`
			Time    string `json:"time"`
			Date    string `json:"date"`
			Note    string `json:"note"`
		} `json:"courseInfo"`
		Students []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"students"`
	}

	reportResponse struct {
		response
		ID string `json:"id"`
	}
)

var (
	_ core.DataLoader   = (*Client)(nil)
	_ core.Submitter    = (*Client)(nil)
	_ core.MarkRecorder = (*Client)(nil)
)

func New(conf core.SheetsConfig, logger core.Logger) *Client {
	limit := rate.Inf
	if conf.RecordPause > 0 {
		limit = rate.Every(conf.RecordPause)
	}
	return &Client{
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		conf:    conf,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		logger:  logger,
	}
}

func (c *Client) LoadCourseAndRoster(ctx context.Context, target core.Target) (core.Roster, error) {
	payload := map[string]interface{}{
		"action": actionRoster,
		"course": core.CleanString(target.Course),
		"period": core.CleanString(target.Period),
	}
	if target.Date != "" {
		payload["date"] = core.CleanString(target.Date)
	}

	var res rosterResponse
	if err := c.post(ctx, c.conf.RosterURL, payload, &res); err != nil {
		return core.Roster{}, errors.Wrapf(err, "loading roster of %s", target)
	}

	roster := core.Roster{
		Course: core.CourseInfo{
			Teacher: res.Course.Teacher,
			Course:  firstNonEmpty(res.Course.Course, target.Course),
			Period:  firstNonEmpty(res.Course.Time, target.Period),
			Date:    firstNonEmpty(res.Course.Date, target.Date),
			Note:    res.Course.Note,
		},
		Students: make([]core.StudentRecord, 0, len(res.Students)),
	}
	for _, st := range res.Students {
		name := core.CleanString(st.Name)
		if name == "" {
			continue
		}
		// the sheet keys students by name when it has no id column
		roster.Students = append(roster.Students, core.StudentRecord{ID: firstNonEmpty(st.ID, name), Name: name})
	}
	c.logger.Debug("roster loaded", target, map[string]interface{}{"students": len(roster.Students)})
	return roster, nil
}

func (c *Client) SubmitReport(ctx context.Context, sessionID string, report core.Report) (core.Ack, error) {
	payload := map[string]interface{}{
		"action":      actionReport,
		"sheetName":   reportSheet,
		"teacherName": report.Teacher,
		"課程名稱":        report.Course,
		"上課時間":        report.Period,
		"課程日期":        report.Date,
		"人數_助教":       strconv.Itoa(headcount(report)),
		"課程內容":        report.Content,
	}

	var res reportResponse
	if err := c.post(ctx, c.conf.ReportURL, payload, &res); err != nil {
		return core.Ack{}, errors.Wrapf(err, "submitting report of session %s", sessionID)
	}
	return core.Ack{ID: res.ID, Message: res.Message, SubmittedAt: c.now()}, nil
}

// headcount is what the report sheet records in its headcount/assistant column.
func headcount(report core.Report) int {
	if report.Role == core.RoleAssistant {
		return 0
	}
	for _, marker := range customCourseMarkers {
		if strings.Contains(report.Period, marker) {
			return customCourseCount
		}
	}
	return report.StudentCount
}

// RecordMark writes one mark to the attendance sheet. Calls are paced by Sheets.RecordPause.
// Unmarked students have no sheet representation and are skipped.
func (c *Client) RecordMark(ctx context.Context, target core.Target, course core.CourseInfo, student core.StudentRecord, state core.MarkState) error {
	if state == core.Unmarked {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "waiting for the sheet rate limiter")
	}
	payload := map[string]interface{}{
		"action":  actionMark,
		"name":    student.Name,
		"date":    firstNonEmpty(course.Date, target.Date),
		"present": state == core.Present,
	}
	var res response
	if err := c.post(ctx, c.conf.AttendURL, payload, &res); err != nil {
		return errors.Wrapf(err, "recording %s as %s", student.Name, state)
	}
	return nil
}

// post sends payload as JSON and decodes the reply into out, which must embed response.
func (c *Client) post(ctx context.Context, url string, payload interface{}, out interface{ result() response }) error {
	if url == "" {
		return errors.New("sheet endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	res, err := c.http.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "calling sheet")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sheet replied %d: %s", res.StatusCode, truncate(res.Body, 200))
	}
	if err := json.Unmarshal([]byte(res.Body), out); err != nil {
		return errors.Wrap(err, "decoding sheet reply")
	}
	if r := out.result(); !r.Success {
		return errors.Errorf("sheet refused the request: %s", firstNonEmpty(r.Error, r.Message, "no reason given"))
	}
	return nil
}

func (r *response) result() response { return *r }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = core.CleanString(v); v != "" {
			return v
		}
	}
	return ""
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
