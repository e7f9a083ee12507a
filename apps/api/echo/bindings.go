package echoapi

import (
	"strconv"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/gesture"
	"github.com/trezcool/presence/core/journal"
)

const (
	maxEventsWait  = 30 * time.Second
	maxJournalRows = 500
)

type (
	PressRequest struct {
		Target core.Target `json:"target"`
		gesture.Point
	}

	PointerRequest struct {
		gesture.Point
	}

	MarkRequest struct {
		State *core.MarkState `json:"state" validate:"required"`
	}

	// DraftRequest edits the report draft; absent fields are left unchanged.
	DraftRequest struct {
		Content *string    `json:"content"`
		Role    *core.Role `json:"role"`
	}

	EventsResponse struct {
		Events interface{} `json:"events"`
		Last   uint64      `json:"last"`
	}
)

func (r MarkRequest) Validate(validate *validator.Validate, translator ut.Translator) error {
	if err := validate.Struct(r); err != nil {
		return core.TranslateErrors(err, translator)
	}
	return nil
}

// EventsQuery is bound from `?after=<seq>&wait=<duration>`.
type EventsQuery struct {
	After uint64
	Wait  time.Duration
}

func (q *EventsQuery) Bind(ctx echo.Context) error {
	if val := ctx.QueryParam("after"); val != "" {
		after, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return core.NewValidationError(errors.Wrap(err, "parsing after"),
				core.FieldError{Field: "after", Error: "after must be an event sequence number"})
		}
		q.After = after
	}
	if val := ctx.QueryParam("wait"); val != "" {
		wait, err := time.ParseDuration(val)
		if err != nil || wait < 0 {
			return core.NewValidationError(errors.Errorf("invalid wait %q", val),
				core.FieldError{Field: "wait", Error: "wait must be a duration, eg. 10s"})
		}
		if wait > maxEventsWait {
			wait = maxEventsWait
		}
		q.Wait = wait
	}
	return nil
}

// JournalQuery is bound from `?kind=&session=&course=&since=<RFC3339>&limit=`.
type JournalQuery struct {
	journal.QueryFilter
}

func (q *JournalQuery) Bind(ctx echo.Context) error {
	kind, err := journal.ParseKind(strings.TrimSpace(ctx.QueryParam("kind")))
	if err != nil {
		return err
	}
	q.Kind = kind
	q.SessionID = strings.TrimSpace(ctx.QueryParam("session"))
	q.Course = core.CleanString(ctx.QueryParam("course"))

	if val := ctx.QueryParam("since"); val != "" {
		since, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return core.NewValidationError(errors.Wrap(err, "parsing since"),
				core.FieldError{Field: "since", Error: "since must be an RFC 3339 timestamp"})
		}
		q.Since = since
	}
	if val := ctx.QueryParam("limit"); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return core.NewValidationError(errors.Errorf("invalid limit %q", val),
				core.FieldError{Field: "limit", Error: "limit must be a positive number"})
		}
		q.Limit = limit
	}
	if q.Limit > maxJournalRows {
		q.Limit = maxJournalRows
	}
	return nil
}
