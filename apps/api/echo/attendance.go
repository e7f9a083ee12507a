package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/attendance"
	"github.com/trezcool/presence/core/clock"
	"github.com/trezcool/presence/core/gesture"
	"github.com/trezcool/presence/core/prefetch"
	"github.com/trezcool/presence/core/session"
	"github.com/trezcool/presence/services/uifeed"
)

type attendanceApi struct {
	loop       clock.Runner
	svc        *attendance.Service
	feed       *uifeed.Feed
	validate   *validator.Validate
	translator ut.Translator
}

type GestureResponse struct {
	State    gesture.State         `json:"state"`
	Press    *gesture.PressSession `json:"press,omitempty"`
	Prefetch prefetch.Stats        `json:"prefetch"`
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{
		loop:       deps.Loop,
		svc:        deps.Attendance,
		feed:       deps.Feed,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	pg := g.Group("/press", jwt)
	pg.GET("", api.gesture)
	pg.POST("", api.pressDown)
	pg.POST("/move", api.pointerMove)
	pg.POST("/up", api.pressUp)

	g.GET("/events", api.events, jwt)

	sg := g.Group("/sessions", jwt)
	sg.GET("", api.sessions)
	sg.GET("/:id", api.session)
	sg.DELETE("/:id", api.close)
	sg.PUT("/:id/marks/:student", api.mark)
	sg.PUT("/:id/draft", api.draft)
	sg.POST("/:id/focus", api.focus)
	sg.POST("/:id/blur", api.blur)
}

// run executes fn on the attendance loop, which owns the service.
func (api *attendanceApi) run(ctx echo.Context, fn func(svc *attendance.Service) error) error {
	var err error
	if lerr := api.loop.Do(ctx.Request().Context(), func() { err = fn(api.svc) }); lerr != nil {
		return errors.Wrap(lerr, "entering attendance loop")
	}
	return err
}

func (api *attendanceApi) gestureResponse(ctx echo.Context, code int) error {
	var resp GestureResponse
	err := api.run(ctx, func(svc *attendance.Service) error {
		resp.State, resp.Press = svc.GestureState()
		resp.Prefetch = svc.PrefetchStats()
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.JSON(code, resp)
}

// Handlers

func (api *attendanceApi) gesture(ctx echo.Context) error {
	return api.gestureResponse(ctx, http.StatusOK)
}

func (api *attendanceApi) pressDown(ctx echo.Context) error {
	var data PressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PressRequest")
	}
	err := api.run(ctx, func(svc *attendance.Service) error {
		return svc.PressDown(data.Target, data.Point)
	})
	if err != nil {
		return err
	}
	return api.gestureResponse(ctx, http.StatusAccepted)
}

func (api *attendanceApi) pointerMove(ctx echo.Context) error {
	var data PointerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PointerRequest")
	}
	err := api.run(ctx, func(svc *attendance.Service) error {
		svc.PointerMove(data.Point)
		return nil
	})
	if err != nil {
		return err
	}
	return api.gestureResponse(ctx, http.StatusOK)
}

func (api *attendanceApi) pressUp(ctx echo.Context) error {
	var data PointerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PointerRequest")
	}
	err := api.run(ctx, func(svc *attendance.Service) error {
		svc.PressUp(data.Point)
		return nil
	})
	if err != nil {
		return err
	}
	return api.gestureResponse(ctx, http.StatusOK)
}

// events long-polls the UI feed.
func (api *attendanceApi) events(ctx echo.Context) error {
	var query EventsQuery
	if err := query.Bind(ctx); err != nil {
		return err
	}

	events, last := api.feed.Since(query.After)
	if len(events) == 0 && query.Wait > 0 {
		wctx, cancel := context.WithTimeout(ctx.Request().Context(), query.Wait)
		defer cancel()
		events, last, _ = api.feed.Wait(wctx, query.After)
	}
	if events == nil {
		events = []uifeed.Event{}
	}
	return ctx.JSON(http.StatusOK, EventsResponse{Events: events, Last: last})
}

func (api *attendanceApi) sessions(ctx echo.Context) error {
	var views []session.View
	err := api.run(ctx, func(svc *attendance.Service) error {
		views = svc.Sessions()
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, views)
}

// viewAfter applies fn to the session and replies with its new view.
func (api *attendanceApi) viewAfter(ctx echo.Context, fn func(svc *attendance.Service, id string) error) error {
	id := ctx.Param("id")
	var view session.View
	err := api.run(ctx, func(svc *attendance.Service) error {
		if err := fn(svc, id); err != nil {
			return err
		}
		var err error
		view, err = svc.Session(id)
		return err
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *attendanceApi) session(ctx echo.Context) error {
	return api.viewAfter(ctx, func(*attendance.Service, string) error { return nil })
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data MarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}
	student := ctx.Param("student")
	return api.viewAfter(ctx, func(svc *attendance.Service, id string) error {
		return svc.Mark(id, student, *data.State)
	})
}

func (api *attendanceApi) draft(ctx echo.Context) error {
	var data DraftRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}
	if data.Content == nil && data.Role == nil {
		return core.NewValidationError(errors.New("nothing to update"),
			core.FieldError{Field: "content", Error: "content or role is required"})
	}
	return api.viewAfter(ctx, func(svc *attendance.Service, id string) error {
		if data.Content != nil {
			if err := svc.EditContent(id, *data.Content); err != nil {
				return err
			}
		}
		if data.Role != nil {
			return svc.SelectRole(id, *data.Role)
		}
		return nil
	})
}

func (api *attendanceApi) focus(ctx echo.Context) error {
	return api.viewAfter(ctx, (*attendance.Service).Focus)
}

func (api *attendanceApi) blur(ctx echo.Context) error {
	return api.viewAfter(ctx, (*attendance.Service).Blur)
}

func (api *attendanceApi) close(ctx echo.Context) error {
	id := ctx.Param("id")
	err := api.run(ctx, func(svc *attendance.Service) error {
		return svc.Close(id)
	})
	if err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
