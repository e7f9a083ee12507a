package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core"
	"github.com/trezcool/presence/core/clock"
	"github.com/trezcool/presence/core/journal"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// kindStatus maps core error kinds to HTTP status codes.
func kindStatus(err error) (int, bool) {
	if errors.Is(err, journal.ErrUnknownKind) {
		return http.StatusBadRequest, true
	}
	switch core.KindOf(err) {
	case core.ErrSessionNotFound, core.ErrUnknownStudent:
		return http.StatusNotFound, true
	case core.ErrGestureConflict, core.ErrSessionClosed, core.ErrRosterUnavailable:
		return http.StatusConflict, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server once the attendance loop
// is gone.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		// unknown students resolve to their kind through errors.Cause
		var unknown *core.UnknownStudentError
		if errors.As(err, &unknown) {
			body := echo.Map{"error": unknown.Error()}
			if unknown.Suggestion != nil {
				body["suggestion"] = unknown.Suggestion
			}
			respond(ctx, err, http.StatusNotFound, body)
			return
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, fe := range origErr {
				fldErrs[fe.Field()] = fe.Error()
			}
			message = fldErrs
			code = http.StatusBadRequest
		default:
			if status, ok := kindStatus(err); ok {
				code = status
				message = err.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var extras map[string]interface{}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				extras = map[string]interface{}{"subject": claims.Subject, "name": claims.Name}
			}
			logger.Error(msg, errors.Wrap(err, msg), extras)

			// shutting down...
			if errors.Is(err, clock.ErrLoopClosed) {
				signalShutdown()
			}
		}

		respond(ctx, err, code, message)
	}
}

func respond(ctx echo.Context, err error, code int, message interface{}) {
	if ctx.Echo().Debug {
		message = err.Error()
	} else if m, ok := message.(string); ok {
		message = echo.Map{"error": m}
	}

	// Send response
	if !ctx.Response().Committed {
		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
