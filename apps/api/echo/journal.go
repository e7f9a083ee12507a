package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presence/core/journal"
)

type journalApi struct {
	svc *journal.Service
}

func registerJournalAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := journalApi{svc: deps.Journal}
	g.GET("/journal", api.query, jwt, adminMiddleware())
}

func (api *journalApi) query(ctx echo.Context) error {
	var query JournalQuery
	if err := query.Bind(ctx); err != nil {
		return err
	}

	entries, err := api.svc.History(ctx.Request().Context(), query.QueryFilter)
	if err != nil {
		return errors.Wrap(err, "querying journal")
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
