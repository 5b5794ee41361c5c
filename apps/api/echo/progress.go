package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

func registerProgressAPI(g *echo.Group, opts *Options, authed ...echo.MiddlewareFunc) {
	svc := opts.CaseSvc
	g.GET("/progress", func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		filter := new(cases.ProgressFilter)
		if err = ctx.Bind(filter); err != nil {
			return ctx.JSON(http.StatusOK, []cases.Progress{})
		}
		if scope := studentScope(usr); scope != "" {
			filter.UserID = scope
		}

		history, err := svc.ListProgress(ctx.Request().Context(), *filter)
		if err != nil {
			return core.NewStoreError(errors.Wrap(err, "listing progress"))
		}
		if history == nil {
			history = []cases.Progress{}
		}
		return ctx.JSON(http.StatusOK, history)
	}, authed...)
}
