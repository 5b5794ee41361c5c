package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/analytics"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
)

func registerAnalyticsAPI(g *echo.Group, opts *Options, authed ...echo.MiddlewareFunc) {
	userSvc, caseSvc := opts.UserSvc, opts.CaseSvc
	mw := append(authed[:len(authed):len(authed)], adminMiddleware())

	g.GET("/analytics", func(ctx echo.Context) error {
		users, err := userSvc.Query(ctx.Request().Context(), user.QueryFilter{})
		if err != nil {
			return core.NewStoreError(errors.Wrap(err, "querying users"))
		}
		all, err := caseSvc.Query(ctx.Request().Context(), cases.CaseFilter{})
		if err != nil {
			return core.NewStoreError(errors.Wrap(err, "querying cases"))
		}
		return ctx.JSON(http.StatusOK, analytics.Project(users, all))
	}, mw...)
}
