package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/auth"
	"github.com/trezcool/clinic/core/user"
)

type userApi struct {
	conf     *core.Config
	resolver *auth.Resolver
	svc      user.Service
}

func registerUserAPI(g *echo.Group, opts *Options, limiter *loginLimiter, authed ...echo.MiddlewareFunc) {
	api := userApi{
		conf:     opts.Conf,
		resolver: opts.Resolver,
		svc:      opts.UserSvc,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login, limiter.middleware())

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/logout", api.logout)
	ag.GET("/me", api.me)
	ag.GET("", api.query, adminMiddleware())
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var creds auth.Credentials
	if err := ctx.Bind(&creds); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}

	res, err := api.resolver.Login(ctx.Request().Context(), creds)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	token, err := GenerateToken(api.conf, GetSessionClaims(api.conf, res.Session))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		User:  res.Session.User,
		Token: token,
		Route: res.Route,
	})
}

func (api *userApi) logout(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.resolver.Logout(usr.ID); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	users, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return core.NewStoreError(errors.Wrap(err, "querying users"))
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

type LoginResponse struct {
	User  user.User  `json:"user"`
	Token string     `json:"token"`
	Route auth.Route `json:"route"`
}
