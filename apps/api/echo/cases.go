package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

type caseApi struct {
	svc cases.Service
}

func registerCaseAPI(g *echo.Group, opts *Options, authed ...echo.MiddlewareFunc) {
	api := caseApi{svc: opts.CaseSvc}

	cg := g.Group("/cases", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve, caseMiddleware(api.svc, false))
	dg.PUT("/status", api.setStatus, adminMiddleware(), caseMiddleware(api.svc, false))
	dg.POST("/review", api.review, adminMiddleware(), caseMiddleware(api.svc, false))
	dg.POST("/document", api.uploadDocument, caseMiddleware(api.svc, true))
	dg.POST("/progress", api.saveProgress, caseMiddleware(api.svc, true))
}

// Handlers

func (api *caseApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(cases.CaseFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []cases.Case{})
	}
	if scope := studentScope(usr); scope != "" {
		filter.AssignedTo = scope
	}

	all, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return core.NewStoreError(errors.Wrap(err, "querying cases"))
	}
	if all == nil {
		all = []cases.Case{}
	}
	return ctx.JSON(http.StatusOK, all)
}

func (api *caseApi) create(ctx echo.Context) error {
	var data cases.NewCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCase")
	}

	res, err := api.svc.Assign(ctx.Request().Context(), data, contextActor(ctx))
	if err != nil {
		return errors.Wrap(err, "assigning case")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *caseApi) retrieve(ctx echo.Context) error {
	c, err := getContextCase(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) setStatus(ctx echo.Context) error {
	c, err := getContextCase(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	var data cases.StatusUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}

	if c, err = api.svc.SetStatus(ctx.Request().Context(), c.ID, data); err != nil {
		return errors.Wrap(err, "setting case status")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) review(ctx echo.Context) error {
	c, err := getContextCase(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	if c, err = api.svc.MarkDocumentReviewed(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "reviewing case document")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) uploadDocument(ctx echo.Context) error {
	c, err := getContextCase(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	doc, closer, err := bindDocument(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(closer)
	if doc == nil {
		return errFileRequired
	}

	if c, err = api.svc.AttachDocument(ctx.Request().Context(), c.ID, *doc); err != nil {
		return errors.Wrap(err, "attaching case document")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) saveProgress(ctx echo.Context) error {
	c, err := getContextCase(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	data, closer, err := bindProgressUpdate(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	p, err := api.svc.SaveProgress(ctx.Request().Context(), c.ID, contextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	return ctx.JSON(http.StatusCreated, p)
}
