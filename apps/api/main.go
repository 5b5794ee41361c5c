package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"go.uber.org/dig"

	dig_container "github.com/trezcool/clinic/apps/api/di/dig"
	echoapi "github.com/trezcool/clinic/apps/api/echo"
	"github.com/trezcool/clinic/apps/api/jobs"
	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	appfs "github.com/trezcool/clinic/fs"
	"github.com/trezcool/clinic/storage/database"
)

type app struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	DBLogger   core.Logger `name:"dbLogger"`
	CronLogger core.Logger `name:"cronLogger"`
	Store      *database.Store
	CaseSvc    cases.Service
	Server     echoapi.Server
}

func main() {
	c := dig_container.New(core.NewConfig)
	if err := c.Invoke(run); err != nil {
		panic(err)
	}
}

func run(a app) {
	conf, logger := a.Conf, a.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, store %q", conf.Build, a.Store.Engine))
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)

	defer func() {
		if err := a.Store.Close(); err != nil {
			a.DBLogger.Error("Failed to close", err)
		}
	}()
	defer logger.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(a.Store.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Relay writes of other replicas

	go func() {
		if err := a.Store.Listen(ctx); err != nil && ctx.Err() == nil {
			a.DBLogger.Error(fmt.Sprintf("change feed stopped: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Jobs

	scheduler, err := jobs.NewScheduler(conf.Reconcile.Schedule, a.CaseSvc, a.CronLogger)
	if err != nil {
		a.CronLogger.Fatal(err.Error(), err)
	}
	scheduler.Start()

	// =========================================================================
	// Start API Service

	go func() {
		a.Server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-a.Server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-a.Server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		scheduler.Stop(sctx)

		// asking listener to shut down and shed load
		if err := a.Server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = a.Server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
