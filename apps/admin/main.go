package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/user"
	logsvc "github.com/trezcool/clinic/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("ADMIN"), conf)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := newCommandLine(conf, logger, validate, translator)
	if err := cli.run(ctx, os.Args[1:]); err != nil {
		logger.Error("error: "+err.Error(), err)
		stop()
		os.Exit(1)
	}
}
