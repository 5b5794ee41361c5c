package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/clinic/apps/api/echo"
	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/auth"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/session"
	"github.com/trezcool/clinic/core/user"
	emailsvc "github.com/trezcool/clinic/services/email"
	"github.com/trezcool/clinic/services/identity"
	logsvc "github.com/trezcool/clinic/services/logger"
	blobstore "github.com/trezcool/clinic/storage/blob"
	"github.com/trezcool/clinic/storage/database"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type CronLoggerParam struct {
	dig.In
	Logger core.Logger `name:"cronLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger("API"), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger("DB"), conf)
}

func newCronLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger("CRON"), conf)
}

func newStore(conf *core.Config, hub *live.Hub, loggerParam DBLoggerParam) *database.Store {
	store, err := database.Open(context.Background(), conf, hub, loggerParam.Logger)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up record store: %v", err), err)
	}
	return store
}

func newUserRepository(store *database.Store) user.Repository  { return store.Users }
func newCaseRepository(store *database.Store) cases.Repository { return store.Cases }

func newBlobStore(conf *core.Config, store *database.Store, loggerParam DBLoggerParam) core.BlobStore {
	blobs, err := blobstore.New(context.Background(), conf, store.Mongo)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up blob store: %v", err), err)
	}
	return blobs
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newIdentityClient(conf *core.Config) identity.Client {
	return identity.NewClient(conf.Identity.BaseURL, conf.Identity.Timeout)
}

func newSessionStore() session.Store {
	return session.NewMemoryStore()
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate
}

type caseServiceParams struct {
	dig.In
	Repo     cases.Repository
	UserSvc  user.Service
	Blobs    core.BlobStore
	MailSvc  core.EmailService
	Hub      *live.Hub
	Validate *validator.Validate
	Logger   core.Logger
}

func newCaseService(p caseServiceParams) cases.Service {
	return cases.NewService(cases.Options{
		Repo:     p.Repo,
		UserSvc:  p.UserSvc,
		Blobs:    p.Blobs,
		MailSvc:  p.MailSvc,
		Hub:      p.Hub,
		Validate: p.Validate,
		Logger:   p.Logger,
	})
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Store      *database.Store
	Blobs      core.BlobStore
	Sessions   session.Store
	Resolver   *auth.Resolver
	UserSvc    user.Service
	CaseSvc    cases.Service
}

func newServerOptions(p serverParams) *echoapi.Options {
	return &echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Store:      p.Store,
		Blobs:      p.Blobs,
		Sessions:   p.Sessions,
		Resolver:   p.Resolver,
		UserSvc:    p.UserSvc,
		CaseSvc:    p.CaseSvc,
	}
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newCronLogger, dig.Name("cronLogger")))
	must(c.Provide(live.NewHub))
	must(c.Provide(newStore))
	must(c.Provide(newUserRepository))
	must(c.Provide(newCaseRepository))
	must(c.Provide(newBlobStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newIdentityClient))
	must(c.Provide(newSessionStore))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(newCaseService))
	must(c.Provide(auth.NewResolver))
	must(c.Provide(newServerOptions))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
