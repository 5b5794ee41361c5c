package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/auth"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/session"
	"github.com/trezcool/clinic/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		Validate       *validator.Validate
		Translator     ut.Translator
		Store          core.RecordStore
		Blobs          core.BlobStore
		Sessions       session.Store
		Resolver       *auth.Resolver
		UserSvc        user.Service
		CaseSvc        cases.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	registerFilesAPI(s.app, s.opts.Blobs)

	api := s.app.Group("/api")
	api.GET("/health", s.health)

	authed := []echo.MiddlewareFunc{jwtMiddleware(conf, "header:"+echo.HeaderAuthorization), sessionMiddleware(s.opts.Sessions)}
	// browsers cannot set headers on WebSocket handshakes
	liveAuthed := []echo.MiddlewareFunc{jwtMiddleware(conf, "query:token"), sessionMiddleware(s.opts.Sessions)}

	registerUserAPI(api, s.opts, newLoginLimiter(conf.Server.LoginRate, conf.Server.LoginBurst), authed...)
	registerCaseAPI(api, s.opts, authed...)
	registerProgressAPI(api, s.opts, authed...)
	registerAnalyticsAPI(api, s.opts, authed...)
	registerLiveAPI(api, s.opts, liveAuthed...)
}

func (s *server) Start() {
	s.opts.Logger.Info("API listening on " + s.opts.Conf.Server.Address)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

func (s *server) health(ctx echo.Context) error {
	if err := s.opts.Store.Ping(ctx.Request().Context()); err != nil {
		return core.NewStoreError(err)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
