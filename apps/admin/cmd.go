package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/user"
	emailsvc "github.com/trezcool/clinic/services/email"
	blobstore "github.com/trezcool/clinic/storage/blob"
	"github.com/trezcool/clinic/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	migrateFunc      = database.RunMigrations // mockable

	errNoPassword = errors.New("a password is required")
	errNotSQL     = errors.New("migrations only apply to the postgres and sqlite3 engines")
)

type commandLine struct {
	conf       *core.Config
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer

	store   *database.Store
	usrSvc  user.Service
	caseSvc cases.Service
}

func newCommandLine(conf *core.Config, logger core.Logger, validate *validator.Validate, translator ut.Translator) *commandLine {
	return &commandLine{
		conf:       conf,
		logger:     logger,
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
}

// open connects to the record store and builds the services, once.
func (cli *commandLine) open(ctx context.Context) error {
	if cli.store != nil {
		return nil
	}

	hub := live.NewHub()
	store, err := database.Open(ctx, cli.conf, hub, cli.logger)
	if err != nil {
		return errors.Wrap(err, "opening record store")
	}
	blobs, err := blobstore.New(ctx, cli.conf, store.Mongo)
	if err != nil {
		_ = store.Close()
		return errors.Wrap(err, "opening blob store")
	}

	cli.store = store
	cli.usrSvc = user.NewService(store.Users, hub)
	cli.caseSvc = cases.NewService(cases.Options{
		Repo:     store.Cases,
		UserSvc:  cli.usrSvc,
		Blobs:    blobs,
		MailSvc:  emailsvc.NewConsoleService(cli.conf, cli.logger),
		Hub:      hub,
		Validate: cli.validate,
		Logger:   cli.logger,
	})
	return nil
}

func (cli *commandLine) close() {
	if cli.store != nil {
		if err := cli.store.Close(); err != nil {
			cli.logger.Error("closing record store", err)
		}
		cli.store = nil
	}
}

func (cli *commandLine) openSQL(ctx context.Context) (*sql.DB, error) {
	if cli.conf.Database.Engine != core.EnginePostgres && cli.conf.Database.Engine != core.EngineSQLite {
		return nil, errNotSQL
	}
	db, err := database.OpenSQL(ctx, cli.conf)
	if err != nil {
		return nil, err
	}
	return db.DB, nil
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Clinic administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.seedCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.reconcileCmd(),
	)
	return root
}

// run executes args, without the program name.
func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(cli.out)
	return root.ExecuteContext(ctx)
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}

// describe turns validation errors into a readable message.
func (cli *commandLine) describe(err error) error {
	var fldErrs []string
	switch verr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range verr {
			fldErrs = append(fldErrs, fe.Field()+": "+fe.Translate(cli.translator))
		}
	case *core.ValidationError:
		for _, fe := range verr.Fields {
			fldErrs = append(fldErrs, fe.Field+": "+fe.Error)
		}
	default:
		return err
	}
	sort.Strings(fldErrs)
	return errors.New(strings.Join(fldErrs, "; "))
}
