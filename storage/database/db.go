// Package database opens the record store selected by the configuration.
package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/fs"
)

// DSN returns the data source name of the configured SQL engine.
func DSN(conf *core.Config) string {
	if conf.Database.Engine == core.EngineSQLite {
		return conf.Database.Path
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// OpenSQL opens and pings the configured SQL database.
func OpenSQL(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case core.EnginePostgres, core.EngineSQLite:
	default:
		return nil, errors.Errorf("%q is not a SQL engine", conf.Database.Engine)
	}

	db, err := sqlx.Open(conf.Database.Engine, DSN(conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == core.EngineSQLite {
		// a single connection keeps in-memory databases alive and serializes writes
		db.SetMaxOpenConns(1)
	}
	if err = ping(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// RunMigrations runs a goose command (up, down, status, redo, version...) with the embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB, engine, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(engine); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	if err := goose.RunContext(ctx, command, db, "migrations", args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}

func Migrate(ctx context.Context, db *sql.DB, engine string) error {
	return RunMigrations(ctx, db, engine, "up")
}
