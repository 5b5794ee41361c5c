// Package sqlxrepos implements the repositories on top of PostgreSQL or SQLite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
)

// NotifyChannel is the PostgreSQL channel on which writes are announced to every replica.
const NotifyChannel = "clinic_changes"

var errUniqueViolation = errors.New("unique constraint violated")

type DB struct {
	*sqlx.DB
	engine   string
	instance string
	notifier core.Notifier
	logger   core.Logger
}

var _ core.RecordStore = (*DB)(nil)

// New wraps an opened database. notifier may be nil.
func New(db *sqlx.DB, engine string, notifier core.Notifier, logger core.Logger) *DB {
	return &DB{
		DB:       db,
		engine:   engine,
		instance: uuid.NewString(),
		notifier: notifier,
		logger:   logger,
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// notify tells the local notifier about a committed write and, on PostgreSQL, the other replicas.
func (db *DB) notify(ctx context.Context, collection string) {
	if db.notifier != nil {
		db.notifier.Notify(collection)
	}
	if db.engine == core.EnginePostgres {
		// the write is committed: other replicas only miss the push until their next query
		if _, err := db.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, db.instance+":"+collection); err != nil {
			db.logger.Error("record store notify "+collection+": "+err.Error(), err)
		}
	}
}

// Listen forwards the writes of other replicas to the notifier until ctx is done.
// It is a no-op on SQLite.
func (db *DB) Listen(ctx context.Context, dsn string) error {
	if db.engine != core.EnginePostgres || db.notifier == nil {
		return nil
	}

	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			db.logger.Warn("record store listener: "+err.Error(), err)
		}
	})
	defer listener.Close()
	if err := listener.Listen(NotifyChannel); err != nil {
		return errors.Wrap(err, "listening to record store notifications")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// reconnected: notifications may have been lost
				for _, coll := range []string{core.CollectionUsers, core.CollectionCases, core.CollectionProgress} {
					db.notifier.Notify(coll)
				}
				continue
			}
			instance, coll, ok := strings.Cut(n.Extra, ":")
			if ok && instance != db.instance {
				db.notifier.Notify(coll)
			}
		}
	}
}

// mapError translates engine errors into the errors the services understand.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "insufficient_privilege":
			return core.ErrPermissionDenied
		case "unique_violation":
			return errUniqueViolation
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.Code == sqlite3.ErrPerm, liteErr.Code == sqlite3.ErrAuth:
			return core.ErrPermissionDenied
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique, liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return errUniqueViolation
		}
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
