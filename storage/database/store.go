package database

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/storage/database/inmem"
	"github.com/trezcool/clinic/storage/database/mongodb"
	"github.com/trezcool/clinic/storage/database/sqlx"
)

// Store bundles the repositories of the configured record store engine.
type Store struct {
	core.RecordStore
	Engine string
	Users  user.Repository
	Cases  cases.Repository
	// Mongo is set on the mongo engine, or when the GridFS blob driver needs it.
	Mongo *mongo.Database

	listen  func(ctx context.Context) error
	closers []func() error
}

// Open opens the record store selected by conf.Database.Engine, running pending migrations on SQL engines.
// Every committed write is reported to notifier.
func Open(ctx context.Context, conf *core.Config, notifier core.Notifier, logger core.Logger) (*Store, error) {
	store := &Store{Engine: conf.Database.Engine}

	switch conf.Database.Engine {
	case core.EngineMemory, "":
		db := inmemdb.Open(notifier)
		store.RecordStore = db
		store.Users = inmemdb.NewUserRepository(db)
		store.Cases = inmemdb.NewCaseRepository(db)

	case core.EnginePostgres, core.EngineSQLite:
		sdb, err := OpenSQL(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = Migrate(ctx, sdb.DB, conf.Database.Engine); err != nil {
			_ = sdb.Close()
			return nil, err
		}
		db := sqlxrepos.New(sdb, conf.Database.Engine, notifier, logger)
		dsn := DSN(conf)
		store.RecordStore = db
		store.Users = sqlxrepos.NewUserRepository(db)
		store.Cases = sqlxrepos.NewCaseRepository(db)
		store.listen = func(ctx context.Context) error { return db.Listen(ctx, dsn) }

	case core.EngineMongo:
		db, err := mongodb.Open(ctx, conf.Database.MongoURI, conf.Database.Name, notifier)
		if err != nil {
			return nil, err
		}
		store.RecordStore = db
		store.Users = mongodb.NewUserRepository(db)
		store.Cases = mongodb.NewCaseRepository(db)
		store.Mongo = db.Database
		store.listen = db.Watch

	default:
		return nil, errors.Errorf("unknown record store engine %q", conf.Database.Engine)
	}

	if store.Mongo == nil && conf.Blob.Driver == core.BlobGridFS {
		db, err := mongodb.Open(ctx, conf.Database.MongoURI, conf.Database.Name, nil)
		if err != nil {
			_ = store.RecordStore.Close()
			return nil, errors.Wrap(err, "connecting to GridFS")
		}
		store.Mongo = db.Database
		store.closers = append(store.closers, db.Close)
	}
	return store, nil
}

// Listen relays the writes made by other replicas until ctx is done.
// It returns straight away on engines that have no replicas.
func (s *Store) Listen(ctx context.Context) error {
	if s.listen == nil {
		return nil
	}
	return s.listen(ctx)
}

func (s *Store) Close() error {
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
	return s.RecordStore.Close()
}
