// Package mongodb implements the repositories on top of MongoDB.
package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clinic/core"
)

// unauthorized is the MongoDB error code of operations rejected by access control.
const unauthorized = 13

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	notifier core.Notifier

	users    *mongo.Collection
	cases    *mongo.Collection
	progress *mongo.Collection
}

var _ core.RecordStore = (*DB)(nil)

// Open connects to uri and ensures the indexes of the dbName database exist. notifier may be nil.
func Open(ctx context.Context, uri, dbName string, notifier core.Notifier) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	mdb := client.Database(dbName)
	db := &DB{
		Client:   client,
		Database: mdb,
		notifier: notifier,
		users:    mdb.Collection(core.CollectionUsers),
		cases:    mdb.Collection(core.CollectionCases),
		progress: mdb.Collection(core.CollectionProgress),
	}
	if err = db.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err = db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		db.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		db.cases: {
			{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		db.progress: {
			{Keys: bson.D{{Key: "caseId", Value: 1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "seq", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(mapError(err), "creating %s indexes", coll.Name())
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return errors.Wrap(db.Client.Ping(ctx, nil), "mongo ping")
}

func (db *DB) Close() error {
	return db.Client.Disconnect(context.Background())
}

func (db *DB) notify(collection string) {
	if db.notifier != nil {
		db.notifier.Notify(collection)
	}
}

// Watch forwards the writes of other replicas to the notifier until ctx is done, using a change stream.
// Change streams need a replica set: on a standalone server it returns the error straight away.
func (db *DB) Watch(ctx context.Context) error {
	if db.notifier == nil {
		return nil
	}
	pipeline := mongo.Pipeline{{{Key: "$project", Value: bson.D{{Key: "ns", Value: 1}}}}}
	stream, err := db.Database.Watch(ctx, pipeline)
	if err != nil {
		return errors.Wrap(mapError(err), "opening change stream")
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var ev struct {
			NS struct {
				Coll string `bson:"coll"`
			} `bson:"ns"`
		}
		if err = stream.Decode(&ev); err != nil {
			continue
		}
		db.notifier.Notify(ev.NS.Coll)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(stream.Err(), "reading change stream")
}

func mapError(err error) error {
	var sErr mongo.ServerError
	if errors.As(err, &sErr) && sErr.HasErrorCode(unauthorized) {
		return core.ErrPermissionDenied
	}
	return err
}
