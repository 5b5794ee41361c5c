package blobstore

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/clinic/core"
)

// New returns the BlobStore selected by conf.Blob.Driver. mdb is only required by the GridFS driver.
func New(ctx context.Context, conf *core.Config, mdb *mongo.Database) (core.BlobStore, error) {
	switch conf.Blob.Driver {
	case core.BlobFS, "":
		return NewFSStore(conf.Blob.Root, conf.Server.PublicURL)
	case core.BlobGridFS:
		if mdb == nil {
			return nil, errors.New("GridFS blob store requires a MongoDB database")
		}
		return NewGridFSStore(mdb, conf.Server.PublicURL)
	case core.BlobB2:
		return NewB2Store(ctx, conf.Blob.B2Account, conf.Blob.B2Key, conf.Blob.B2Bucket)
	default:
		return nil, errors.Errorf("unknown blob driver %q", conf.Blob.Driver)
	}
}
