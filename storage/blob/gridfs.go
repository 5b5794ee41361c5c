package blobstore

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clinic/core"
)

// GridFSBucket is the bucket holding case documents.
const GridFSBucket = "case_documents"

// GridFSStore stores blobs in a MongoDB GridFS bucket, the blob key being the file name.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

var _ core.BlobStore = (*GridFSStore)(nil)

func NewGridFSStore(db *mongo.Database, baseURL string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(GridFSBucket))
	if err != nil {
		return nil, errors.Wrap(err, "opening GridFS bucket")
	}
	return &GridFSStore{bucket: bucket, baseURL: baseURL}, nil
}

// setDeadline applies the ctx deadline, if any, to the next bucket operations.
func (s *GridFSStore) setDeadline(ctx context.Context, write bool) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	if write {
		return s.bucket.SetWriteDeadline(deadline)
	}
	return s.bucket.SetReadDeadline(deadline)
}

func (s *GridFSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err = s.setDeadline(ctx, true); err != nil {
		return "", err
	}

	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err = s.bucket.UploadFromStream(key, r, opts); err != nil {
		return "", errors.Wrap(err, "uploading to GridFS")
	}
	return fileURL(s.baseURL, key), nil
}

func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, core.ErrBlobNotFound
	}
	if err = s.setDeadline(ctx, false); err != nil {
		return nil, err
	}

	stream, err := s.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, core.ErrBlobNotFound
		}
		return nil, errors.Wrap(err, "opening GridFS file")
	}
	return stream, nil
}
