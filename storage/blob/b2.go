package blobstore

import (
	"context"
	"io"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
)

// B2Store stores blobs in a public Backblaze B2 bucket, which serves them itself.
type B2Store struct {
	bucket *b2.Bucket
}

var _ core.BlobStore = (*B2Store)(nil)

func NewB2Store(ctx context.Context, account, key, bucketName string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, account, key)
	if err != nil {
		return nil, errors.Wrap(err, "creating B2 client")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "getting B2 bucket")
	}
	return &B2Store{bucket: bucket}, nil
}

func (s *B2Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	obj := s.bucket.Object(key)
	w := obj.NewWriter(ctx)
	if contentType != "" {
		w = w.WithAttrs(&b2.Attrs{ContentType: contentType})
	}
	if _, err = io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", errors.Wrap(err, "uploading to B2")
	}
	if err = w.Close(); err != nil {
		return "", errors.Wrap(err, "uploading to B2")
	}
	return obj.URL(), nil
}

func (s *B2Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, core.ErrBlobNotFound
	}
	if _, err = s.bucket.Object(key).Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil, core.ErrBlobNotFound
		}
		return nil, errors.Wrap(err, "getting B2 object")
	}
	return s.bucket.Object(key).NewReader(ctx), nil
}
