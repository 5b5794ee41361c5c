package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a write-once object storage for uploaded case documents.
type BlobStore interface {
	// Put stores the content under key and returns its retrieval URL.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Open returns the content stored under key. Stores serving their own URLs
	// (eg. B2) may return ErrBlobNotFound for every key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
