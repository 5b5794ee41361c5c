// Package blobstore holds the core.BlobStore drivers.
package blobstore

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
)

// FilesPath is the URL path under which the API serves blobs of stores that do not serve their own.
const FilesPath = "/files/"

var errInvalidKey = errors.New("invalid blob key")

// cleanKey rejects keys escaping the store root.
func cleanKey(key string) (string, error) {
	key = path.Clean("/" + strings.TrimSpace(key))[1:]
	if key == "" || key == "." {
		return "", errInvalidKey
	}
	return key, nil
}

func fileURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(baseURL, "/") + FilesPath + strings.Join(segments, "/")
}

// FSStore stores blobs as files under a local directory.
type FSStore struct {
	root    string
	baseURL string
}

var _ core.BlobStore = (*FSStore)(nil)

func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating blob root")
	}
	return &FSStore{root: root, baseURL: baseURL}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}

	fp := filepath.Join(s.root, filepath.FromSlash(key))
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating blob dir")
	}
	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating blob")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "writing blob")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing blob")
	}
	return fileURL(s.baseURL, key), nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, core.ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrBlobNotFound
		}
		return nil, errors.Wrap(err, "opening blob")
	}
	return f, nil
}
