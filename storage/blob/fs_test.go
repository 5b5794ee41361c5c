package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clinic/core"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir(), "http://localhost:8000/")
	require.NoError(t, err)

	key := "case-documents/c1/1700000000000-brief.pdf"
	url, err := store.Put(ctx, key, strings.NewReader("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/files/"+key, url)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	// write-once
	_, err = store.Put(ctx, key, strings.NewReader("other"), "")
	assert.Error(t, err)

	_, err = store.Open(ctx, "case-documents/c1/missing.pdf")
	assert.Equal(t, core.ErrBlobNotFound, err)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a/b.txt", want: "a/b.txt"},
		{key: "../../etc/passwd", want: "etc/passwd"},
		{key: "/a/./b/../c", want: "a/c"},
		{key: "  ", wantErr: true},
		{key: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
