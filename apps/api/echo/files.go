package echoapi

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	blobstore "github.com/trezcool/clinic/storage/blob"
)

// registerFilesAPI serves the documents of the blob stores that do not serve their own URLs.
func registerFilesAPI(app *echo.Echo, blobs core.BlobStore) {
	app.GET(blobstore.FilesPath+"*", func(ctx echo.Context) error {
		// URL.Path is decoded exactly once, whatever escaping the client chose
		key := strings.TrimPrefix(ctx.Request().URL.Path, blobstore.FilesPath)
		rc, err := blobs.Open(ctx.Request().Context(), key)
		if err != nil {
			if errors.Cause(err) == core.ErrBlobNotFound {
				return errHttpNotFound
			}
			return core.NewStoreError(errors.Wrap(err, "opening document"))
		}
		defer rc.Close()

		ctype := mime.TypeByExtension(path.Ext(key))
		if ctype == "" {
			ctype = echo.MIMEOctetStream
		}
		return ctx.Stream(http.StatusOK, ctype, rc)
	})
}
