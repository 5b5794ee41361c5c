package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

var (
	fileParam       = "file"
	errFileRequired = core.NewValidationError(nil, core.FieldError{Field: fileParam, Error: "this field is required"})
)

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// bindDocument opens the uploaded `file`. doc is nil when the request carries no file.
// The returned closer must be called once the document has been stored.
func bindDocument(ctx echo.Context) (doc *cases.Document, closer io.Closer, err error) {
	if !isMultipart(ctx) {
		return nil, nil, nil
	}
	fh, err := ctx.FormFile(fileParam)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "reading uploaded file")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening uploaded file")
	}
	return &cases.Document{
		Filename:    fh.Filename,
		ContentType: contentType(fh),
		Content:     f,
	}, f, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}

// bindProgressUpdate binds a progress update sent as JSON, form or multipart form with an optional `file`.
func bindProgressUpdate(ctx echo.Context) (cases.ProgressUpdate, io.Closer, error) {
	var data cases.ProgressUpdate
	if err := ctx.Bind(&data); err != nil {
		return data, nil, errors.Wrap(err, "binding to ProgressUpdate")
	}
	doc, closer, err := bindDocument(ctx)
	if err != nil {
		return data, nil, err
	}
	data.Document = doc
	return data, closer, nil
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
