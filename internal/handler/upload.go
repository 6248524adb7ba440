package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

// Uploads keeps the opened form files of one request so they can be closed
// together once the service call returns.
type Uploads struct {
	open []io.Closer
}

func (u *Uploads) Close() {
	for _, f := range u.open {
		_ = f.Close()
	}
	u.open = nil
}

func (u *Uploads) wrap(fh *multipart.FileHeader) (*model.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.Validation("could not read uploaded file")
	}
	u.open = append(u.open, f)
	return &model.Upload{Filename: fh.Filename, Size: fh.Size, Content: f}, nil
}

// File returns the upload in field, or nil when no file was chosen.
func (u *Uploads) File(c *gin.Context, field string) (*model.Upload, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Validation("invalid upload")
	}
	if fh.Filename == "" {
		return nil, nil
	}
	return u.wrap(fh)
}

// Files returns every upload in a multi-file field.
func (u *Uploads) Files(c *gin.Context, field string) ([]*model.Upload, error) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Validation("invalid upload")
	}

	var out []*model.Upload
	for _, fh := range form.File[field] {
		if fh.Filename == "" {
			continue
		}
		up, err := u.wrap(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}
