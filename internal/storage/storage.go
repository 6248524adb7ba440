package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

// Category selects the directory and extension allow-list of an upload.
type Category string

const (
	Labs   Category = "labs"
	Photos Category = "photos"
)

var allowed = map[Category]map[string]bool{
	Labs:   {"pdf": true},
	Photos: {"jpg": true, "jpeg": true, "png": true, "gif": true},
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

const nameSeparator = "__"

// Store writes uploads under root/{labs,photos}/{qr}__{safe name}.
type Store struct {
	fs       afero.Fs
	maxBytes int64
}

func New(fs afero.Fs, root string, maxBytes int64) (*Store, error) {
	base := afero.NewBasePathFs(fs, root)
	for _, c := range []Category{Labs, Photos} {
		if err := base.MkdirAll(string(c), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", c, err)
		}
	}
	return &Store{fs: base, maxBytes: maxBytes}, nil
}

// NewOS returns a store rooted on the local filesystem.
func NewOS(root string, maxBytes int64) (*Store, error) {
	return New(afero.NewOsFs(), root, maxBytes)
}

// SecureFilename reduces a client-supplied name to a safe base name.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	return name
}

func extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Allowed reports whether filename has an extension accepted for c.
func Allowed(c Category, filename string) bool {
	return allowed[c][extension(filename)]
}

// StoredName builds the collision-free name for qrID's upload.
func StoredName(qrID, filename string) string {
	return qrID + nameSeparator + SecureFilename(filename)
}

// OwnerOf returns the QR token encoded in a stored name.
func OwnerOf(storedName string) (string, bool) {
	i := strings.Index(storedName, nameSeparator)
	if i <= 0 {
		return "", false
	}
	return storedName[:i], true
}

// Validate checks the upload against the category rules without storing it.
func (s *Store) Validate(c Category, up *model.Upload) error {
	if up == nil || up.Filename == "" {
		return apperrors.Validation("no file selected")
	}
	if SecureFilename(up.Filename) == "" {
		return apperrors.Validation("invalid file name")
	}
	if !Allowed(c, up.Filename) {
		if c == Labs {
			return apperrors.Validation("lab file must be a PDF")
		}
		return apperrors.Validation("photo must be jpg, jpeg, png or gif")
	}
	if s.maxBytes > 0 && up.Size > s.maxBytes {
		return apperrors.Validation(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	return nil
}

// Save validates and writes the upload, returning the stored name. An
// existing file is never overwritten; a numeric suffix is added instead.
func (s *Store) Save(c Category, qrID string, up *model.Upload) (string, error) {
	if err := s.Validate(c, up); err != nil {
		return "", err
	}

	name, f, err := s.create(c, StoredName(qrID, up.Filename))
	if err != nil {
		return "", err
	}

	src := up.Content
	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && s.maxBytes > 0 && n > s.maxBytes {
		copyErr = errors.New("file exceeds size limit")
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = s.fs.Remove(path.Join(string(c), name))
		return "", apperrors.Storage(fmt.Errorf("failed to write %s: %w", name, err))
	}
	return name, nil
}

const maxNameAttempts = 100

func (s *Store) create(c Category, name string) (string, afero.File, error) {
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}

	candidate := name
	for i := 1; i <= maxNameAttempts; i++ {
		f, err := s.fs.OpenFile(path.Join(string(c), candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			return candidate, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, apperrors.Storage(fmt.Errorf("failed to create %s: %w", candidate, err))
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	return "", nil, apperrors.Storage(fmt.Errorf("too many files named %s", name))
}

// Remove deletes a stored file; a missing file is not an error.
func (s *Store) Remove(c Category, name string) error {
	if name == "" {
		return nil
	}
	err := s.fs.Remove(path.Join(string(c), SecureFilename(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Storage(err)
	}
	return nil
}

// Open returns a reader for a stored file. Names that do not survive
// sanitisation unchanged are rejected.
func (s *Store) Open(c Category, name string) (afero.File, error) {
	if name == "" || SecureFilename(name) != name {
		return nil, apperrors.NotFound("file", nil)
	}
	f, err := s.fs.Open(path.Join(string(c), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("file", err)
		}
		return nil, apperrors.Storage(err)
	}
	return f, nil
}
