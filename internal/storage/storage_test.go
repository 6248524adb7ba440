package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

func newStore(t *testing.T, max int64) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/uploads", max)
	require.NoError(t, err)
	return s, fs
}

func upload(name, body string) *model.Upload {
	return &model.Upload{Filename: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"my report (1).pdf":   "my_report_1.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\x\scan.png`: "scan.png",
		".hidden.pdf":         "hidden.pdf",
		"..":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestSaveAndOpen(t *testing.T) {
	s, fs := newStore(t, 1024)

	name, err := s.Save(Labs, "Q1", upload("blood test.pdf", "%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "Q1__blood_test.pdf", name)

	exists, err := afero.Exists(fs, "/uploads/labs/Q1__blood_test.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	f, err := s.Open(Labs, name)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	owner, ok := OwnerOf(name)
	assert.True(t, ok)
	assert.Equal(t, "Q1", owner)
}

func TestSaveRejectsDisallowedExtensions(t *testing.T) {
	s, _ := newStore(t, 1024)

	_, err := s.Save(Labs, "Q1", upload("scan.png", "x"))
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	_, err = s.Save(Photos, "Q1", upload("face.pdf", "x"))
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	for _, ext := range []string{"jpg", "JPEG", "png", "gif"} {
		_, err := s.Save(Photos, "Q1", upload("face."+ext, "x"))
		assert.NoError(t, err, ext)
	}
}

func TestSaveEnforcesSizeLimit(t *testing.T) {
	s, fs := newStore(t, 4)

	_, err := s.Save(Labs, "Q1", upload("big.pdf", "0123456789"))
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	// Size header lies; the copy still stops at the limit.
	up := &model.Upload{Filename: "liar.pdf", Size: 1, Content: strings.NewReader("0123456789")}
	_, err = s.Save(Labs, "Q1", up)
	assert.ErrorIs(t, err, apperrors.StorageErr)

	exists, _ := afero.Exists(fs, "/uploads/labs/Q1__liar.pdf")
	assert.False(t, exists)
}

func TestOpenRejectsTraversal(t *testing.T) {
	s, _ := newStore(t, 0)

	_, err := s.Open(Labs, "../photos/Q1__face.png")
	assert.ErrorIs(t, err, apperrors.NotFoundErr)

	_, err = s.Open(Labs, "Q1__missing.pdf")
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}

func TestRemove(t *testing.T) {
	s, fs := newStore(t, 0)

	name, err := s.Save(Photos, "Q1", upload("face.png", "img"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(Photos, name))

	exists, _ := afero.Exists(fs, "/uploads/photos/"+name)
	assert.False(t, exists)
	assert.NoError(t, s.Remove(Photos, name))
	assert.NoError(t, s.Remove(Photos, ""))
}

func TestOwnerOfWithoutSeparator(t *testing.T) {
	_, ok := OwnerOf("plain.pdf")
	assert.False(t, ok)
}

func TestSaveNeverOverwrites(t *testing.T) {
	s, _ := newStore(t, 0)

	first, err := s.Save(Labs, "Q1", upload("cbc.pdf", "january"))
	require.NoError(t, err)
	second, err := s.Save(Labs, "Q1", upload("cbc.pdf", "february"))
	require.NoError(t, err)

	assert.Equal(t, "Q1__cbc.pdf", first)
	assert.Equal(t, "Q1__cbc-1.pdf", second)

	f, err := s.Open(Labs, first)
	require.NoError(t, err)
	defer f.Close()
	body, _ := io.ReadAll(f)
	assert.Equal(t, "january", string(body))
}
