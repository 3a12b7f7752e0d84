package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpload(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		mime     string
		size     int64
		maxSize  int64
		wantErr  error
	}{
		{"plain text ok", "notes.txt", "text/plain", 10, 100, nil},
		{"no declared mime ok", "photo.jpg", "", 10, 100, nil},
		{"unlimited max size", "huge.bin", "application/octet-stream", 1 << 40, 0, nil},
		{"zero size", "empty.txt", "text/plain", 0, 100, ErrEmptyFile},
		{"negative size", "weird.txt", "text/plain", -1, 100, ErrEmptyFile},
		{"too large", "big.bin", "application/octet-stream", 101, 100, ErrFileTooLarge},
		{"empty name", "", "text/plain", 10, 100, ErrBadFilename},
		{"slash in name", "etc/passwd", "text/plain", 10, 100, ErrBadFilename},
		{"backslash in name", "a\\b.txt", "text/plain", 10, 100, ErrBadFilename},
		{"dot dot", "..", "text/plain", 10, 100, ErrBadFilename},
		{"executable", "setup.exe", "application/octet-stream", 10, 100, ErrUnsupportedType},
		{"executable uppercase", "SETUP.EXE", "application/octet-stream", 10, 100, ErrUnsupportedType},
		{"bogus mime", "doc.txt", "notamime", 10, 100, ErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateUpload(tc.filename, tc.mime, tc.size, tc.maxSize)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
			require.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/csv", contentTypeFor("text/csv", "data.bin"))
	assert.Equal(t, "image/jpeg", contentTypeFor("", "photo.JPG"))
	assert.Equal(t, "application/pdf", contentTypeFor("", "paper.pdf"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("", "mystery.xyz"))
}
