package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     string
	}{
		{filename: "apple.jpg", want: "jpg"},
		{filename: "APPLE.JPEG", want: "jpeg"},
		{filename: "archive.tar.png", want: "png"},
		{filename: "noext", want: ""},
		{filename: "trailing.", want: ""},
		{filename: "dir.d/photo", want: ""},
		{filename: `C:\photos\apple.webp`, want: "webp"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Extension(tt.filename))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		ext      string
		want     string
	}{
		{name: "plain name kept", filename: "apple.jpg", ext: "jpg", want: "apple.jpg"},
		{name: "spaces joined", filename: "my  red apple.png", ext: "png", want: "my_red_apple.png"},
		{name: "path traversal stripped", filename: "../../etc/passwd.jpg", ext: "jpg", want: "etc_passwd.jpg"},
		{name: "accents folded", filename: "pómme.webp", ext: "webp", want: "pomme.webp"},
		{name: "non latin falls back", filename: "りんご.jpeg", ext: "jpeg", want: "upload.jpeg"},
		{name: "leading dots trimmed", filename: "...hidden.png", ext: "png", want: "hidden.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeFilename(tt.filename, tt.ext))
		})
	}
}
