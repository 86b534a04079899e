// Package imaging validates uploaded images and converts them into model input tensors.
package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for files whose extension or decoded
// format is not an accepted image type.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrTooManyPixels is returned when the declared dimensions exceed the pixel limit.
var ErrTooManyPixels = errors.New("image has too many pixels")

// DefaultMaxPixels is the largest accepted width*height, about 89M pixels.
// A full decode allocates 4 bytes per pixel.
const DefaultMaxPixels int64 = 89_478_485

// allowedExtensions maps accepted extensions to the decoder name image.DecodeConfig reports.
var allowedExtensions = map[string]string{
	"png":  "png",
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"webp": "webp",
}

// Validator checks uploads by extension and by image header.
type Validator struct {
	maxPixels int64
}

// NewValidator returns a Validator for PNG, JPEG and WebP files.
// maxPixels <= 0 means DefaultMaxPixels.
func NewValidator(maxPixels int64) *Validator {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Validator{maxPixels: maxPixels}
}

// AllowedExtension reports whether ext (without the dot, any case) is accepted.
func (v *Validator) AllowedExtension(ext string) bool {
	_, ok := allowedExtensions[strings.ToLower(ext)]
	return ok
}

// Validate confirms that path has an accepted extension and that its header
// decodes as a PNG, JPEG or WebP image with positive dimensions within the
// pixel limit. Pixel data is not decoded.
func (v *Validator) Validate(path string) error {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !v.AllowedExtension(ext) {
		return fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	if !knownFormat(format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > v.maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrTooManyPixels, cfg.Width, cfg.Height, v.maxPixels)
	}
	return nil
}

func knownFormat(format string) bool {
	for _, f := range allowedExtensions {
		if f == format {
			return true
		}
	}
	return false
}
