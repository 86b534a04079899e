// Package storage keeps uploaded images in a sandboxed local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"apple_detector/internal/feature/detection/domain/entity"
	"apple_detector/internal/feature/detection/usecase"
)

// ErrInvalidName is returned when a requested name is not a plain file name.
var ErrInvalidName = errors.New("invalid stored file name")

// LocalStore stores uploads directly under one directory. Every access goes
// through an os.Root, so names can never resolve outside that directory.
type LocalStore struct {
	dir  string
	root *os.Root
}

var (
	_ usecase.ImageStore      = (*LocalStore)(nil)
	_ usecase.UploadDirectory = (*LocalStore)(nil)
)

// NewLocalStore creates dir if needed and opens it as the upload root.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", abs, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open upload dir %s: %w", abs, err)
	}
	return &LocalStore{dir: abs, root: root}, nil
}

// Dir returns the absolute upload directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes r to a new file named <uuid>.<ext>. A partially written file is
// removed before the error is returned.
func (s *LocalStore) Save(ctx context.Context, ext string, r io.Reader) (usecase.StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return usecase.StoredImage{}, err
	}

	name := uuid.NewString() + "." + strings.ToLower(ext)
	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return usecase.StoredImage{}, fmt.Errorf("create %s: %w", name, err)
	}

	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		if rmErr := s.root.Remove(name); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Warn("failed to remove partial upload", "filename", name, "error", rmErr)
		}
		return usecase.StoredImage{}, fmt.Errorf("write %s: %w", name, err)
	}

	return usecase.StoredImage{Name: name, Path: filepath.Join(s.dir, name)}, nil
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *LocalStore) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open opens a stored file for reading.
func (s *LocalStore) Open(name string) (*os.File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := s.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// List returns the regular files in the upload directory.
func (s *LocalStore) List(ctx context.Context) ([]entity.StoredFile, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, err
	}

	out := make([]entity.StoredFile, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, entity.StoredFile{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Close releases the directory handle.
func (s *LocalStore) Close() error {
	return s.root.Close()
}

// checkName accepts only plain, non-hidden file names.
func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}
