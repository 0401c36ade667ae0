package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jsbundle/jsbundle/internal/config"
)

// FileSystemStorage publishes a bundle by copying it to a path on the local
// filesystem. The metadata is not kept.
type FileSystemStorage struct {
	path string
}

func newFileSystemStorage(cfg *config.FileSystemStorage) *FileSystemStorage {
	return &FileSystemStorage{path: cfg.Path}
}

func (s *FileSystemStorage) Upload(_ context.Context, body io.ReadSeeker, _ string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	return f.Close()
}

func (s *FileSystemStorage) Download(context.Context) (io.Reader, error) {
	bs, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(bs), nil
}

func readAll(r io.Reader) (io.Reader, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(bs), nil
}
