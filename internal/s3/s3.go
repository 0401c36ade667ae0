package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/jsbundle/jsbundle/internal/config"
)

const (
	contentType = "application/javascript"

	metadataSHA256   = "sha256"
	metadataRevision = "revision"
)

// ObjectStorage publishes a bundle to one location. Upload replaces whatever
// was published before.
type ObjectStorage interface {
	Upload(ctx context.Context, body io.ReadSeeker, revision string) error
	Download(ctx context.Context) (io.Reader, error)
}

// New returns the storage selected by cfg.
func New(ctx context.Context, cfg config.ObjectStorage) (ObjectStorage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return newAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		return newGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		return newAzureBlobStorage(cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		return newFileSystemStorage(cfg.FileSystemStorage), nil
	}

	return nil, errors.New("no object storage configured")
}

// Backend names the storage selected by cfg, for metrics and logs.
func Backend(cfg config.ObjectStorage) string {
	switch {
	case cfg.AmazonS3 != nil:
		return "aws"
	case cfg.GCPCloudStorage != nil:
		return "gcp"
	case cfg.AzureBlobStorage != nil:
		return "azure"
	case cfg.FileSystemStorage != nil:
		return "filesystem"
	}
	return ""
}

// metadata returns the object metadata stored next to a bundle: its sha256
// and, when set, the revision. The body is rewound afterwards.
func metadata(body io.ReadSeeker, revision string) (map[string]string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return nil, fmt.Errorf("failed to hash bundle: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind bundle: %w", err)
	}

	m := map[string]string{metadataSHA256: hex.EncodeToString(h.Sum(nil))}
	if revision != "" {
		m[metadataRevision] = revision
	}
	return m, nil
}

func resolve[T any](ref *config.SecretRef) (T, bool, error) {
	var zero T
	if ref == nil {
		return zero, false, nil
	}

	value, err := ref.Resolve()
	if err != nil {
		return zero, false, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, false, fmt.Errorf("secret %q has the wrong type %T", ref.Name, value)
	}
	return typed, true, nil
}
