package s3

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jsbundle/jsbundle/internal/config"
)

// GCPCloudStorage stores a bundle as one object of a Google Cloud Storage
// bucket. Without a secret, application default credentials are used:
// environment variables, the file created by gcloud auth
// application-default login, or the GCE/GKE metadata server.
type GCPCloudStorage struct {
	client *storage.Client
	bucket string
	object string
}

func newGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var opts []option.ClientOption

	creds, ok, err := resolve[config.SecretGCP](cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if ok {
		if creds.APIKey != "" {
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		} else {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP storage client for project %s: %w", cfg.Project, err)
	}

	return &GCPCloudStorage{client: client, bucket: cfg.Bucket, object: cfg.Object}, nil
}

func (s *GCPCloudStorage) Upload(ctx context.Context, body io.ReadSeeker, revision string) error {
	meta, err := metadata(body, revision)
	if err != nil {
		return err
	}

	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = meta

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, s.object, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, s.object, err)
	}

	return nil
}

func (s *GCPCloudStorage) Download(ctx context.Context) (io.Reader, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer r.Close()

	return readAll(r)
}
