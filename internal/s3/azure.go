package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jsbundle/jsbundle/internal/config"
)

// AzureBlobStorage stores a bundle as one blob of an Azure storage container.
// Without a secret, the default Azure credential chain is used: environment
// variables, managed identity, Azure CLI login.
type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	path      string
}

func newAzureBlobStorage(cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	creds, ok, err := resolve[config.SecretAzure](cfg.Credentials)
	if err != nil {
		return nil, err
	}

	var client *azblob.Client
	if ok {
		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid Azure shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load Azure credentials: %w", err)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	}

	return &AzureBlobStorage{client: client, container: cfg.Container, path: cfg.Path}, nil
}

func (s *AzureBlobStorage) Upload(ctx context.Context, body io.ReadSeeker, revision string) error {
	meta, err := metadata(body, revision)
	if err != nil {
		return err
	}

	m := make(map[string]*string, len(meta))
	for k, v := range meta {
		m[k] = &v
	}

	_, err = s.client.UploadStream(ctx, s.container, s.path, body, &azblob.UploadStreamOptions{Metadata: m})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", s.container, s.path, err)
	}

	return nil
}

func (s *AzureBlobStorage) Download(ctx context.Context) (io.Reader, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s/%s: %w", s.container, s.path, err)
	}
	defer resp.Body.Close()

	return readAll(resp.Body)
}
