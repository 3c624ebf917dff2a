package client

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/windfall/ielts_service/internal/errors"
)

// StorageClient archives recordings in a Google Cloud Storage bucket.
type StorageClient struct {
	client     *storage.Client
	bucketName string
}

// NewStorageClient creates a new storage client. An empty credentialsFile
// uses application default credentials.
func NewStorageClient(ctx context.Context, bucketName, credentialsFile string) (*StorageClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageService, "failed to create storage client", err)
	}

	return &StorageClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Close closes the client.
func (c *StorageClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Upload stores data under objectName and returns its gs:// URL.
func (c *StorageClient) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	w := c.client.Bucket(c.bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", errors.Wrap(errors.ErrStorageService, "failed to write object", err)
	}

	if err := w.Close(); err != nil {
		return "", errors.Wrap(errors.ErrStorageService, "failed to finalize object", err)
	}

	return "gs://" + c.bucketName + "/" + objectName, nil
}
