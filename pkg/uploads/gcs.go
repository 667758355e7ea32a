//go:build gcp

package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"

	"cloud.google.com/go/storage"
)

// GCSStore stores photos in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds GCS backend settings.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates the GCS photo backend using application-default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Save(ctx context.Context, ext string, data []byte) (string, error) {
	name, err := newStoredName(ext)
	if err != nil {
		return "", err
	}

	w := s.client.Bucket(s.bucket).Object(s.prefix + name).NewWriter(ctx)
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		w.ContentType = ct
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close upload: %w", err)
	}
	return name, nil
}

func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validStoredName(name); err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.prefix + name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get upload %s: %w", name, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	if err := validStoredName(name); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(s.prefix + name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete upload %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
