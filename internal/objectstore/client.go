// Package objectstore provides access to the S3-compatible store holding
// source documents and rendered page images.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/readmill/pagepress/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Store describes the minimal object store surface the pipeline needs.
// Failures propagate to the caller; no retries happen at this layer.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// MinioStore implements Store against a single bucket of an S3-compatible endpoint.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore wraps an existing minio client for the configured bucket.
func NewMinioStore(client *minio.Client, cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Get returns a reader for the object at key. The caller must close it.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	// GetObject is lazy; Stat forces the first request so missing keys surface
	// here instead of on the first Read.
	if _, statErr := obj.Stat(); statErr != nil {
		_ = obj.Close()
		var resp minio.ErrorResponse
		if errors.As(statErr, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("stat object %q: %w", key, statErr)
	}

	return obj, nil
}

// Put uploads the contents of r under key with the given content type.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}
