package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/objectstore"
)

// ConnectObjectStore connects to the S3-compatible object store and verifies
// the configured bucket exists. The pipeline never creates the bucket: the
// upload side owns it, and a missing bucket means the deployment is wrong.
func ConnectObjectStore(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*objectstore.MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	if logger != nil {
		logger.InfoContext(ctx, "object store connected",
			"endpoint", cfg.Endpoint,
			"bucket", cfg.Bucket,
		)
	}

	return objectstore.NewMinioStore(client, cfg)
}
