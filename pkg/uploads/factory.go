package uploads

import (
	"context"
	"fmt"

	"github.com/autoverif/vinledger/pkg/config"
)

// NewStore builds the configured photo backend: "fs" (default), "s3"
// or "gcs" (the latter requires a -tags gcp build).
func NewStore(ctx context.Context, cfg config.UploadConfig) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFileStore(cfg.Dir)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("UPLOAD_S3_BUCKET is required for the s3 backend")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket: cfg.S3Bucket,
			Region: region,
			Prefix: cfg.S3Prefix,
		})
	case "gcs":
		return newGCSFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported upload backend: %s", cfg.Backend)
	}
}
