//go:build gcp

package uploads

import (
	"context"
	"fmt"

	"github.com/autoverif/vinledger/pkg/config"
)

func newGCSFromConfig(ctx context.Context, cfg config.UploadConfig) (Store, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("UPLOAD_GCS_BUCKET is required for the gcs backend")
	}
	return NewGCSStore(ctx, GCSConfig{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
}
