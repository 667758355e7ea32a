//go:build !gcp

package uploads

import (
	"context"
	"fmt"

	"github.com/autoverif/vinledger/pkg/config"
)

func newGCSFromConfig(_ context.Context, _ config.UploadConfig) (Store, error) {
	return nil, fmt.Errorf("GCS uploads are not enabled in this build (use -tags gcp)")
}
