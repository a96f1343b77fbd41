//go:build gcp

package audit

import (
	"context"
	"fmt"
	"os"
)

func newGCSArchiveFromEnv(ctx context.Context) (Archive, error) {
	bucket := os.Getenv("PAWL_ARCHIVE_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("audit: PAWL_ARCHIVE_GCS_BUCKET is required for gcs archives")
	}

	return NewGCSArchive(ctx, GCSArchiveConfig{
		Bucket: bucket,
		Prefix: os.Getenv("PAWL_ARCHIVE_GCS_PREFIX"),
	})
}
