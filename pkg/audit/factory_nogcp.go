//go:build !gcp

package audit

import (
	"context"
	"fmt"
)

func newGCSArchiveFromEnv(ctx context.Context) (Archive, error) {
	return nil, fmt.Errorf("audit: gcs archives are not enabled in this build (use -tags gcp)")
}
