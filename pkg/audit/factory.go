package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ArchiveType selects the evidence archive backend.
type ArchiveType string

const (
	ArchiveFS  ArchiveType = "fs"
	ArchiveS3  ArchiveType = "s3"
	ArchiveGCS ArchiveType = "gcs"
)

// NewArchiveFromEnv selects an archive backend from environment variables.
//
//   - PAWL_ARCHIVE_TYPE: "fs" (default), "s3", or "gcs"
//   - PAWL_DATA_DIR: base directory for the fs archive (default "data")
//
// For S3:
//   - PAWL_ARCHIVE_S3_BUCKET (required)
//   - PAWL_ARCHIVE_S3_REGION or AWS_REGION
//   - PAWL_ARCHIVE_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - PAWL_ARCHIVE_S3_PREFIX (optional)
//
// For GCS (requires the gcp build tag):
//   - PAWL_ARCHIVE_GCS_BUCKET (required)
//   - PAWL_ARCHIVE_GCS_PREFIX (optional)
func NewArchiveFromEnv(ctx context.Context) (Archive, error) {
	archiveType := ArchiveType(os.Getenv("PAWL_ARCHIVE_TYPE"))
	if archiveType == "" {
		archiveType = ArchiveFS
	}

	switch archiveType {
	case ArchiveFS:
		return newFSArchiveFromEnv()
	case ArchiveS3:
		return newS3ArchiveFromEnv(ctx)
	case ArchiveGCS:
		return newGCSArchiveFromEnv(ctx)
	default:
		return nil, fmt.Errorf("audit: unsupported archive type: %s", archiveType)
	}
}

func newFSArchiveFromEnv() (Archive, error) {
	dataDir := os.Getenv("PAWL_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFSArchive(filepath.Join(dataDir, "evidence"))
}

func newS3ArchiveFromEnv(ctx context.Context) (Archive, error) {
	bucket := os.Getenv("PAWL_ARCHIVE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("audit: PAWL_ARCHIVE_S3_BUCKET is required for s3 archives")
	}

	region := os.Getenv("PAWL_ARCHIVE_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Archive(ctx, S3ArchiveConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("PAWL_ARCHIVE_S3_ENDPOINT"),
		Prefix:   os.Getenv("PAWL_ARCHIVE_S3_PREFIX"),
	})
}
