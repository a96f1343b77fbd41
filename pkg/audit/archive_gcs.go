//go:build gcp

package audit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSArchive stores evidence packs in a GCS bucket, keyed by content hash.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSArchiveConfig configures the bucket binding.
type GCSArchiveConfig struct {
	Bucket string
	Prefix string
}

// NewGCSArchive builds the client from application default credentials.
func NewGCSArchive(ctx context.Context, cfg GCSArchiveConfig) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: create gcs client: %w", err)
	}
	return &GCSArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchive) object(raw string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.prefix + raw + ".zip")
}

// Put uploads the pack unless an object with the same content hash exists.
func (a *GCSArchive) Put(ctx context.Context, data []byte) (string, error) {
	ref, raw := contentRef(data)
	obj := a.object(raw)

	if _, err := obj.Attrs(ctx); err == nil {
		return ref, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("audit: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("audit: gcs close: %w", err)
	}
	return ref, nil
}

func (a *GCSArchive) Get(ctx context.Context, ref string) ([]byte, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	r, err := a.object(raw).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: gcs get %s: %w", ref, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (a *GCSArchive) Exists(ctx context.Context, ref string) (bool, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}

	if _, err := a.object(raw).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("audit: gcs attrs: %w", err)
	}
	return true, nil
}
