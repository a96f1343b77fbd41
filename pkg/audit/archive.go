package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Archive is write-once content-addressed storage for evidence packs.
// Put returns a "sha256:<hex>" reference; there is deliberately no delete.
type Archive interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

func contentRef(data []byte) (ref, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return "sha256:" + raw, raw
}

func parseRef(ref string) (string, error) {
	if len(ref) < 8 || ref[:7] != "sha256:" {
		return "", fmt.Errorf("audit: invalid archive ref %q", ref)
	}
	raw := ref[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("audit: invalid archive ref hex: %w", err)
	}
	return raw, nil
}

// FSArchive stores packs as blob files under a base directory.
type FSArchive struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFSArchive ensures the directory exists and returns the archive.
func NewFSArchive(baseDir string) (*FSArchive, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: ensure archive dir: %w", err)
	}
	return &FSArchive{baseDir: baseDir}, nil
}

// Put writes the pack to a temp file and renames it into place. Re-putting
// the same bytes is a no-op returning the same ref.
func (a *FSArchive) Put(ctx context.Context, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ref, raw := contentRef(data)
	path := filepath.Join(a.baseDir, raw+".zip")
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("audit: write pack: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("audit: commit pack: %w", err)
	}
	return ref, nil
}

func (a *FSArchive) Get(ctx context.Context, ref string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(a.baseDir, raw+".zip"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("audit: pack not found: %s", ref)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (a *FSArchive) Exists(ctx context.Context, ref string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(a.baseDir, raw+".zip"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
