package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
)

// JSONLStore appends records to a newline-delimited file opened append-only.
// The write path issues a single write per record so a crash never leaves a
// half-record followed by a newline from someone else.
type JSONLStore struct {
	path  string
	mu    sync.Mutex
	file  *os.File
	fsync bool
}

// JSONLOption configures a JSONLStore.
type JSONLOption func(*JSONLStore)

// WithFsync forces a sync after every append. Slower, survives power loss.
func WithFsync() JSONLOption {
	return func(s *JSONLStore) { s.fsync = true }
}

// NewJSONLStore opens (creating if needed) the log at path.
func NewJSONLStore(path string, opts ...JSONLOption) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	s := &JSONLStore{path: path, file: f}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AppendLine persists one record.
func (s *JSONLStore) AppendLine(_ context.Context, line []byte) error {
	if bytes.ContainsRune(line, '\n') {
		return fmt.Errorf("%w: record contains a line break", ErrMalformedRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrIO, s.path, err)
	}
	if s.fsync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %v", ErrIO, s.path, err)
		}
	}
	return nil
}

// ReadAll returns every persisted record, oldest first.
func (s *JSONLStore) ReadAll(_ context.Context) ([][]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path, err)
	}

	var out [][]byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		out = append(out, cp)
	}
	return out, nil
}

// Close releases the file handle.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
