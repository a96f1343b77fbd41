// Package store provides the append-only persistence backends for the
// capability ledger: a JSONL file for single-node deployments, SQLite for
// lite mode, Postgres for managed installs.
//
// Each backend persists one opaque serialized record per line or row, in
// append order, all-or-nothing per record. Backends never interpret record
// contents; chain verification belongs to the ledger.
package store

import (
	"context"
	"errors"
	"io"
)

// ErrIO classifies transient persistence failures. An append that fails
// with ErrIO did not persist the record and may be retried with the same
// record; any other error is a logic defect and must not be retried.
var ErrIO = errors.New("store: i/o failure")

// ErrMalformedRecord reports a record that cannot be stored line-oriented,
// such as one containing a line break. Well-formed serialized entries never
// trip this; it indicates a bug upstream.
var ErrMalformedRecord = errors.New("store: malformed record")

// Store is the full backend surface: append, replay, close.
type Store interface {
	AppendLine(ctx context.Context, line []byte) error
	ReadAll(ctx context.Context) ([][]byte, error)
	io.Closer
}
