// Package ledger implements the hash-chained WORM log of capability
// transitions and diagnostics.
//
// Append-only; no deletions or mutations. Every entry's hexstamp covers its
// payload plus the previous entry's hexstamp, so the chain is independently
// verifiable from the serialized records alone. Undo is always an appended,
// chain-linked compensating record, never a rewrite.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrChainBroken reports a prev_hexstamp that does not match the chain
	// head. Fatal: it means concurrent corruption or a caller bypassing the
	// serialized append path, never a transient condition.
	ErrChainBroken = errors.New("ledger: chain linkage mismatch")

	// ErrHexstampMismatch reports an entry whose recorded hexstamp does not
	// equal the hash recomputed from its payload. Fatal.
	ErrHexstampMismatch = errors.New("ledger: hexstamp mismatch")

	// ErrSerialization reports an entry that failed to serialize. A
	// well-typed entry always serializes; this is a logic defect, not a
	// condition to retry.
	ErrSerialization = errors.New("ledger: entry serialization failed")
)

// Sink receives the serialized line of every accepted entry. Implementations
// must make the write all-or-nothing per line; an error must mean the line
// was not persisted.
type Sink interface {
	AppendLine(ctx context.Context, line []byte) error
}

// Source replays previously persisted lines, oldest first.
type Source interface {
	ReadAll(ctx context.Context) ([][]byte, error)
}

// Ledger is the single-writer, append-only chain. Appends are serialized
// internally; chain correctness depends on append order matching the
// prev_hexstamp linkage, so two appends racing for the same previous hash
// resolve to a strict sequence: the second is rejected with ErrChainBroken.
type Ledger struct {
	mu      sync.RWMutex
	genesis string
	entries []Entry
	head    string
	sink    Sink
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink attaches a persistence sink. Every accepted entry is written to
// the sink before it becomes visible in memory; a sink failure leaves the
// chain untouched so the caller can retry the same sealed entry.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// New creates an empty ledger whose first entry must link to genesis.
func New(genesis string, opts ...Option) *Ledger {
	l := &Ledger{genesis: genesis, head: genesis}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open replays persisted entries from src into a new ledger, verifying the
// full chain as it loads. Appends after a successful Open continue the
// replayed chain.
func Open(ctx context.Context, genesis string, src Source, opts ...Option) (*Ledger, error) {
	l := New(genesis, opts...)

	lines, err := src.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger open: %w", err)
	}

	for i, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: replay line %d: %v", ErrSerialization, i, err)
		}
		if err := l.verifyNext(e); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", i, err)
		}
		l.entries = append(l.entries, e)
		l.head = e.Hexstamp
	}
	return l, nil
}

// Append verifies and accepts one sealed entry. The entry's hexstamp must
// equal the hash recomputed from its own payload, and its prev_hexstamp must
// equal the current head (or genesis for the first entry). Verification
// failures are fatal; only a sink error is worth retrying, and the retry
// must reuse the same sealed entry rather than re-deciding it.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.verifyNext(e); err != nil {
		return err
	}

	if l.sink != nil {
		line, err := jsonLine(e)
		if err != nil {
			return err
		}
		if err := l.sink.AppendLine(ctx, line); err != nil {
			return fmt.Errorf("ledger append: %w", err)
		}
	}

	l.entries = append(l.entries, e)
	l.head = e.Hexstamp
	return nil
}

func jsonLine(e Entry) ([]byte, error) {
	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return line, nil
}

// verifyNext checks e against the current head. Callers hold the lock (or,
// during Open, exclusive ownership).
func (l *Ledger) verifyNext(e Entry) error {
	want, err := e.ComputeHexstamp()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if e.Hexstamp != want {
		return fmt.Errorf("%w: entry %s recorded %s, computed %s",
			ErrHexstampMismatch, e.EntryID, e.Hexstamp, want)
	}
	if e.PrevHexstamp != l.head {
		return fmt.Errorf("%w: entry %s links %s, head is %s",
			ErrChainBroken, e.EntryID, e.PrevHexstamp, l.head)
	}
	return nil
}

// Head returns the hexstamp the next entry must link to: the newest entry's,
// or genesis while the chain is empty.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the chain, oldest first.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Verify walks the whole chain from genesis, recomputing every hexstamp and
// checking every linkage. A nil return means the serialized history and the
// recorded hashes agree exactly.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := l.genesis
	for i, e := range l.entries {
		if e.PrevHexstamp != prev {
			return fmt.Errorf("%w: entry %d links %s, expected %s",
				ErrChainBroken, i, e.PrevHexstamp, prev)
		}
		want, err := e.ComputeHexstamp()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrSerialization, i, err)
		}
		if e.Hexstamp != want {
			return fmt.Errorf("%w: entry %d recorded %s, computed %s",
				ErrHexstampMismatch, i, e.Hexstamp, want)
		}
		prev = e.Hexstamp
	}
	return nil
}
