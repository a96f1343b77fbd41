package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func draftEntry(id, proposal string, rohBefore, rohAfter float64) Entry {
	return Entry{
		EntryID:      id,
		SubjectID:    "subject-7",
		ProposalID:   proposal,
		ChangeType:   ChangeCapabilityDowngrade,
		ModeTag:      ModeEnforce,
		RoHBefore:    rohBefore,
		RoHAfter:     rohAfter,
		PolicyRefs:   []string{"base_medical:fda-sam-d", "juris_local:us-ca"},
		TimestampUTC: Timestamp(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func mustAppend(t *testing.T, l *Ledger, draft Entry) Entry {
	t.Helper()
	sealed, err := draft.Sealed(l.Head())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := l.Append(context.Background(), sealed); err != nil {
		t.Fatalf("append: %v", err)
	}
	return sealed
}

func TestAppend_ChainRoundTrip(t *testing.T) {
	for n := 0; n <= 4; n++ {
		l := New(DefaultGenesis)
		for i := 0; i < n; i++ {
			mustAppend(t, l, draftEntry(fmt.Sprintf("e-%d", i), fmt.Sprintf("prop-%d", i), 0.20, 0.10))
		}

		if err := l.Verify(); err != nil {
			t.Fatalf("n=%d: verify: %v", n, err)
		}

		prev := DefaultGenesis
		for i, e := range l.Entries() {
			if e.PrevHexstamp != prev {
				t.Fatalf("n=%d entry %d: linked %s, want %s", n, i, e.PrevHexstamp, prev)
			}
			recomputed, err := e.ComputeHexstamp()
			if err != nil {
				t.Fatalf("recompute: %v", err)
			}
			if recomputed != e.Hexstamp {
				t.Fatalf("n=%d entry %d: recomputed %s, stored %s", n, i, recomputed, e.Hexstamp)
			}
			prev = e.Hexstamp
		}
	}
}

func TestAppend_RejectsBrokenLinkage(t *testing.T) {
	l := New(DefaultGenesis)
	mustAppend(t, l, draftEntry("e-0", "prop-0", 0.20, 0.10))

	stale, err := draftEntry("e-1", "prop-1", 0.10, 0.08).Sealed(DefaultGenesis)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	err = l.Append(context.Background(), stale)
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("want ErrChainBroken, got %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("rejected append must not grow the chain, len=%d", l.Len())
	}
}

func TestAppend_RejectsTamperedEntry(t *testing.T) {
	l := New(DefaultGenesis)

	sealed, err := draftEntry("e-0", "prop-0", 0.20, 0.10).Sealed(l.Head())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed.RoHAfter = 0.01

	err = l.Append(context.Background(), sealed)
	if !errors.Is(err, ErrHexstampMismatch) {
		t.Fatalf("want ErrHexstampMismatch, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("tampered append must not grow the chain, len=%d", l.Len())
	}
}

// flakySink fails a fixed number of writes before accepting.
type flakySink struct {
	failures int
	lines    [][]byte
}

func (s *flakySink) AppendLine(_ context.Context, line []byte) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk unavailable")
	}
	cp := make([]byte, len(line))
	copy(cp, line)
	s.lines = append(s.lines, cp)
	return nil
}

func (s *flakySink) ReadAll(_ context.Context) ([][]byte, error) {
	return s.lines, nil
}

func TestAppend_SinkFailureLeavesChainUntouched(t *testing.T) {
	sink := &flakySink{failures: 1}
	l := New(DefaultGenesis, WithSink(sink))

	sealed, err := draftEntry("e-0", "prop-0", 0.20, 0.10).Sealed(l.Head())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if err := l.Append(context.Background(), sealed); err == nil {
		t.Fatal("first append should surface the sink failure")
	}
	if l.Len() != 0 || l.Head() != DefaultGenesis {
		t.Fatalf("failed append must leave the chain untouched: len=%d head=%s", l.Len(), l.Head())
	}

	// Retry with the same sealed entry; no re-sealing, no re-deciding.
	if err := l.Append(context.Background(), sealed); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if l.Len() != 1 || l.Head() != sealed.Hexstamp {
		t.Fatalf("retry should append exactly the original entry: len=%d", l.Len())
	}
}

func TestOpen_ReplaysPersistedChain(t *testing.T) {
	sink := &flakySink{}
	l := New(DefaultGenesis, WithSink(sink))
	for i := 0; i < 3; i++ {
		mustAppend(t, l, draftEntry(fmt.Sprintf("e-%d", i), fmt.Sprintf("prop-%d", i), 0.20, 0.10))
	}

	replayed, err := Open(context.Background(), DefaultGenesis, sink)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if replayed.Len() != 3 || replayed.Head() != l.Head() {
		t.Fatalf("replay diverged: len=%d head=%s want %s", replayed.Len(), replayed.Head(), l.Head())
	}
	if err := replayed.Verify(); err != nil {
		t.Fatalf("verify after replay: %v", err)
	}
}

func TestOpen_RejectsCorruptedHistory(t *testing.T) {
	sink := &flakySink{}
	l := New(DefaultGenesis, WithSink(sink))
	mustAppend(t, l, draftEntry("e-0", "prop-0", 0.20, 0.10))
	mustAppend(t, l, draftEntry("e-1", "prop-1", 0.10, 0.08))

	// Flip one byte of the persisted first record.
	sink.lines[0][len(sink.lines[0])/2] ^= 0x01

	if _, err := Open(context.Background(), DefaultGenesis, sink); err == nil {
		t.Fatal("corrupted history must not replay cleanly")
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	l := New(DefaultGenesis)
	mustAppend(t, l, draftEntry("e-0", "prop-0", 0.20, 0.10))

	got := l.Entries()
	got[0].RoHAfter = 0.99

	if l.Entries()[0].RoHAfter != 0.10 {
		t.Fatal("Entries must return a copy, not a window into the chain")
	}
}
