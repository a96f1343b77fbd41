package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSubjectMismatch reports a rollback whose offending and last-safe
	// entries belong to different subjects. That is a caller bug, not a
	// recoverable condition.
	ErrSubjectMismatch = errors.New("ledger: rollback subject mismatch")

	// ErrRiskNotTightening reports a rollback that would raise RoH. A
	// compensation may only reduce or hold risk, never increase it, even
	// retroactively.
	ErrRiskNotTightening = errors.New("ledger: rollback would not tighten risk")

	// ErrNothingToRollBack reports a chain too short to compensate: a
	// rollback needs both an offending entry and the safe entry before it.
	ErrNothingToRollBack = errors.New("ledger: nothing to roll back")
)

// SynthesizeRollback builds the compensating entry for offending, restoring
// RoH toward lastSafe. The result is sealed behind offending, so appending
// it succeeds only while offending is still the chain head.
//
// Both error paths are explicit and user-facing; a rollback must never be a
// no-op that looks successful.
func SynthesizeRollback(offending, lastSafe Entry, entryID string, now time.Time) (Entry, error) {
	if offending.SubjectID != lastSafe.SubjectID {
		return Entry{}, fmt.Errorf("%w: offending %s, last safe %s",
			ErrSubjectMismatch, offending.SubjectID, lastSafe.SubjectID)
	}
	if lastSafe.RoHAfter > offending.RoHAfter {
		return Entry{}, fmt.Errorf("%w: last safe roh_after %.4f exceeds offending %.4f",
			ErrRiskNotTightening, lastSafe.RoHAfter, offending.RoHAfter)
	}

	refs := make([]string, len(offending.PolicyRefs))
	copy(refs, offending.PolicyRefs)

	draft := Entry{
		EntryID:      entryID,
		SubjectID:    offending.SubjectID,
		ProposalID:   "rollback-" + offending.ProposalID,
		ChangeType:   "rollback-" + offending.ChangeType,
		ModeTag:      ModeObserve,
		RoHBefore:    offending.RoHAfter,
		RoHAfter:     lastSafe.RoHAfter,
		PolicyRefs:   refs,
		TimestampUTC: Timestamp(now),
	}
	return draft.Sealed(offending.Hexstamp)
}

// RollbackHead compensates the newest entry: it synthesizes the rollback of
// the head against the entry before it and appends the result in one
// serialized step.
func (l *Ledger) RollbackHead(ctx context.Context, entryID string, now time.Time) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) < 2 {
		return Entry{}, fmt.Errorf("%w: chain has %d entries", ErrNothingToRollBack, len(l.entries))
	}
	offending := l.entries[len(l.entries)-1]
	lastSafe := l.entries[len(l.entries)-2]

	rollback, err := SynthesizeRollback(offending, lastSafe, entryID, now)
	if err != nil {
		return Entry{}, err
	}

	if err := l.verifyNext(rollback); err != nil {
		return Entry{}, err
	}
	if l.sink != nil {
		line, err := jsonLine(rollback)
		if err != nil {
			return Entry{}, err
		}
		if err := l.sink.AppendLine(ctx, line); err != nil {
			return Entry{}, fmt.Errorf("ledger rollback append: %w", err)
		}
	}
	l.entries = append(l.entries, rollback)
	l.head = rollback.Hexstamp
	return rollback, nil
}
