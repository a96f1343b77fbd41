package guardian

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryPolicy bounds the ledger append retry loop. Delays grow
// exponentially from Base up to Max, plus deterministic jitter: the delay
// for a given attempt is a pure function of the sealed entry's identity, so
// a replayed run produces the identical schedule.
type RetryPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxJitter   time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy suits a local or same-rack sink. Deployments with
// remote storage should raise Max and MaxAttempts through configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        50 * time.Millisecond,
		Max:         2 * time.Second,
		MaxJitter:   25 * time.Millisecond,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before retry attempt (1-based; attempt 0 is the
// initial try and never waits).
func (p RetryPolicy) Delay(entryID string, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := p.Base << shift
	if d > p.Max || d < 0 {
		d = p.Max
	}
	return d + p.jitter(entryID, attempt)
}

// jitter derives the spread from a PRF over the entry identity and attempt
// index rather than a random source, keeping retry schedules reproducible.
func (p RetryPolicy) jitter(entryID string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", entryID, attempt)))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(p.MaxJitter)) //nolint:gosec // MaxJitter is positive here
}
