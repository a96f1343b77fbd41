// Package guardian orchestrates one capability transition end to end:
// decision cache, advisory property check, kernel evaluation, ledger append
// with bounded retries, and the audit trail. The kernel's guards stay pure;
// every side effect of a transition lives here.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/audit"
	"github.com/Mindburn-Labs/pawl/pkg/canonical"
	"github.com/Mindburn-Labs/pawl/pkg/kernel"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/property"
	"github.com/google/uuid"
)

var (
	// ErrNotConfigured reports a guardian missing its kernel or ledger.
	ErrNotConfigured = errors.New("guardian: kernel and ledger are required")

	// ErrUnboundProposal reports a proposal with no subject or proposal id.
	// Every decision must be attributable; an unbound proposal cannot be.
	ErrUnboundProposal = errors.New("guardian: proposal must bind subject and proposal ids")

	// ErrPropertyUnchecked reports a transition that names a property while
	// no evaluator is configured. Skipping a requested check silently would
	// be an open-fail; the proposal is rejected instead.
	ErrPropertyUnchecked = errors.New("guardian: transition names a property but no evaluator is configured")

	// ErrRollbackNotHead reports a rollback aimed at an entry that is no
	// longer the chain head. Only the newest entry can be compensated
	// directly; older mistakes need their successors compensated first.
	ErrRollbackNotHead = errors.New("guardian: only the chain head can be compensated")
)

// DefaultCacheTTL bounds how long a completed decision answers idempotent
// retries of the same proposal.
const DefaultCacheTTL = 10 * time.Minute

// Proposal binds one evaluation context to the subject and proposal it
// concerns. The ids flow into the ledger entry and the audit trail.
type Proposal struct {
	SubjectID  string             `json:"subject_id"`
	ProposalID string             `json:"proposal_id"`
	Context    kernel.EvalContext `json:"context"`
}

// Fingerprint is the canonical hash of the whole proposal, used as the
// idempotency key. Two proposals differing only in ids cache separately.
func (p Proposal) Fingerprint() (string, error) {
	return canonical.Hash(p)
}

// Outcome is what one Process call produced. Entry is non-nil only when
// this call appended a ledger entry; replays served from the cache carry
// the decision alone.
type Outcome struct {
	Decision kernel.Decision
	Entry    *ledger.Entry
	Cached   bool
}

// Guardian wires the decision path to its side effects. Safe for concurrent
// use; appends are serialized so concurrent allowed proposals land as a
// strict sequence instead of racing for the same chain head.
type Guardian struct {
	kern  *kernel.Kernel
	led   *ledger.Ledger
	cache kernel.DecisionCache
	props *property.Evaluator
	log   audit.Logger

	retry    RetryPolicy
	cacheTTL time.Duration
	clock    func() time.Time

	mu sync.Mutex
}

// Option configures a Guardian.
type Option func(*Guardian)

// WithCache attaches a decision cache for idempotent replays.
func WithCache(c kernel.DecisionCache) Option {
	return func(g *Guardian) { g.cache = c }
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Guardian) { g.cacheTTL = ttl }
}

// WithProperties attaches the evaluator for transition properties.
func WithProperties(e *property.Evaluator) Option {
	return func(g *Guardian) { g.props = e }
}

// WithAuditLogger attaches the audit trail.
func WithAuditLogger(l audit.Logger) Option {
	return func(g *Guardian) { g.log = l }
}

// WithRetryPolicy overrides DefaultRetryPolicy for ledger appends.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Guardian) { g.retry = p }
}

// WithClock overrides the wall clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guardian) { g.clock = now }
}

// New builds a guardian around a kernel and a ledger.
func New(k *kernel.Kernel, led *ledger.Ledger, opts ...Option) *Guardian {
	g := &Guardian{
		kern:     k,
		led:      led,
		retry:    DefaultRetryPolicy(),
		cacheTTL: DefaultCacheTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process runs one proposal through the full decision path:
//
//  1. replay from the decision cache when the identical proposal already
//     completed;
//  2. advisory property check, failing closed on malformed properties;
//  3. kernel evaluation;
//  4. on Allowed, seal a ledger entry against the current head and append
//     it, retrying I/O-class failures with the same sealed entry;
//  5. record the decision in the audit trail, then the cache.
//
// Retries never re-run the kernel: the decision and the sealed entry are
// fixed once made. A decision whose audit record cannot be written is
// returned together with the audit error; the caller sees both what was
// decided and that the trail has a gap.
func (g *Guardian) Process(ctx context.Context, p Proposal) (Outcome, error) {
	if g.kern == nil || g.led == nil {
		return Outcome{}, ErrNotConfigured
	}
	if p.SubjectID == "" || p.ProposalID == "" {
		return Outcome{}, ErrUnboundProposal
	}

	fp, err := p.Fingerprint()
	if err != nil {
		return Outcome{}, fmt.Errorf("guardian: fingerprint: %w", err)
	}

	if g.cache != nil {
		if d, ok, err := g.cache.Get(ctx, fp); err == nil && ok {
			g.observe(ctx, audit.EventDecision, "decision_replayed", p.ProposalID, map[string]any{
				"subject_id":  p.SubjectID,
				"fingerprint": fp,
				"allowed":     d.Allowed,
				"reason":      string(d.Reason),
			})
			return Outcome{Decision: d, Cached: true}, nil
		}
	}

	d, err := g.decide(p)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Decision: d}
	if d.Allowed {
		sealed, err := g.append(ctx, p)
		if err != nil {
			return out, err
		}
		out.Entry = &sealed
		g.observe(ctx, audit.EventLedger, "entry_appended", sealed.EntryID, map[string]any{
			"subject_id":  p.SubjectID,
			"proposal_id": p.ProposalID,
			"change_type": sealed.ChangeType,
			"hexstamp":    sealed.Hexstamp,
		})
	}

	// The decision event is the only durable trace of a denial, so unlike
	// the observational events its write failure surfaces to the caller.
	if g.log != nil {
		err := g.log.Record(ctx, audit.EventDecision, "transition_evaluated", p.ProposalID, map[string]any{
			"subject_id":  p.SubjectID,
			"fingerprint": fp,
			"allowed":     d.Allowed,
			"reason":      string(d.Reason),
			"detail":      d.Detail,
		})
		if err != nil {
			return out, fmt.Errorf("guardian: audit record for %s: %w", p.ProposalID, err)
		}
	}

	g.cachePut(ctx, p, fp, d)
	return out, nil
}

// decide runs the advisory property check and then the kernel. A property
// that evaluates false denies with the policy stack reason; a property that
// cannot be evaluated at all is an error, never a silent pass.
func (g *Guardian) decide(p Proposal) (kernel.Decision, error) {
	if expr := p.Context.Request.LTLProperty; expr != "" {
		if g.props == nil {
			return kernel.Decision{}, ErrPropertyUnchecked
		}
		ok, err := g.props.Evaluate(expr, property.Facts{
			From:      p.Context.Request.From,
			To:        p.Context.Request.To,
			Consent:   p.Context.Request.RequiredConsent,
			RoHBefore: p.Context.RoHBefore,
			RoHAfter:  p.Context.RoHAfter,
		})
		if err != nil {
			return kernel.Decision{}, fmt.Errorf("guardian: property pre-check: %w", err)
		}
		if !ok {
			return kernel.Deny(kernel.ReasonDeniedPolicyStackFailure,
				fmt.Sprintf("transition property %q evaluated false", expr)), nil
		}
	}
	return g.kern.Decide(p.Context), nil
}

// append seals one entry against the current head and retries I/O-class
// failures with that same sealed entry.
func (g *Guardian) append(ctx context.Context, p Proposal) (ledger.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	change, mode := classify(p.Context)
	draft := ledger.Entry{
		EntryID:      uuid.NewString(),
		SubjectID:    p.SubjectID,
		ProposalID:   p.ProposalID,
		ChangeType:   change,
		ModeTag:      mode,
		RoHBefore:    p.Context.RoHBefore,
		RoHAfter:     p.Context.RoHAfter,
		PolicyRefs:   p.Context.Request.Stack.Refs(),
		TimestampUTC: ledger.Timestamp(g.clock()),
	}
	sealed, err := draft.Sealed(g.led.Head())
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("guardian: seal: %w", err)
	}

	var appendErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, g.retry.Delay(sealed.EntryID, attempt)); err != nil {
				return ledger.Entry{}, fmt.Errorf("guardian: append abandoned: %w", err)
			}
		}
		appendErr = g.led.Append(ctx, sealed)
		if appendErr == nil {
			return sealed, nil
		}
		if !retryable(appendErr) {
			return ledger.Entry{}, fmt.Errorf("guardian: ledger append: %w", appendErr)
		}
	}
	return ledger.Entry{}, fmt.Errorf("guardian: ledger append exhausted %d attempts: %w",
		g.retry.MaxAttempts, appendErr)
}

// Rollback compensates the offending entry, which must still be the chain
// head. The compensation is itself an append; nothing is rewritten.
func (g *Guardian) Rollback(ctx context.Context, offendingEntryID string) (ledger.Entry, error) {
	if g.led == nil {
		return ledger.Entry{}, ErrNotConfigured
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.led.Entries()
	if len(entries) == 0 || entries[len(entries)-1].EntryID != offendingEntryID {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ErrRollbackNotHead, offendingEntryID)
	}

	rb, err := g.led.RollbackHead(ctx, uuid.NewString(), g.clock())
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("guardian: rollback: %w", err)
	}

	g.observe(ctx, audit.EventRollback, "head_compensated", rb.EntryID, map[string]any{
		"subject_id":         rb.SubjectID,
		"offending_entry_id": offendingEntryID,
		"roh_after":          rb.RoHAfter,
	})
	return rb, nil
}

// classify maps an evaluation context onto the entry vocabulary. Diagnostic
// contexts are observations; everything else is an enforced transition.
func classify(ec kernel.EvalContext) (change, mode string) {
	switch {
	case ec.IsDiagEvent:
		return ledger.ChangeDiagnostic, ledger.ModeObserve
	case ec.Request.IsDowngrade():
		return ledger.ChangeCapabilityDowngrade, ledger.ModeEnforce
	case ec.Request.To.Tier() > ec.Request.From.Tier():
		return ledger.ChangeCapabilityUpgrade, ledger.ModeEnforce
	default:
		return ledger.ChangeCapabilityReaffirm, ledger.ModeEnforce
	}
}

// retryable reports whether a failed append is worth repeating with the
// same sealed entry. Chain and serialization failures are logic defects or
// corruption; repeating those cannot succeed.
func retryable(err error) bool {
	return !errors.Is(err, ledger.ErrChainBroken) &&
		!errors.Is(err, ledger.ErrHexstampMismatch) &&
		!errors.Is(err, ledger.ErrSerialization)
}

// observe writes one observational audit event. These never unwind work
// that already happened; the ledger holds the authoritative record.
func (g *Guardian) observe(ctx context.Context, et audit.EventType, action, resource string, md map[string]any) {
	if g.log == nil {
		return
	}
	_ = g.log.Record(ctx, et, action, resource, md)
}

// cachePut stores a completed decision. Cache failures are recorded, not
// returned: the decision stands whether or not the cache heard about it.
func (g *Guardian) cachePut(ctx context.Context, p Proposal, fp string, d kernel.Decision) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(ctx, fp, d, g.cacheTTL); err != nil {
		g.observe(ctx, audit.EventSystem, "decision_cache_put_failed", p.ProposalID, map[string]any{
			"subject_id": p.SubjectID,
			"error":      err.Error(),
		})
	}
}

// sleep waits for d or for ctx, whichever ends first. An abandoned wait
// means the entry was never appended; there is no partial state to clean.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
