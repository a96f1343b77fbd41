package guardian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/audit"
	"github.com/Mindburn-Labs/pawl/pkg/capability"
	"github.com/Mindburn-Labs/pawl/pkg/envelope"
	"github.com/Mindburn-Labs/pawl/pkg/kernel"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/policy"
	"github.com/Mindburn-Labs/pawl/pkg/property"
	"github.com/Mindburn-Labs/pawl/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guardianNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// noWait keeps retry loops instant in tests.
var noWait = RetryPolicy{MaxAttempts: 5}

func satisfiedStack() policy.Stack {
	s := policy.Default()
	s.JurisLocal = []policy.Tag{"us-ca"}
	return s
}

// reversalContext is the fully-satisfied ControlledHuman to LabBench
// downgrade, RoH falling 0.28 to 0.10.
func reversalContext() kernel.EvalContext {
	return kernel.EvalContext{
		Request: capability.TransitionRequest{
			From:             capability.ControlledHuman,
			To:               capability.LabBench,
			RequiredEvidence: []capability.EvidenceRef{"cid:bafy-reversal-workup"},
			RequiredConsent:  capability.ConsentExtended,
			RequiredRoles:    []capability.Role{capability.RoleRegulator},
			Stack:            satisfiedStack(),
		},
		Roles: capability.RoleSet{
			Roles: []capability.Role{
				capability.RoleHost,
				capability.RoleOrganicCPUOwner,
				capability.RoleSovereignKernel,
				capability.RoleRegulator,
				capability.RoleRegulator,
			},
			RequiredRegulatorQuorum: 2,
		},
		Flags: kernel.ReversalPolicyFlags{
			AllowNeuromorphReversal: true,
			ExplicitReversalOrder:   true,
			NoSaferAlternative:      true,
		},
		Envelope: envelope.ContextView{
			RequiresDowngrade:          true,
			RequestCapabilityDowngrade: true,
			BalanceMaintained:          true,
		},
		RoHBefore:    0.28,
		RoHAfter:     0.10,
		RiskReducing: true,
	}
}

func reversalProposal(proposalID string) Proposal {
	return Proposal{
		SubjectID:  "subject-7",
		ProposalID: proposalID,
		Context:    reversalContext(),
	}
}

func testGuardian(t *testing.T, opts ...Option) (*Guardian, *ledger.Ledger, *audit.Log) {
	t.Helper()
	inv, err := risk.NewInvariant(risk.DefaultCeiling)
	require.NoError(t, err)

	led := ledger.New(ledger.DefaultGenesis)
	log := audit.NewLog()
	base := []Option{
		WithAuditLogger(log),
		WithRetryPolicy(noWait),
		WithClock(func() time.Time { return guardianNow }),
	}
	g := New(kernel.New(inv), led, append(base, opts...)...)
	return g, led, log
}

func TestProcess_AllowedDowngradeAppends(t *testing.T) {
	g, led, log := testGuardian(t)

	out, err := g.Process(context.Background(), reversalProposal("proposal-1"))
	require.NoError(t, err)

	require.True(t, out.Decision.Allowed)
	require.NotNil(t, out.Entry)
	assert.False(t, out.Cached)

	assert.Equal(t, "subject-7", out.Entry.SubjectID)
	assert.Equal(t, "proposal-1", out.Entry.ProposalID)
	assert.Equal(t, ledger.ChangeCapabilityDowngrade, out.Entry.ChangeType)
	assert.Equal(t, ledger.ModeEnforce, out.Entry.ModeTag)
	assert.Equal(t, ledger.DefaultGenesis, out.Entry.PrevHexstamp)
	assert.Equal(t, 0.28, out.Entry.RoHBefore)
	assert.Equal(t, 0.10, out.Entry.RoHAfter)
	assert.NotEmpty(t, out.Entry.PolicyRefs)
	assert.Equal(t, ledger.Timestamp(guardianNow), out.Entry.TimestampUTC)

	assert.Equal(t, 1, led.Len())
	require.NoError(t, led.Verify())

	events := log.EventsFor("subject-7")
	require.Len(t, events, 2)
	assert.Equal(t, "entry_appended", events[0].Action)
	assert.Equal(t, "transition_evaluated", events[1].Action)
	assert.Equal(t, true, events[1].Metadata["allowed"])
}

func TestProcess_DeniedLeavesChainUntouched(t *testing.T) {
	g, led, log := testGuardian(t)

	p := reversalProposal("proposal-2")
	p.Context.Flags.AllowNeuromorphReversal = false

	out, err := g.Process(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, out.Decision.Allowed)
	assert.Equal(t, kernel.ReasonDeniedReversalNotAllowedInTier, out.Decision.Reason)
	assert.Nil(t, out.Entry)
	assert.Equal(t, 0, led.Len())

	events := log.EventsFor("subject-7")
	require.Len(t, events, 1)
	assert.Equal(t, "transition_evaluated", events[0].Action)
	assert.Equal(t, false, events[0].Metadata["allowed"])
}

func TestProcess_UnboundProposal(t *testing.T) {
	g, _, _ := testGuardian(t)

	p := reversalProposal("proposal-3")
	p.SubjectID = ""

	_, err := g.Process(context.Background(), p)
	require.ErrorIs(t, err, ErrUnboundProposal)
}

func TestProcess_ReplayFromCache(t *testing.T) {
	g, led, _ := testGuardian(t, WithCache(kernel.NewMemoryDecisionCache()))

	first, err := g.Process(context.Background(), reversalProposal("proposal-4"))
	require.NoError(t, err)
	require.NotNil(t, first.Entry)
	require.Equal(t, 1, led.Len())

	replay, err := g.Process(context.Background(), reversalProposal("proposal-4"))
	require.NoError(t, err)
	assert.True(t, replay.Cached)
	assert.Nil(t, replay.Entry)
	assert.Equal(t, first.Decision, replay.Decision)
	assert.Equal(t, 1, led.Len(), "replay must not append a second entry")

	fresh, err := g.Process(context.Background(), reversalProposal("proposal-5"))
	require.NoError(t, err)
	assert.False(t, fresh.Cached, "distinct proposal ids cache separately")
	assert.Equal(t, 2, led.Len())
}

var errSinkDown = errors.New("sink down")

// flakySink fails the first n appends and records every line it was handed.
type flakySink struct {
	mu    sync.Mutex
	fails int
	lines [][]byte
}

func (s *flakySink) AppendLine(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, append([]byte(nil), line...))
	if s.fails > 0 {
		s.fails--
		return errSinkDown
	}
	return nil
}

func TestProcess_RetryReusesSealedEntry(t *testing.T) {
	sink := &flakySink{fails: 2}
	inv, err := risk.NewInvariant(risk.DefaultCeiling)
	require.NoError(t, err)

	led := ledger.New(ledger.DefaultGenesis, ledger.WithSink(sink))
	g := New(kernel.New(inv), led,
		WithRetryPolicy(noWait),
		WithClock(func() time.Time { return guardianNow }),
	)

	out, err := g.Process(context.Background(), reversalProposal("proposal-6"))
	require.NoError(t, err)
	require.NotNil(t, out.Entry)
	assert.Equal(t, 1, led.Len())

	require.Len(t, sink.lines, 3, "two failures then one success")
	assert.Equal(t, sink.lines[0], sink.lines[1], "retries must reuse the sealed entry")
	assert.Equal(t, sink.lines[1], sink.lines[2], "retries must reuse the sealed entry")
}

func TestProcess_AppendExhausted(t *testing.T) {
	sink := &flakySink{fails: 1 << 10}
	inv, err := risk.NewInvariant(risk.DefaultCeiling)
	require.NoError(t, err)

	led := ledger.New(ledger.DefaultGenesis, ledger.WithSink(sink))
	g := New(kernel.New(inv), led,
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
		WithClock(func() time.Time { return guardianNow }),
	)

	out, err := g.Process(context.Background(), reversalProposal("proposal-7"))
	require.ErrorIs(t, err, errSinkDown)
	assert.Contains(t, err.Error(), "exhausted")
	assert.True(t, out.Decision.Allowed, "the decision itself stands")
	assert.Nil(t, out.Entry)
	assert.Equal(t, 0, led.Len(), "no partial state after an abandoned append")
	require.Len(t, sink.lines, 3)
}

func TestProcess_PropertyPreCheck(t *testing.T) {
	eval, err := property.NewEvaluator()
	require.NoError(t, err)

	g, led, _ := testGuardian(t, WithProperties(eval))

	p := reversalProposal("proposal-8")
	p.Context.Request.LTLProperty = "roh_after < roh_before"
	out, err := g.Process(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, out.Decision.Allowed, "holding property falls through to the kernel")

	p = reversalProposal("proposal-9")
	p.Context.Request.LTLProperty = "!downgrade"
	out, err = g.Process(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, out.Decision.Allowed)
	assert.Equal(t, kernel.ReasonDeniedPolicyStackFailure, out.Decision.Reason)
	assert.Contains(t, out.Decision.Detail, "evaluated false")
	assert.Equal(t, 1, led.Len(), "only the first proposal appended")

	p = reversalProposal("proposal-10")
	p.Context.Request.LTLProperty = "now() > timestamp('2020-01-01T00:00:00Z')"
	_, err = g.Process(context.Background(), p)
	require.Error(t, err, "malformed or forbidden properties fail closed")
}

func TestProcess_PropertyWithoutEvaluator(t *testing.T) {
	g, _, _ := testGuardian(t)

	p := reversalProposal("proposal-11")
	p.Context.Request.LTLProperty = "downgrade"

	_, err := g.Process(context.Background(), p)
	require.ErrorIs(t, err, ErrPropertyUnchecked)
}

func TestProcess_DiagnosticContextObserves(t *testing.T) {
	g, led, _ := testGuardian(t)

	p := reversalProposal("proposal-12")
	p.Context.Request.From = capability.ControlledHuman
	p.Context.Request.To = capability.ControlledHuman
	p.Context.IsDiagEvent = true

	out, err := g.Process(context.Background(), p)
	require.NoError(t, err)
	require.True(t, out.Decision.Allowed)
	require.NotNil(t, out.Entry)

	assert.Equal(t, ledger.ChangeDiagnostic, out.Entry.ChangeType)
	assert.Equal(t, ledger.ModeObserve, out.Entry.ModeTag)
	assert.Equal(t, 1, led.Len())
}

type failingLogger struct{}

func (failingLogger) Record(context.Context, audit.EventType, string, string, map[string]any) error {
	return errors.New("trail unavailable")
}

func TestProcess_DecisionAuditFailureSurfaces(t *testing.T) {
	g, led, _ := testGuardian(t, WithAuditLogger(failingLogger{}))

	out, err := g.Process(context.Background(), reversalProposal("proposal-13"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit record")
	require.NotNil(t, out.Entry, "the appended entry is reported alongside the trail gap")
	assert.Equal(t, 1, led.Len())
}

func TestRollback_CompensatesHead(t *testing.T) {
	g, led, log := testGuardian(t)

	first, err := g.Process(context.Background(), reversalProposal("proposal-14"))
	require.NoError(t, err)
	second, err := g.Process(context.Background(), reversalProposal("proposal-15"))
	require.NoError(t, err)

	rb, err := g.Rollback(context.Background(), second.Entry.EntryID)
	require.NoError(t, err)

	assert.Equal(t, "rollback-proposal-15", rb.ProposalID)
	assert.Equal(t, "rollback-"+ledger.ChangeCapabilityDowngrade, rb.ChangeType)
	assert.Equal(t, ledger.ModeObserve, rb.ModeTag)
	assert.Equal(t, second.Entry.Hexstamp, rb.PrevHexstamp)
	assert.Equal(t, first.Entry.RoHAfter, rb.RoHAfter)

	assert.Equal(t, 3, led.Len())
	require.NoError(t, led.Verify())

	events := log.EventsFor("subject-7")
	assert.Equal(t, audit.EventRollback, events[len(events)-1].Type)
}

func TestRollback_RejectsStaleTarget(t *testing.T) {
	g, _, _ := testGuardian(t)

	first, err := g.Process(context.Background(), reversalProposal("proposal-16"))
	require.NoError(t, err)
	_, err = g.Process(context.Background(), reversalProposal("proposal-17"))
	require.NoError(t, err)

	_, err = g.Rollback(context.Background(), first.Entry.EntryID)
	require.ErrorIs(t, err, ErrRollbackNotHead)
}

func TestRollback_NeedsASafeEntry(t *testing.T) {
	g, _, _ := testGuardian(t)

	only, err := g.Process(context.Background(), reversalProposal("proposal-18"))
	require.NoError(t, err)

	_, err = g.Rollback(context.Background(), only.Entry.EntryID)
	require.ErrorIs(t, err, ledger.ErrNothingToRollBack)
}
