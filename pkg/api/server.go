// Package api exposes the governance core over HTTP: transition
// evaluation, ledger reads, chain verification, and head compensation.
//
// A denied transition is not an HTTP error. The evaluation succeeded and
// the denial, with its stable reason code, is the result; it returns 200.
// RFC 7807 problem responses are reserved for requests the server could
// not evaluate at all.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/Mindburn-Labs/pawl/pkg/guardian"
	"github.com/Mindburn-Labs/pawl/pkg/kernel"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/observability"
	"github.com/Mindburn-Labs/pawl/pkg/order"
	"github.com/Mindburn-Labs/pawl/pkg/property"
	"github.com/Mindburn-Labs/pawl/pkg/store"
)

// RateLimiter gates requests before they reach a handler. Both the
// in-process and the Redis-backed limiters satisfy it.
type RateLimiter interface {
	Middleware(next http.Handler) http.Handler
}

// Governance is the deployment floor applied to every proposal before
// evaluation. A request can tighten the posture, never loosen it: the
// reversal flag only ever goes off, the quorum only ever goes up.
type Governance struct {
	MinRegulatorQuorum      int
	AllowNeuromorphReversal bool
}

func (g Governance) apply(p *guardian.Proposal) {
	if !g.AllowNeuromorphReversal {
		p.Context.Flags.AllowNeuromorphReversal = false
	}
	floor := g.MinRegulatorQuorum
	if floor > math.MaxUint8 {
		floor = math.MaxUint8
	}
	if int(p.Context.Roles.RequiredRegulatorQuorum) < floor {
		p.Context.Roles.RequiredRegulatorQuorum = uint8(floor)
	}
}

// Server routes governance requests to the guardian and the ledger.
type Server struct {
	guard   *guardian.Guardian
	led     *ledger.Ledger
	obs     *observability.Provider
	logger  *slog.Logger
	limiter RateLimiter
	idem    IdempotencyStorer
	gov     *Governance
	orders  *order.Manager
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithObservability attaches the OTel provider for decision metrics and
// evaluation spans.
func WithObservability(p *observability.Provider) ServerOption {
	return func(s *Server) { s.obs = p }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRateLimiter installs per-client request limiting.
func WithRateLimiter(rl RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithIdempotency installs Idempotency-Key replay for mutating requests.
func WithIdempotency(store IdempotencyStorer) ServerOption {
	return func(s *Server) { s.idem = store }
}

// WithGovernance installs the deployment floor for incoming proposals.
func WithGovernance(g Governance) ServerOption {
	return func(s *Server) { s.gov = &g }
}

// WithOrderVerifier requires explicit-reversal-order claims to be backed by
// a verifiable signed order. Without a verifier the claim is taken at the
// caller's word, which is only acceptable on single-operator deployments.
func WithOrderVerifier(m *order.Manager) ServerOption {
	return func(s *Server) { s.orders = m }
}

// NewServer wires the HTTP surface to a guardian and its ledger.
func NewServer(guard *guardian.Guardian, led *ledger.Ledger, opts ...ServerOption) *Server {
	s := &Server{
		guard:  guard,
		led:    led,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied. Request IDs
// are assigned outermost so every response carries one; rate limiting runs
// before idempotency so floods never consult the replay cache.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transitions/evaluate", s.handleEvaluate)
	mux.HandleFunc("/v1/ledger/entries", s.handleEntries)
	mux.HandleFunc("/v1/ledger/verify", s.handleVerify)
	mux.HandleFunc("/v1/rollback", s.handleRollback)
	mux.HandleFunc("/healthz", s.handleHealth)

	var h http.Handler = mux
	if s.idem != nil {
		h = IdempotencyMiddleware(s.idem)(h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return RequestID(h)
}

type evaluateRequest struct {
	guardian.Proposal
	// ReversalOrder carries the signed order token entitling this proposal
	// to claim ExplicitReversalOrder.
	ReversalOrder string `json:"reversal_order,omitempty"`
}

type evaluateResponse struct {
	Decision kernel.Decision `json:"decision"`
	Entry    *ledger.Entry   `json:"entry,omitempty"`
	Cached   bool            `json:"cached"`
}

type entriesResponse struct {
	Entries []ledger.Entry `json:"entries"`
	Head    string         `json:"head"`
}

type verifyResponse struct {
	OK      bool   `json:"ok"`
	Entries int    `json:"entries"`
	Head    string `json:"head"`
}

type rollbackRequest struct {
	EntryID string `json:"entry_id"`
}

type rollbackResponse struct {
	Entry ledger.Entry `json:"entry"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	p := req.Proposal
	if p.SubjectID == "" || p.ProposalID == "" {
		WriteBadRequest(w, "Missing required fields: subject_id, proposal_id")
		return
	}
	// The floor applies before fingerprinting so cache keys reflect the
	// evaluated context, not the requested one.
	if s.gov != nil {
		s.gov.apply(&p)
	}
	// An explicit-reversal-order claim is dropped, not errored, when the
	// presented order fails verification or binds a different subject or
	// proposal: the kernel then denies with its own reason code, keeping
	// the denial auditable like any other.
	if s.orders != nil && p.Context.Flags.ExplicitReversalOrder {
		claims, err := s.orders.Verify(req.ReversalOrder)
		if err != nil || claims.SubjectID != p.SubjectID || claims.ProposalID != p.ProposalID {
			p.Context.Flags.ExplicitReversalOrder = false
			s.logger.Warn("explicit reversal order claim rejected",
				"subject_id", p.SubjectID, "proposal_id", p.ProposalID)
		}
	}

	ctx := r.Context()
	done := func(error) {}
	if s.obs != nil {
		ctx, done = s.obs.TrackEvaluation(ctx, observability.TransitionAttrs(
			p.SubjectID, p.ProposalID,
			p.Context.Request.From, p.Context.Request.To,
		)...)
	}

	out, err := s.guard.Process(ctx, p)
	done(err)
	if err != nil {
		s.writeProcessError(w, err)
		return
	}

	if s.obs != nil {
		s.obs.RecordDecision(ctx, string(out.Decision.Reason), out.Decision.Allowed)
		if out.Entry != nil && !out.Cached {
			s.obs.RecordAppend(ctx, out.Entry.ChangeType)
		}
	}
	s.logger.Info("transition evaluated",
		"subject_id", p.SubjectID,
		"proposal_id", p.ProposalID,
		"allowed", out.Decision.Allowed,
		"reason", out.Decision.Reason,
		"cached", out.Cached,
	)

	writeJSON(w, http.StatusOK, evaluateResponse{
		Decision: out.Decision,
		Entry:    out.Entry,
		Cached:   out.Cached,
	})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	entries := s.led.Entries()
	if subject := r.URL.Query().Get("subject_id"); subject != "" {
		keep := make([]ledger.Entry, 0, len(entries))
		for _, e := range entries {
			if e.SubjectID == subject {
				keep = append(keep, e)
			}
		}
		entries = keep
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		// The newest entries are the interesting ones; keep the tail.
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries, Head: s.led.Head()})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	if err := s.led.Verify(); err != nil {
		s.logger.Error("ledger verification failed", "error", err)
		WriteErrorR(w, r, http.StatusInternalServerError, "Ledger Integrity Failure", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Entries: s.led.Len(), Head: s.led.Head()})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.EntryID == "" {
		WriteBadRequest(w, "Missing required field: entry_id")
		return
	}

	entry, err := s.guard.Rollback(r.Context(), req.EntryID)
	if err != nil {
		s.writeRollbackError(w, err)
		return
	}

	if s.obs != nil {
		s.obs.RecordAppend(r.Context(), entry.ChangeType)
	}
	s.logger.Info("head compensated",
		"offending_entry_id", req.EntryID,
		"entry_id", entry.EntryID,
		"subject_id", entry.SubjectID,
	)

	writeJSON(w, http.StatusOK, rollbackResponse{Entry: entry})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Entries: s.led.Len()})
}

// writeProcessError maps guardian evaluation failures onto problem
// responses. Reason-coded denials never reach here; they are results.
func (s *Server) writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guardian.ErrUnboundProposal):
		WriteBadRequest(w, "subject_id and proposal_id are required")
	case errors.Is(err, guardian.ErrPropertyUnchecked):
		WriteUnprocessable(w, "transition names a property this deployment cannot evaluate")
	case errors.Is(err, property.ErrInvalidExpression),
		errors.Is(err, property.ErrForbiddenConstruct),
		errors.Is(err, property.ErrNotBoolean):
		WriteUnprocessable(w, err.Error())
	case errors.Is(err, store.ErrIO):
		s.logger.Warn("ledger append unavailable", "error", err)
		WriteServiceUnavailable(w, 10)
	default:
		WriteInternal(w, err)
	}
}

func (s *Server) writeRollbackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guardian.ErrRollbackNotHead):
		WriteConflict(w, "entry is not the chain head; only the head can be compensated")
	case errors.Is(err, ledger.ErrNothingToRollBack),
		errors.Is(err, ledger.ErrSubjectMismatch),
		errors.Is(err, ledger.ErrRiskNotTightening):
		WriteConflict(w, err.Error())
	case errors.Is(err, store.ErrIO):
		s.logger.Warn("ledger append unavailable", "error", err)
		WriteServiceUnavailable(w, 10)
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
