// Package order issues and verifies explicit reversal orders. An order is
// a short-lived signed token binding one subject and one proposal; a
// verified order is what entitles a request to claim ExplicitReversalOrder
// before it reaches the kernel.
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "pawl/order"
	audience = "pawl.internal"

	// DefaultTTL bounds how long an issued order stays presentable.
	DefaultTTL = 15 * time.Minute

	minSecretLen = 32
)

var (
	// ErrWeakSecret rejects signing keys shorter than the HMAC block size.
	ErrWeakSecret = errors.New("order: signing secret too short")
	// ErrUnboundOrder rejects orders without a subject and proposal binding.
	ErrUnboundOrder = errors.New("order: order must bind a subject and a proposal")
)

// OrderClaims are the signed contents of a reversal order.
type OrderClaims struct {
	jwt.RegisteredClaims
	SubjectID                  string `json:"subject_id"`
	ProposalID                 string `json:"proposal_id"`
	NoSaferAlternativeAsserted bool   `json:"no_safer_alternative_asserted"`
}

// Manager signs and verifies reversal orders with a shared HS256 secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the order lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds an order manager. The secret must be at least 32 bytes.
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(secret), minSecretLen)
	}
	m := &Manager{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a reversal order for one subject and one proposal.
func (m *Manager) Issue(subjectID, proposalID string, noSaferAsserted bool) (string, error) {
	if subjectID == "" || proposalID == "" {
		return "", ErrUnboundOrder
	}
	now := m.clock().UTC()
	claims := OrderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
		},
		SubjectID:                  subjectID,
		ProposalID:                 proposalID,
		NoSaferAlternativeAsserted: noSaferAsserted,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses an order, checking signature, expiry, issuer, and audience.
func (m *Manager) Verify(tokenString string) (*OrderClaims, error) {
	claims := &OrderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("order: verify: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("order: verify: %w", jwt.ErrTokenSignatureInvalid)
	}
	if claims.SubjectID == "" || claims.ProposalID == "" {
		return nil, ErrUnboundOrder
	}
	return claims, nil
}
