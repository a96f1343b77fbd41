package order

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var orderBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m, err := NewManager(testSecret(), WithClock(func() time.Time { return orderBase }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.Issue("subject-1", "proposal-9", true)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.SubjectID != "subject-1" || claims.ProposalID != "proposal-9" {
		t.Fatalf("binding not carried: %+v", claims)
	}
	if !claims.NoSaferAlternativeAsserted {
		t.Fatal("assertion flag not carried")
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
	if !claims.ExpiresAt.Time.Equal(orderBase.Add(DefaultTTL)) {
		t.Fatalf("unexpected expiry: %v", claims.ExpiresAt.Time)
	}
}

func TestVerify_RejectsExpired(t *testing.T) {
	current := orderBase
	m, err := NewManager(testSecret(), WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.Issue("subject-1", "proposal-9", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = orderBase.Add(DefaultTTL + time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired-token error, got %v", err)
	}
}

func TestVerify_RejectsForeignSignature(t *testing.T) {
	issuerMgr, err := NewManager(testSecret())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	verifierMgr, err := NewManager([]byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := issuerMgr.Issue("subject-1", "proposal-9", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifierMgr.Verify(token); err == nil {
		t.Fatal("expected verification failure for foreign signature")
	}
}

func TestVerify_RejectsUnsignedToken(t *testing.T) {
	m, err := NewManager(testSecret(), WithClock(func() time.Time { return orderBase }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	claims := OrderClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-1",
			IssuedAt:  jwt.NewNumericDate(orderBase),
			ExpiresAt: jwt.NewNumericDate(orderBase.Add(time.Hour)),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
		},
		SubjectID:  "subject-1",
		ProposalID: "proposal-9",
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, err := m.Verify(unsigned); err == nil {
		t.Fatal("expected rejection of alg=none token")
	}
}

func TestNewManager_RejectsWeakSecret(t *testing.T) {
	if _, err := NewManager([]byte("short")); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestIssue_RequiresBinding(t *testing.T) {
	m, err := NewManager(testSecret())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Issue("", "proposal-9", false); !errors.Is(err, ErrUnboundOrder) {
		t.Fatalf("expected ErrUnboundOrder, got %v", err)
	}
	if _, err := m.Issue("subject-1", "", false); !errors.Is(err, ErrUnboundOrder) {
		t.Fatalf("expected ErrUnboundOrder, got %v", err)
	}
}
