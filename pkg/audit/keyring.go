package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider abstracts the signing backend so the in-memory keys can be
// swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// seeder is the extra capability subject derivation needs.
type seeder interface {
	Seed() []byte
}

// ErrNotDerivable marks providers whose seed cannot leave the backend.
var ErrNotDerivable = errors.New("audit: key provider does not expose a derivation seed")

// MemoryKeyProvider holds an Ed25519 keypair in process memory.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds a deterministic keypair from a
// 32-byte seed.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("audit: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

func (m *MemoryKeyProvider) Seed() []byte {
	return m.priv.Seed()
}

// Keyring signs evidence with a provider-backed key and derives
// per-subject keyrings so one subject's packs verify against one key.
type Keyring struct {
	provider KeyProvider
}

// NewKeyring wraps a provider. A nil provider gets an in-memory keypair.
func NewKeyring(p KeyProvider) *Keyring {
	if p == nil {
		p, _ = NewMemoryKeyProvider()
	}
	return &Keyring{provider: p}
}

// Sign marshals data to JSON and signs the bytes.
func (k *Keyring) Sign(data any) ([]byte, error) {
	msg, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return k.provider.Sign(msg)
}

// SignBytes signs raw bytes.
func (k *Keyring) SignBytes(msg []byte) ([]byte, error) {
	return k.provider.Sign(msg)
}

// PublicKey returns the active verification key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	return k.provider.PublicKey()
}

// DeriveForSubject derives a subject-specific keyring with HKDF-SHA256:
// the master seed is the IKM, the subject id the info. The same master and
// subject always yield the same keypair.
func (k *Keyring) DeriveForSubject(subjectID string) (*Keyring, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("audit: subjectID must not be empty")
	}
	s, ok := k.provider.(seeder)
	if !ok {
		return nil, ErrNotDerivable
	}

	r := hkdf.New(sha256.New, s.Seed(), []byte("pawl-subject-kdf"), []byte(subjectID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("audit: hkdf derivation failed: %w", err)
	}

	derived, err := NewMemoryKeyProviderFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return NewKeyring(derived), nil
}
