package audit_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/pawl/pkg/audit"
)

func TestKeyring_SignAndVerify(t *testing.T) {
	keys := audit.NewKeyring(nil)

	sig, err := keys.Sign(map[string]string{"proposal_id": "proposal-9"})
	require.NoError(t, err)

	msg := []byte(`{"proposal_id":"proposal-9"}`)
	assert.True(t, ed25519.Verify(keys.PublicKey(), msg, sig))
	assert.False(t, ed25519.Verify(keys.PublicKey(), []byte(`{"proposal_id":"other"}`), sig))
}

func TestKeyring_DeriveForSubject(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "master-seed-for-derivation-tests")
	master, err := audit.NewMemoryKeyProviderFromSeed(seed)
	require.NoError(t, err)
	keys := audit.NewKeyring(master)

	a1, err := keys.DeriveForSubject("subject-1")
	require.NoError(t, err)
	a2, err := keys.DeriveForSubject("subject-1")
	require.NoError(t, err)
	b, err := keys.DeriveForSubject("subject-2")
	require.NoError(t, err)

	// Same master and subject derive the same key; other subjects differ.
	assert.Equal(t, a1.PublicKey(), a2.PublicKey())
	assert.NotEqual(t, a1.PublicKey(), b.PublicKey())
	assert.NotEqual(t, keys.PublicKey(), a1.PublicKey())

	msg := []byte("evidence bytes")
	sig, err := a1.SignBytes(msg)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(a2.PublicKey(), msg, sig))
	assert.False(t, ed25519.Verify(b.PublicKey(), msg, sig))
}

func TestKeyring_DeriveRequiresSubject(t *testing.T) {
	keys := audit.NewKeyring(nil)
	_, err := keys.DeriveForSubject("")
	require.Error(t, err)
}

type sealedProvider struct{ inner audit.KeyProvider }

func (p sealedProvider) Sign(msg []byte) ([]byte, error) { return p.inner.Sign(msg) }
func (p sealedProvider) PublicKey() ed25519.PublicKey { return p.inner.PublicKey() }

func TestKeyring_DeriveFailsWithoutSeedAccess(t *testing.T) {
	inner, err := audit.NewMemoryKeyProvider()
	require.NoError(t, err)
	keys := audit.NewKeyring(sealedProvider{inner: inner})

	_, err = keys.DeriveForSubject("subject-1")
	assert.ErrorIs(t, err, audit.ErrNotDerivable)
}
