// Package canonical provides deterministic serialization and hashing for
// ledger entries, decisions, and policy references.
//
// All content hashes in this repository are computed the same way:
// RFC 8785 (JSON Canonicalization Scheme) canonical form, SHA-256, rendered
// as "sha256:<hex>". Identifier strings are NFC-normalized before they enter
// a hashed structure so that visually identical identifiers cannot produce
// divergent chains.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// HashPrefix precedes every rendered digest.
const HashPrefix = "sha256:"

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshalled with HTML escaping disabled (standard json.Marshal
// escapes <, >, & which changes the byte stream), then transformed into
// canonical form: keys sorted by UTF-16 code units, numbers in ES6 shortest
// form.
func JCS(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the prefixed SHA-256 digest of the canonical JSON form of v.
func Hash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the prefixed SHA-256 digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// NFC returns s in Unicode Normalization Form C.
//
// Subject, proposal, and jurisdiction identifiers pass through here before
// hashing or comparison.
func NFC(s string) string {
	return norm.NFC.String(s)
}
