package ledger

import (
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/canonical"
)

// DefaultGenesis is the sentinel prev_hexstamp of an empty chain. Deployments
// override it per ledger through configuration.
const DefaultGenesis = "0xHMFENCE-GENESIS"

// ModeTag values recorded on entries.
const (
	// ModeEnforce marks an entry produced by an accepted capability
	// transition.
	ModeEnforce = "Enforce"
	// ModeObserve marks advisory records: diagnostics and compensating
	// rollbacks. Observe entries never carry a capability change of their
	// own.
	ModeObserve = "Observe"
)

// ChangeType values recorded on entries. Rollback compensations prefix the
// offending entry's change type with "rollback-".
const (
	ChangeCapabilityDowngrade = "capability_downgrade"
	ChangeCapabilityUpgrade   = "capability_upgrade"
	ChangeCapabilityReaffirm  = "capability_reaffirm"
	ChangeDiagnostic          = "diag_observation"
)

// Entry is one immutable record in the chain. Once appended it is never
// edited, removed, or reordered; a mistake is undone by appending a
// compensating entry that references this one through PrevHexstamp.
type Entry struct {
	EntryID      string   `json:"entry_id"`
	SubjectID    string   `json:"subject_id"`
	ProposalID   string   `json:"proposal_id"`
	ChangeType   string   `json:"change_type"`
	ModeTag      string   `json:"mode_tag"`
	RoHBefore    float64  `json:"roh_before"`
	RoHAfter     float64  `json:"roh_after"`
	PolicyRefs   []string `json:"policy_refs"`
	TimestampUTC string   `json:"timestamp_utc"`
	Hexstamp     string   `json:"hexstamp"`
	PrevHexstamp string   `json:"prev_hexstamp"`
}

// Normalized returns a copy with all identifier strings in NFC form.
// Identifiers must be normalized before sealing; two visually identical
// subject ids must never hash into divergent chains.
func (e Entry) Normalized() Entry {
	e.EntryID = canonical.NFC(e.EntryID)
	e.SubjectID = canonical.NFC(e.SubjectID)
	e.ProposalID = canonical.NFC(e.ProposalID)
	refs := make([]string, len(e.PolicyRefs))
	for i, r := range e.PolicyRefs {
		refs[i] = canonical.NFC(r)
	}
	e.PolicyRefs = refs
	return e
}

// ComputeHexstamp returns the content hash the chain demands of this entry:
// the canonical JSON of every field except the two hex fields, concatenated
// with PrevHexstamp, SHA-256.
func (e Entry) ComputeHexstamp() (string, error) {
	payload := struct {
		EntryID      string   `json:"entry_id"`
		SubjectID    string   `json:"subject_id"`
		ProposalID   string   `json:"proposal_id"`
		ChangeType   string   `json:"change_type"`
		ModeTag      string   `json:"mode_tag"`
		RoHBefore    float64  `json:"roh_before"`
		RoHAfter     float64  `json:"roh_after"`
		PolicyRefs   []string `json:"policy_refs"`
		TimestampUTC string   `json:"timestamp_utc"`
	}{e.EntryID, e.SubjectID, e.ProposalID, e.ChangeType, e.ModeTag,
		e.RoHBefore, e.RoHAfter, e.PolicyRefs, e.TimestampUTC}

	raw, err := canonical.JCS(payload)
	if err != nil {
		return "", err
	}
	return canonical.HashBytes(append(raw, []byte(e.PrevHexstamp)...)), nil
}

// Sealed returns a normalized copy linked behind prev with its hexstamp
// computed. Sealing is the last step before Append; a sealed entry must not
// be modified afterwards.
func (e Entry) Sealed(prev string) (Entry, error) {
	sealed := e.Normalized()
	sealed.PrevHexstamp = prev

	stamp, err := sealed.ComputeHexstamp()
	if err != nil {
		return Entry{}, err
	}
	sealed.Hexstamp = stamp
	return sealed, nil
}

// Timestamp formats t the way entries record time: RFC 3339 in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
