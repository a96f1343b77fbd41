// Package diagnostic hosts third-party diagnostic modules in a WASI
// sandbox. A module reads its probe input from stdin and writes one JSON
// verdict to stdout; the verdict feeds the fairness analytics and nothing
// else. Modules have no filesystem, no network, no clock, and no path to
// the reversal kernel.
package diagnostic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
	"github.com/Mindburn-Labs/pawl/pkg/fairness"
)

var (
	// ErrMalformedVerdict marks module output that is not a valid verdict.
	ErrMalformedVerdict = errors.New("diagnostic: malformed verdict")
)

// Verdict is the JSON document a diagnostic module emits on stdout. All
// axes are normalized to [0, 1]; anything outside that range fails closed.
type Verdict struct {
	SubjectID  string  `json:"subject_id"`
	Lifeforce  float64 `json:"lifeforce"`
	Oxygen     float64 `json:"oxygen"`
	Fear       float64 `json:"fear"`
	Pain       float64 `json:"pain"`
	Power      float64 `json:"power"`
	Overloaded bool    `json:"overloaded"`
}

// ParseVerdict decodes and validates module output. Unknown fields are
// rejected so a module cannot smuggle side channels past the host.
func ParseVerdict(raw []byte) (Verdict, error) {
	var v Verdict
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if err := v.validate(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func (v Verdict) validate() error {
	if v.SubjectID == "" {
		return fmt.Errorf("%w: empty subject_id", ErrMalformedVerdict)
	}
	axes := []struct {
		name string
		val  float64
	}{
		{"lifeforce", v.Lifeforce},
		{"oxygen", v.Oxygen},
		{"fear", v.Fear},
		{"pain", v.Pain},
		{"power", v.Power},
	}
	for _, a := range axes {
		if math.IsNaN(a.val) || a.val < 0 || a.val > 1 {
			return fmt.Errorf("%w: %s=%v out of [0,1]", ErrMalformedVerdict, a.name, a.val)
		}
	}
	return nil
}

// Snapshot lifts the verdict into a fairness snapshot. The cohort fields
// come from the host, never from the module.
func (v Verdict) Snapshot(at time.Time, tier capability.CapabilityState, jurisdiction, taskTag string) fairness.Snapshot {
	return fairness.Snapshot{
		SubjectID:    v.SubjectID,
		At:           at,
		Tier:         tier,
		Jurisdiction: jurisdiction,
		TaskTag:      taskTag,
		Lifeforce:    v.Lifeforce,
		Oxygen:       v.Oxygen,
		Overloaded:   v.Overloaded,
	}
}

// Rails lifts the verdict's measured axes into a tree-of-life view, with
// the decay axes derived from the host-supplied RoH score.
func (v Verdict) Rails(roh float64) fairness.Rails {
	return fairness.RailsFromRoH(roh, v.Fear, v.Pain, v.Power)
}
