// Package fairness holds the peer-cohort diagnostics: sliding-window drain
// analysis, tree-of-life nature labels, and the one join point through which
// any of it may influence a downgrade decision.
//
// Everything here is advisory log analysis. No function in this package
// reads or writes capability, consent, or policy state, and the only value
// that ever reaches the reversal kernel is the single boolean produced by
// ComputeNoSaferAlternative.
package fairness

import (
	"sort"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
)

// Snapshot is one subject observation per epoch, with budget components
// normalized to [0, 1].
type Snapshot struct {
	SubjectID    string                     `json:"subject_id"`
	At           time.Time                  `json:"at"`
	Tier         capability.CapabilityState `json:"tier"`
	Jurisdiction string                     `json:"jurisdiction"`
	TaskTag      string                     `json:"task_tag"`
	Lifeforce    float64                    `json:"lifeforce"`
	Oxygen       float64                    `json:"oxygen"`
	Overloaded   bool                       `json:"overloaded"`
}

// budget is the subject's resource budget for one frame.
func (s Snapshot) budget() float64 {
	return 0.5 * (s.Lifeforce + s.Oxygen)
}

// comparable groups peers: same tier, same jurisdiction, same task.
func (s Snapshot) comparable(other Snapshot) bool {
	return s.Tier == other.Tier &&
		s.Jurisdiction == other.Jurisdiction &&
		s.TaskTag == other.TaskTag
}

// DrainConfig tunes the unfair-drain predicate. All values come from
// deployment configuration.
type DrainConfig struct {
	// Window is the sliding window length.
	Window time.Duration `json:"window"`
	// DeltaUnfair is the max allowed deficit below the peer median budget.
	DeltaUnfair float64 `json:"delta_unfair"`
	// OverloadFracMin is the minimum overload fraction required to flag.
	OverloadFracMin float64 `json:"overload_frac_min"`
}

// DrainFlag is the advisory unfair-drain label for one subject at one time,
// with the window diagnostics it was derived from.
type DrainFlag struct {
	SubjectID        string    `json:"subject_id"`
	At               time.Time `json:"at"`
	UnfairDrain      bool      `json:"unfair_drain"`
	Budget           float64   `json:"budget"`
	PeerMedianBudget float64   `json:"peer_median_budget"`
	OverloadFraction float64   `json:"overload_fraction"`
}

// ComputeUnfairDrain labels every snapshot: a subject is unfairly drained
// when its windowed budget sits at least DeltaUnfair below the peer median
// while its overload fraction meets OverloadFracMin. Subjects with no
// comparable peers are never flagged; unfairness is relative by definition.
//
// Pure function over the snapshot slice. Output is ordered by subject id,
// then time.
func ComputeUnfairDrain(cfg DrainConfig, snapshots []Snapshot) []DrainFlag {
	bySubject := make(map[string][]Snapshot)
	for _, s := range snapshots {
		bySubject[s.SubjectID] = append(bySubject[s.SubjectID], s)
	}

	subjects := make([]string, 0, len(bySubject))
	for id := range bySubject {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)

	var flags []DrainFlag
	for _, id := range subjects {
		series := bySubject[id]
		sort.Slice(series, func(i, j int) bool { return series[i].At.Before(series[j].At) })

		for _, snap := range series {
			start := snap.At.Add(-cfg.Window)

			var selfCount, overloadCount int
			var budgetSum float64
			for _, s := range series {
				if inWindow(s.At, start, snap.At) {
					selfCount++
					budgetSum += s.budget()
					if s.Overloaded {
						overloadCount++
					}
				}
			}
			if selfCount == 0 {
				continue
			}
			selfBudget := budgetSum / float64(selfCount)
			overloadFrac := float64(overloadCount) / float64(selfCount)

			var peerBudgets []float64
			for _, other := range snapshots {
				if inWindow(other.At, start, snap.At) && snap.comparable(other) {
					peerBudgets = append(peerBudgets, other.budget())
				}
			}

			if len(peerBudgets) == 0 {
				flags = append(flags, DrainFlag{
					SubjectID:        id,
					At:               snap.At,
					UnfairDrain:      false,
					Budget:           selfBudget,
					PeerMedianBudget: selfBudget,
					OverloadFraction: overloadFrac,
				})
				continue
			}

			peerMedian := median(peerBudgets)
			unfair := peerMedian-selfBudget >= cfg.DeltaUnfair &&
				overloadFrac >= cfg.OverloadFracMin

			flags = append(flags, DrainFlag{
				SubjectID:        id,
				At:               snap.At,
				UnfairDrain:      unfair,
				Budget:           selfBudget,
				PeerMedianBudget: peerMedian,
				OverloadFraction: overloadFrac,
			})
		}
	}
	return flags
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return 0.5 * (sorted[mid-1] + sorted[mid])
	}
	return sorted[mid]
}
