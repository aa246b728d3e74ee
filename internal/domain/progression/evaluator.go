// Package progression holds the core achievement logic: criteria
// evaluation, the append-only unlock ledger, title equipping, and
// population rarity. Everything here is deterministic domain code; all
// I/O lives behind the repository interfaces.
package progression

import (
	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
)

// ═══════════════════════════════════════════════════════════════════════════
// CRITERIA EVALUATOR
// Pure functions over (definition, snapshot). No clocks, no randomness,
// no I/O: the same inputs always produce the same result.
// ═══════════════════════════════════════════════════════════════════════════

// Evaluation is the outcome of checking one definition against one snapshot.
type Evaluation struct {
	// AchievementID identifies the evaluated definition.
	AchievementID shared.AchievementID

	// Satisfied reports whether the unlock threshold has been met.
	Satisfied bool

	// Progress is the completion percentage, saturated at 100. A satisfied
	// evaluation always reports 100.
	Progress shared.Percent

	// Value is the resolved statistic value the evaluation was based on.
	Value float64
}

// Evaluate checks a single definition against a snapshot.
//
// A definition without evaluable criteria (no criteria at all, or a zero or
// negative threshold) never satisfies and reports zero progress; such
// definitions unlock only through explicit triggers. A missing stat path
// resolves to 0, which reports 0% progress rather than an error.
func Evaluate(def catalog.AchievementDefinition, snapshot *stats.Snapshot) Evaluation {
	ev := Evaluation{AchievementID: def.ID}
	if !def.HasCriteria() {
		return ev
	}

	ev.Value = snapshot.Resolve(def.Criteria.Stat)
	ev.Satisfied = ev.Value >= def.Criteria.Threshold
	ev.Progress = shared.ClampPercent(100 * ev.Value / def.Criteria.Threshold)
	if ev.Satisfied {
		ev.Progress = shared.MaxPercent
	}
	return ev
}

// EvaluateAll checks every definition in the catalog against a snapshot and
// returns the evaluations in catalog order.
func EvaluateAll(cat *catalog.Catalog, snapshot *stats.Snapshot) []Evaluation {
	defs := cat.All()
	out := make([]Evaluation, 0, len(defs))
	for _, def := range defs {
		out = append(out, Evaluate(def, snapshot))
	}
	return out
}

// NewlySatisfied returns the definitions whose criteria a snapshot satisfies
// but that the given unlocked set does not yet contain, in catalog order.
// This is the candidate list the unlock flow feeds to the ledger.
func NewlySatisfied(cat *catalog.Catalog, snapshot *stats.Snapshot, unlocked map[shared.AchievementID]bool) []catalog.AchievementDefinition {
	var out []catalog.AchievementDefinition
	for _, def := range cat.All() {
		if unlocked[def.ID] {
			continue
		}
		if Evaluate(def, snapshot).Satisfied {
			out = append(out, def)
		}
	}
	return out
}
