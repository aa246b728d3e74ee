// Package catalog holds the static achievement catalog: immutable
// definitions loaded once at process start, read-only thereafter.
package catalog

import (
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Rarity
// ═══════════════════════════════════════════════════════════════════════════

// Rarity is the fixed five-tier classification used for both
// unlock-difficulty signaling and visual treatment.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
)

// rarityNames maps each tier to its wire/display name. The slice is indexed
// by the Rarity value itself, so an out-of-range tier cannot resolve.
var rarityNames = [...]string{
	RarityCommon:    "common",
	RarityUncommon:  "uncommon",
	RarityRare:      "rare",
	RarityEpic:      "epic",
	RarityLegendary: "legendary",
}

// String returns the lowercase tier name.
func (r Rarity) String() string {
	if !r.IsValid() {
		return "unknown"
	}
	return rarityNames[r]
}

// IsValid checks if the rarity is one of the five defined tiers.
func (r Rarity) IsValid() bool {
	return r >= RarityCommon && r <= RarityLegendary
}

// ParseRarity parses a tier name into a Rarity.
func ParseRarity(s string) (Rarity, error) {
	for r, name := range rarityNames {
		if name == s {
			return Rarity(r), nil
		}
	}
	return 0, shared.NewDomainError("catalog", "ParseRarity", shared.ErrInvalidInput, "unknown rarity tier: "+s)
}

// StyleDescriptor carries the presentation hints for a rarity tier. The
// engine does not render; it hands these to UI collaborators so that styling
// is resolved by enum, not by string lookup with an undefined fallback.
type StyleDescriptor struct {
	// Accent is the tier's accent color (hex).
	Accent string

	// Glow enables the glow treatment on badges of this tier.
	Glow bool

	// Label is the human-readable tier label.
	Label string
}

// rarityStyles is the exhaustive enum-keyed style table.
var rarityStyles = [...]StyleDescriptor{
	RarityCommon:    {Accent: "#9ca3af", Glow: false, Label: "Common"},
	RarityUncommon:  {Accent: "#34d399", Glow: false, Label: "Uncommon"},
	RarityRare:      {Accent: "#60a5fa", Glow: true, Label: "Rare"},
	RarityEpic:      {Accent: "#a78bfa", Glow: true, Label: "Epic"},
	RarityLegendary: {Accent: "#fbbf24", Glow: true, Label: "Legendary"},
}

// Style returns the style descriptor for the tier.
func (r Rarity) Style() StyleDescriptor {
	if !r.IsValid() {
		return rarityStyles[RarityCommon]
	}
	return rarityStyles[r]
}

// ═══════════════════════════════════════════════════════════════════════════
// Unlock Criteria
// ═══════════════════════════════════════════════════════════════════════════

// UnlockCriteria ties a definition to a numeric statistic threshold. A
// definition without criteria is unlocked only by an explicit external
// trigger, never by the evaluator.
type UnlockCriteria struct {
	// Stat is the dotted path into the user's stat snapshot.
	Stat shared.StatPath

	// Threshold is the value at which the achievement unlocks.
	Threshold float64
}

// IsEvaluable reports whether the criteria can drive automatic unlocking.
// A zero or negative threshold never unlocks and reports zero progress.
func (c UnlockCriteria) IsEvaluable() bool {
	return c.Stat.IsValid() && c.Threshold > 0
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Definition
// ═══════════════════════════════════════════════════════════════════════════

// AchievementDefinition describes a catalog-defined milestone. Definitions
// are immutable after load; ID is globally unique and is the join key
// between definitions, ledger entries, and equip references.
type AchievementDefinition struct {
	// ID is the stable identifier.
	ID shared.AchievementID

	// Name is the display name.
	Name string

	// Description explains how the achievement is earned.
	Description string

	// Category is the grouping label used for sort/filter.
	Category string

	// Rarity is the fixed tier of this definition.
	Rarity Rarity

	// Criteria is the optional stat threshold. Nil means explicit-trigger only.
	Criteria *UnlockCriteria

	// Order is the tie-break ordinal within a rarity tier.
	Order int

	// Title is the display title granted on unlock. Empty means the
	// achievement grants no title.
	Title string
}

// HasCriteria reports whether the definition carries evaluable unlock criteria.
func (d AchievementDefinition) HasCriteria() bool {
	return d.Criteria != nil && d.Criteria.IsEvaluable()
}

// GrantsTitle reports whether unlocking this achievement grants a title.
func (d AchievementDefinition) GrantsTitle() bool {
	return d.Title != ""
}

// Validate checks the definition's internal consistency.
func (d AchievementDefinition) Validate() error {
	if !d.ID.IsValid() {
		return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidID, "invalid achievement id: "+d.ID.String())
	}
	if d.Name == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrEmptyValue, d.ID.String()+": name is required")
	}
	if !d.Rarity.IsValid() {
		return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidInput, d.ID.String()+": invalid rarity tier")
	}
	if d.Criteria != nil {
		if !d.Criteria.Stat.IsValid() {
			return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidFormat, d.ID.String()+": invalid criteria stat path")
		}
		if d.Criteria.Threshold < 0 {
			return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidInput, d.ID.String()+": negative criteria threshold")
		}
	}
	return nil
}
