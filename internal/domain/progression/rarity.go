package progression

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// POPULATION RARITY
// The live, population-derived counterpart to the catalog's fixed rarity
// tier: what percentage of users actually hold each achievement. Staleness
// is acceptable; the numbers are recomputed on a schedule, not per request.
// ═══════════════════════════════════════════════════════════════════════════

// RarityFigure is one achievement's population rarity.
type RarityFigure struct {
	// AchievementID identifies the achievement.
	AchievementID shared.AchievementID

	// HolderPercent is 100 * distinct holders / total users, in [0, 100].
	HolderPercent shared.Percent

	// Holders is the distinct-holder count behind the percentage.
	Holders int64
}

// RaritySheet is a full population scan: every achievement's figure plus
// the population size and the scan time, so consumers can judge staleness.
type RaritySheet struct {
	// Figures keys every scanned achievement to its rarity figure.
	Figures map[shared.AchievementID]RarityFigure

	// TotalUsers is the population denominator at scan time.
	TotalUsers int64

	// ComputedAt is when the scan ran.
	ComputedAt time.Time
}

// ComputeRarity derives a figure from raw counts. A zero-user population
// yields 0%, never a division error.
func ComputeRarity(achievementID shared.AchievementID, holders, totalUsers int64) RarityFigure {
	f := RarityFigure{AchievementID: achievementID, Holders: holders}
	if totalUsers <= 0 || holders <= 0 {
		return f
	}
	f.HolderPercent = shared.ClampPercent(100 * float64(holders) / float64(totalUsers))
	return f
}

// BuildRaritySheet derives a full sheet from holder counts. Achievement ids
// in the catalog but absent from counts get an explicit 0% figure, so every
// definition always has a published number.
func BuildRaritySheet(ids []shared.AchievementID, counts map[shared.AchievementID]int64, totalUsers int64, computedAt time.Time) RaritySheet {
	sheet := RaritySheet{
		Figures:    make(map[shared.AchievementID]RarityFigure, len(ids)),
		TotalUsers: totalUsers,
		ComputedAt: computedAt.UTC(),
	}
	for _, id := range ids {
		sheet.Figures[id] = ComputeRarity(id, counts[id], totalUsers)
	}
	return sheet
}

// Figure returns the figure for an id, falling back to an explicit 0% for
// ids the sheet has never seen.
func (s RaritySheet) Figure(id shared.AchievementID) RarityFigure {
	if f, ok := s.Figures[id]; ok {
		return f
	}
	return RarityFigure{AchievementID: id}
}

// RarityStore caches the latest published sheet. Readers tolerate staleness;
// a missing sheet (never computed, cache flushed) is reported via
// shared.ErrNotFound and readers fall back to zero figures.
type RarityStore interface {
	// Latest returns the most recently published sheet.
	Latest(ctx context.Context) (RaritySheet, error)

	// Publish replaces the published sheet.
	Publish(ctx context.Context, sheet RaritySheet) error
}
