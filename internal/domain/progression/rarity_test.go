package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

func TestComputeRarity_Bounds(t *testing.T) {
	tests := []struct {
		name       string
		holders    int64
		totalUsers int64
		want       float64
	}{
		{"nobody holds it", 0, 1000, 0},
		{"everyone holds it", 1000, 1000, 100},
		{"typical", 150, 1000, 15},
		{"zero users", 0, 0, 0},
		{"holders without users", 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ComputeRarity("first_capsule", tt.holders, tt.totalUsers)
			assert.InDelta(t, tt.want, f.HolderPercent.Float64(), 1e-9)
			assert.True(t, f.HolderPercent.IsValid())
		})
	}
}

func TestBuildRaritySheet_ZeroForUncountedAchievements(t *testing.T) {
	ids := []shared.AchievementID{"first_capsule", "night_owl"}
	counts := map[shared.AchievementID]int64{"first_capsule": 40}

	sheet := BuildRaritySheet(ids, counts, 80, time.Now())

	assert.InDelta(t, 50.0, sheet.Figure("first_capsule").HolderPercent.Float64(), 1e-9)
	assert.Equal(t, shared.MinPercent, sheet.Figure("night_owl").HolderPercent)
	assert.Equal(t, int64(80), sheet.TotalUsers)
}

func TestRaritySheet_FigureFallsBackToZero(t *testing.T) {
	sheet := BuildRaritySheet(nil, nil, 100, time.Now())

	f := sheet.Figure("unknown_badge")
	assert.Equal(t, shared.AchievementID("unknown_badge"), f.AchievementID)
	assert.Equal(t, shared.MinPercent, f.HolderPercent)
	assert.Equal(t, int64(0), f.Holders)
}

func TestUnlockRecord_IsRecent(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	rec := NewUnlockRecord(testUser, "first_capsule", now.Add(-48*time.Hour))

	assert.True(t, rec.IsRecent(now))
	assert.False(t, rec.IsRecent(now.Add(26*time.Hour)))
}

func TestValidateEquip(t *testing.T) {
	titled := def("night_owl", "capsules_by_hour.night", 5)
	titled.Title = "Night Owl"
	untitled := def("first_opening", "capsules_opened", 1)

	assert.NoError(t, ValidateEquip(titled, true))
	assert.ErrorIs(t, ValidateEquip(titled, false), shared.ErrNotUnlocked)
	assert.ErrorIs(t, ValidateEquip(untitled, true), shared.ErrNoTitleForAchievement)
	// The no-title check wins over the unlock check.
	assert.ErrorIs(t, ValidateEquip(untitled, false), shared.ErrNoTitleForAchievement)
}

func TestTitleProfile_EquipAndClearIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	p := NewTitleProfile(testUser)
	assert.False(t, p.HasTitle())

	p.Equip("night_owl", now)
	assert.True(t, p.HasTitle())
	assert.Equal(t, shared.AchievementID("night_owl"), p.Equipped)

	p.Clear(now.Add(time.Hour))
	assert.False(t, p.HasTitle())

	// Clearing again stays a no-op.
	p.Clear(now.Add(2 * time.Hour))
	assert.False(t, p.HasTitle())
}
