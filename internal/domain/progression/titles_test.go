package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

func TestValidateEquip_PreconditionOrder(t *testing.T) {
	titled := catalog.AchievementDefinition{
		ID: "night_owl", Name: "Night Owl",
		Rarity: catalog.RarityRare, Title: "Night Owl",
	}
	untitled := catalog.AchievementDefinition{
		ID: "first_opening", Name: "Time Traveler",
		Rarity: catalog.RarityCommon,
	}

	assert.NoError(t, ValidateEquip(titled, true))

	err := ValidateEquip(titled, false)
	assert.ErrorIs(t, err, shared.ErrNotUnlocked)

	err = ValidateEquip(untitled, true)
	assert.ErrorIs(t, err, shared.ErrNoTitleForAchievement)

	// A locked, title-less achievement fails as not unlocked; the unlock
	// check runs before the title check.
	err = ValidateEquip(untitled, false)
	assert.ErrorIs(t, err, shared.ErrNotUnlocked)
	assert.NotErrorIs(t, err, shared.ErrNoTitleForAchievement)
}

func TestTitleProfile_EquipAndClear(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	profile := NewTitleProfile("3a9f1c20-6b7d-4e8a-9c2f-1d5e8b7a6c40")
	assert.False(t, profile.HasTitle())

	profile.Equip("night_owl", now)
	assert.True(t, profile.HasTitle())
	assert.Equal(t, shared.AchievementID("night_owl"), profile.Equipped)
	assert.Equal(t, now, profile.UpdatedAt)

	profile.Clear(now.Add(time.Hour))
	assert.False(t, profile.HasTitle())
	assert.Equal(t, now.Add(time.Hour), profile.UpdatedAt)
}
