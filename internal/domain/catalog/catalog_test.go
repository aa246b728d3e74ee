package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

func testDef(id string, rarity Rarity, order int) AchievementDefinition {
	return AchievementDefinition{
		ID:       shared.AchievementID(id),
		Name:     strings.ToTitle(id),
		Category: "test",
		Rarity:   rarity,
		Order:    order,
		Criteria: criteria("capsules_created", 1),
	}
}

func TestDefaultCatalog_IsWellFormed(t *testing.T) {
	cat := Default()

	assert.Equal(t, DefaultVersion, cat.Version())
	assert.Greater(t, cat.Len(), 0)

	for _, def := range cat.All() {
		assert.NoError(t, def.Validate(), "definition %s", def.ID)
	}
}

func TestCatalog_GetUnknownID(t *testing.T) {
	cat := Default()

	_, err := cat.Get("no_such_badge")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUnknownAchievement)
	assert.True(t, shared.IsNotFound(err))
}

func TestCatalog_OrderedByRarityThenOrder(t *testing.T) {
	cat, err := New("test", []AchievementDefinition{
		testDef("epic_one", RarityEpic, 1),
		testDef("common_two", RarityCommon, 2),
		testDef("common_one", RarityCommon, 1),
		testDef("rare_one", RarityRare, 1),
	})
	require.NoError(t, err)

	var ids []shared.AchievementID
	for _, def := range cat.All() {
		ids = append(ids, def.ID)
	}
	assert.Equal(t, []shared.AchievementID{"common_one", "common_two", "rare_one", "epic_one"}, ids)
}

func TestCatalog_RejectsDuplicates(t *testing.T) {
	_, err := New("test", []AchievementDefinition{
		testDef("twice", RarityCommon, 1),
		testDef("twice", RarityRare, 2),
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateAchievement)
}

func TestCatalog_RejectsEmpty(t *testing.T) {
	_, err := New("test", nil)
	assert.ErrorIs(t, err, shared.ErrEmptyCatalog)
}

func TestCatalog_TitleBearing(t *testing.T) {
	cat := Default()

	bearing := cat.TitleBearing()
	require.NotEmpty(t, bearing)
	for _, def := range bearing {
		assert.True(t, def.GrantsTitle())
	}
}

func TestCatalog_ByCategory(t *testing.T) {
	cat := Default()

	streaks := cat.ByCategory("streaks")
	require.NotEmpty(t, streaks)
	for _, def := range streaks {
		assert.Equal(t, "streaks", def.Category)
	}

	assert.Empty(t, cat.ByCategory("no_such_category"))
}

func TestParse_ValidDocument(t *testing.T) {
	doc := `{
		"version": "2025.3",
		"achievements": [
			{
				"id": "first_capsule",
				"name": "Chronicle Keeper",
				"description": "Seal your first memory capsule",
				"category": "capsules",
				"rarity": "common",
				"order": 1,
				"criteria": {"stat": "capsules_created", "threshold": 1},
				"title": "Chronicle Keeper"
			},
			{
				"id": "founding_member",
				"name": "Founding Member",
				"description": "Joined during the founding season",
				"category": "special",
				"rarity": "legendary",
				"order": 1,
				"title": "Founder"
			}
		]
	}`

	cat, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "2025.3", cat.Version())
	assert.Equal(t, 2, cat.Len())

	def, err := cat.Get("first_capsule")
	require.NoError(t, err)
	assert.Equal(t, RarityCommon, def.Rarity)
	require.NotNil(t, def.Criteria)
	assert.Equal(t, 1.0, def.Criteria.Threshold)

	founder, err := cat.Get("founding_member")
	require.NoError(t, err)
	assert.Nil(t, founder.Criteria, "criteria-less achievements unlock by trigger only")
	assert.True(t, founder.GrantsTitle())
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	_, err := Parse(strings.NewReader("not json"))
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	_, err = Parse(strings.NewReader(`{"version": "v", "achievements": [], "extra": 1}`))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestParse_RejectsBadRarity(t *testing.T) {
	doc := `{
		"version": "v",
		"achievements": [
			{"id": "bad_tier", "name": "X", "category": "test", "rarity": "mythic", "order": 1}
		]
	}`
	_, err := Parse(strings.NewReader(doc))
	assert.Error(t, err)
}
