package catalog

import (
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// DefaultVersion is the version of the built-in catalog.
const DefaultVersion = "2025.2"

func criteria(stat string, threshold float64) *UnlockCriteria {
	return &UnlockCriteria{Stat: shared.StatPath(stat), Threshold: threshold}
}

// Default returns the built-in achievement catalog for the capsule app.
// Deployments may replace it with a JSON document via configuration; the
// built-in set keeps the engine usable with zero external files.
func Default() *Catalog {
	defs := []AchievementDefinition{
		// Common tier
		{
			ID: "first_capsule", Name: "Chronicle Keeper",
			Description: "Seal your first memory capsule",
			Category:    "capsules", Rarity: RarityCommon, Order: 1,
			Criteria: criteria("capsules_created", 1),
			Title:    "Chronicle Keeper",
		},
		{
			ID: "first_opening", Name: "Time Traveler",
			Description: "Open your first delivered capsule",
			Category:    "capsules", Rarity: RarityCommon, Order: 2,
			Criteria: criteria("capsules_opened", 1),
		},
		{
			ID: "first_reaction", Name: "Warm Heart",
			Description: "React to a shared memory",
			Category:    "social", Rarity: RarityCommon, Order: 3,
			Criteria: criteria("reactions_given", 1),
		},

		// Uncommon tier
		{
			ID: "capsule_collector", Name: "Capsule Collector",
			Description: "Seal 10 memory capsules",
			Category:    "capsules", Rarity: RarityUncommon, Order: 1,
			Criteria: criteria("capsules_created", 10),
			Title:    "Collector",
		},
		{
			ID: "week_streak", Name: "Week of Memories",
			Description: "Stay active 7 days in a row",
			Category:    "streaks", Rarity: RarityUncommon, Order: 2,
			Criteria: criteria("streak.current", 7),
		},
		{
			ID: "generous_soul", Name: "Generous Soul",
			Description: "Share 5 capsules with friends",
			Category:    "social", Rarity: RarityUncommon, Order: 3,
			Criteria: criteria("capsules_shared", 5),
			Title:    "Generous Soul",
		},

		// Rare tier
		{
			ID: "night_owl", Name: "Night Owl",
			Description: "Seal 5 capsules after midnight",
			Category:    "habits", Rarity: RarityRare, Order: 1,
			Criteria: criteria("capsules_by_hour.night", 5),
			Title:    "Night Owl",
		},
		{
			ID: "memory_architect", Name: "Memory Architect",
			Description: "Seal 50 memory capsules",
			Category:    "capsules", Rarity: RarityRare, Order: 2,
			Criteria: criteria("capsules_created", 50),
			Title:    "Memory Architect",
		},
		{
			ID: "month_streak", Name: "Iron Memory",
			Description: "Stay active 30 days in a row",
			Category:    "streaks", Rarity: RarityRare, Order: 3,
			Criteria: criteria("streak.current", 30),
			Title:    "Iron Memory",
		},

		// Epic tier
		{
			ID: "vault_keeper", Name: "Vault Keeper",
			Description: "Seal 200 memory capsules",
			Category:    "capsules", Rarity: RarityEpic, Order: 1,
			Criteria: criteria("capsules_created", 200),
			Title:    "Vault Keeper",
		},
		{
			ID: "community_beacon", Name: "Community Beacon",
			Description: "Receive 100 reactions on shared memories",
			Category:    "social", Rarity: RarityEpic, Order: 2,
			Criteria: criteria("reactions_received", 100),
			Title:    "Beacon",
		},

		// Legendary tier
		{
			ID: "year_streak", Name: "Eternal Flame",
			Description: "Stay active 365 days in a row",
			Category:    "streaks", Rarity: RarityLegendary, Order: 1,
			Criteria: criteria("streak.current", 365),
			Title:    "Eternal Flame",
		},
		{
			// Granted by the launch-cohort workflow, not by stats.
			ID: "founding_member", Name: "Founding Member",
			Description: "Joined during the founding season",
			Category:    "special", Rarity: RarityLegendary, Order: 2,
			Title:       "Founder",
		},
	}

	cat, err := New(DefaultVersion, defs)
	if err != nil {
		// The built-in catalog is compiled in; failing to construct it is a
		// programming error, not a runtime condition.
		panic("catalog: invalid built-in catalog: " + err.Error())
	}
	return cat
}
