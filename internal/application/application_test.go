package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsulehub/capsule-progression-hub/internal/application/command"
	"github.com/capsulehub/capsule-progression-hub/internal/application/query"
	"github.com/capsulehub/capsule-progression-hub/internal/application/saga"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/infrastructure/persistence/memory"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

const testUser = shared.UserID("3a9f1c20-6b7d-4e8a-9c2f-1d5e8b7a6c40")

// testEngine bundles the facade with its in-memory collaborators so tests
// can both drive the API and inspect stored state.
type testEngine struct {
	engine      *Progression
	stats       *memory.StatRepository
	ledger      *memory.Ledger
	profiles    *memory.ProfileRepository
	rarityStore *memory.RarityStore
	clock       *timeutil.FixedClock
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	te := &testEngine{
		stats:       memory.NewStatRepository(),
		ledger:      memory.NewLedger(),
		profiles:    memory.NewProfileRepository(),
		rarityStore: memory.NewRarityStore(),
		clock:       &timeutil.FixedClock{Time: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)},
	}

	engine, err := New(Dependencies{
		Catalog:     catalog.Default(),
		StatRepo:    te.stats,
		Ledger:      te.ledger,
		ProfileRepo: te.profiles,
		RarityStore: te.rarityStore,
		Clock:       te.clock,
	})
	require.NoError(t, err)

	te.engine = engine
	return te
}

func (te *testEngine) recordStat(t *testing.T, path string, value float64) *command.RecordStatResult {
	t.Helper()
	result, err := te.engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID: testUser,
		Path:   shared.StatPath(path),
		Value:  value,
	})
	require.NoError(t, err)
	return result
}

func unlockedIDs(result *command.RecordStatResult) []shared.AchievementID {
	ids := make([]shared.AchievementID, 0, len(result.NewUnlocks))
	for _, rec := range result.NewUnlocks {
		ids = append(ids, rec.AchievementID)
	}
	return ids
}

func TestNew_RequiresCoreCollaborators(t *testing.T) {
	_, err := New(Dependencies{})
	require.Error(t, err)

	_, err = New(Dependencies{Catalog: catalog.Default()})
	require.Error(t, err)
}

func TestRecordStat_FirstEventUnlocks(t *testing.T) {
	te := newTestEngine(t)

	result := te.recordStat(t, "capsules_created", 1)

	assert.Equal(t, 1.0, result.NewValue)
	assert.Equal(t, []shared.AchievementID{"first_capsule"}, unlockedIDs(result))
	assert.Equal(t, te.clock.Time, result.NewUnlocks[0].UnlockedAt)
}

func TestRecordStat_CascadeUnlocksMultipleTiers(t *testing.T) {
	te := newTestEngine(t)

	// One big jump satisfies the 1, 10 and 50 capsule thresholds at once.
	result := te.recordStat(t, "capsules_created", 50)

	assert.Equal(t, 50.0, result.NewValue)
	assert.ElementsMatch(t,
		[]shared.AchievementID{"first_capsule", "capsule_collector", "memory_architect"},
		unlockedIDs(result))
}

func TestRecordStat_RepeatEventAbsorbed(t *testing.T) {
	te := newTestEngine(t)

	first := te.recordStat(t, "capsules_created", 1)
	second := te.recordStat(t, "capsules_created", 1)

	assert.Len(t, first.NewUnlocks, 1)
	assert.Empty(t, second.NewUnlocks)
	assert.Equal(t, 2.0, second.NewValue)
}

func TestRecordStat_AbsoluteReplacesValue(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID:   testUser,
		Path:     "streak.current",
		Value:    7,
		Absolute: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []shared.AchievementID{"week_streak"}, unlockedIDs(result))

	// A streak reset lowers the stat but never revokes the unlock.
	result, err = te.engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID:   testUser,
		Path:     "streak.current",
		Value:    1,
		Absolute: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.NewValue)
	assert.Empty(t, result.NewUnlocks)

	unlocked, err := te.ledger.IsUnlocked(context.Background(), testUser, "week_streak")
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestRecordStat_InvalidInputRejected(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID: "not-a-uuid",
		Path:   "capsules_created",
		Value:  1,
	})
	assert.True(t, shared.IsValidation(err))

	_, err = te.engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID: testUser,
		Path:   "Bad Path!",
		Value:  1,
	})
	assert.True(t, shared.IsValidation(err))
}

func TestRecordStat_UnlockCapLimitsOneRun(t *testing.T) {
	flowConfig := saga.DefaultUnlockFlowConfig()
	flowConfig.MaxUnlocksPerRun = 1

	engine, err := New(Dependencies{
		Catalog:     catalog.Default(),
		StatRepo:    memory.NewStatRepository(),
		Ledger:      memory.NewLedger(),
		ProfileRepo: memory.NewProfileRepository(),
		UnlockFlow:  &flowConfig,
	})
	require.NoError(t, err)

	result, err := engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID: testUser,
		Path:   "capsules_created",
		Value:  50,
	})
	require.NoError(t, err)
	assert.Len(t, result.NewUnlocks, 1)

	// The next event picks up where the cap cut off.
	result, err = engine.RecordStat(context.Background(), command.RecordStatCommand{
		UserID: testUser,
		Path:   "capsules_created",
		Value:  0,
	})
	require.NoError(t, err)
	assert.Len(t, result.NewUnlocks, 1)
}

func TestRecordStat_ConcurrentEventsUnlockOnce(t *testing.T) {
	te := newTestEngine(t)

	const workers = 8
	results := make([]*command.RecordStatResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = te.engine.RecordStat(context.Background(), command.RecordStatCommand{
				UserID: testUser,
				Path:   "capsules_created",
				Value:  1,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for i, result := range results {
		require.NoError(t, errs[i])
		for _, rec := range result.NewUnlocks {
			if rec.AchievementID == "first_capsule" {
				created++
			}
		}
	}
	assert.Equal(t, 1, created, "exactly one event may claim the unlock")

	records, err := te.ledger.ListByUser(context.Background(), testUser)
	require.NoError(t, err)
	byID := make(map[shared.AchievementID]int)
	for _, rec := range records {
		byID[rec.AchievementID]++
	}
	assert.Equal(t, 1, byID["first_capsule"])
}

func TestRecordActivity_DerivesCounterAndHourBucket(t *testing.T) {
	te := newTestEngine(t)

	// 02:00 UTC falls in the night bucket.
	night := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	result, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
		UserID:     testUser,
		Kind:       command.ActivityCapsuleSealed,
		OccurredAt: night,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.Streak)
	ids := make([]shared.AchievementID, 0, len(result.NewUnlocks))
	for _, rec := range result.NewUnlocks {
		ids = append(ids, rec.AchievementID)
	}
	assert.Contains(t, ids, shared.AchievementID("first_capsule"))

	snapshot, err := te.stats.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snapshot.Resolve("capsules_created"))
	assert.Equal(t, 1.0, snapshot.Resolve("capsules_by_hour.night"))
}

func TestRecordActivity_NightOwlUnlocksFromHourBucket(t *testing.T) {
	te := newTestEngine(t)

	night := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
			UserID:     testUser,
			Kind:       command.ActivityCapsuleSealed,
			OccurredAt: night.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	unlocked, err := te.ledger.IsUnlocked(context.Background(), testUser, "night_owl")
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestRecordActivity_StreakAdvancesOnConsecutiveDays(t *testing.T) {
	te := newTestEngine(t)

	day := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		result, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
			UserID:     testUser,
			Kind:       command.ActivityCapsuleOpened,
			OccurredAt: day.AddDate(0, 0, i),
		})
		require.NoError(t, err)
		assert.Equal(t, float64(i+1), result.Streak)
	}

	// A second activity on an already counted day leaves the streak alone.
	result, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
		UserID:     testUser,
		Kind:       command.ActivityCapsuleOpened,
		OccurredAt: day.AddDate(0, 0, 6).Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, result.Streak)

	snapshot, err := te.stats.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 7.0, snapshot.Resolve("streak.current"))
	assert.Equal(t, 7.0, snapshot.Resolve("streak.longest"))

	unlocked, err := te.ledger.IsUnlocked(context.Background(), testUser, "week_streak")
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestRecordActivity_StreakResetsAfterGap(t *testing.T) {
	te := newTestEngine(t)

	day := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
			UserID:     testUser,
			Kind:       command.ActivityReactionGiven,
			OccurredAt: day.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}

	result, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
		UserID:     testUser,
		Kind:       command.ActivityReactionGiven,
		OccurredAt: day.AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Streak)

	snapshot, err := te.stats.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snapshot.Resolve("streak.current"))
	// The best run survives the reset.
	assert.Equal(t, 2.0, snapshot.Resolve("streak.longest"))
}

func TestRecordActivity_ReceivedReactionSkipsStreak(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
		UserID: testUser,
		Kind:   command.ActivityReactionReceived,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Streak)

	snapshot, err := te.stats.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snapshot.Resolve("reactions_received"))
	assert.Equal(t, 0.0, snapshot.Resolve("streak.current"))
}

func TestRecordActivity_UnknownKindRejected(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.RecordActivity(context.Background(), command.RecordActivityCommand{
		UserID: testUser,
		Kind:   "levitated",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTriggerUnlock_IdempotentWithOriginalTimestamp(t *testing.T) {
	te := newTestEngine(t)
	firstAt := te.clock.Time

	result, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, firstAt, result.UnlockedAt)

	te.clock.Time = firstAt.Add(48 * time.Hour)

	result, err = te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, firstAt, result.UnlockedAt, "repeat trigger keeps the original time")
}

func TestTriggerUnlock_UnknownAchievement(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "no_such_badge",
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestEquipTitle_Success(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)

	result, err := te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	assert.Equal(t, shared.AchievementID("founding_member"), result.Equipped)
	assert.Equal(t, "Founder", result.Title)
	assert.Equal(t, te.clock.Time, result.UpdatedAt)
}

func TestEquipTitle_UnlockStateCheckedBeforeTitleGrant(t *testing.T) {
	te := newTestEngine(t)

	// "first_opening" grants no title and is also locked; the unlock check
	// runs first, so the locked state is what the client hears about.
	_, err := te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "first_opening",
	})
	assert.ErrorIs(t, err, shared.ErrNotUnlocked)
	assert.NotErrorIs(t, err, shared.ErrNoTitleForAchievement)

	// Once unlocked, the missing title becomes the rejection.
	te.recordStat(t, "capsules_opened", 1)
	_, err = te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "first_opening",
	})
	assert.ErrorIs(t, err, shared.ErrNoTitleForAchievement)
	assert.NotErrorIs(t, err, shared.ErrNotUnlocked)
}

func TestEquipTitle_RejectedWhenLocked(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "night_owl",
	})
	assert.ErrorIs(t, err, shared.ErrNotUnlocked)
}

func TestEquipTitle_RejectionLeavesProfileUntouched(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	_, err = te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)

	_, err = te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "night_owl",
	})
	require.Error(t, err)

	profile, err := te.profiles.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, shared.AchievementID("founding_member"), profile.Equipped)
}

// faultyLedger simulates an unreachable unlock ledger.
type faultyLedger struct {
	progression.Ledger
	err error
}

func (l *faultyLedger) IsUnlocked(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (bool, error) {
	return false, l.err
}

func TestEquipTitle_FailsClosedOnLedgerError(t *testing.T) {
	profiles := memory.NewProfileRepository()
	storeErr := shared.WrapError("progression", "IsUnlocked",
		shared.ErrServiceUnavailable, "unlock ledger unavailable", errors.New("connection refused"))

	engine, err := New(Dependencies{
		Catalog:     catalog.Default(),
		StatRepo:    memory.NewStatRepository(),
		Ledger:      &faultyLedger{Ledger: memory.NewLedger(), err: storeErr},
		ProfileRepo: profiles,
	})
	require.NoError(t, err)

	// An unreachable ledger must surface as a fault, never as "not unlocked".
	_, err = engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.Error(t, err)
	assert.True(t, shared.IsPersistenceFault(err))
	assert.False(t, shared.IsEquipRejection(err))

	profile, err := profiles.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, profile.HasTitle())
}

func TestClearTitle_NoopWhenNothingEquipped(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.engine.ClearTitle(context.Background(), command.ClearTitleCommand{UserID: testUser})
	require.NoError(t, err)
	assert.True(t, result.Equipped.IsEmpty())
	assert.Empty(t, result.Title)
}

func TestClearTitle_RemovesEquippedTitle(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	_, err = te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)

	_, err = te.engine.ClearTitle(context.Background(), command.ClearTitleCommand{UserID: testUser})
	require.NoError(t, err)

	titles, err := te.engine.GetTitles(context.Background(), query.GetTitlesQuery{UserID: testUser})
	require.NoError(t, err)
	assert.Empty(t, titles.CurrentTitle)
}

func TestListAchievements_ProgressAndUnlockState(t *testing.T) {
	te := newTestEngine(t)
	te.recordStat(t, "capsules_created", 5)

	result, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{UserID: testUser})
	require.NoError(t, err)

	assert.Equal(t, catalog.DefaultVersion, result.CatalogVersion)
	assert.Equal(t, 1, result.UnlockedCount)
	assert.Len(t, result.Achievements, catalog.Default().Len())

	views := make(map[shared.AchievementID]query.AchievementView, len(result.Achievements))
	for _, v := range result.Achievements {
		views[v.ID] = v
	}

	first := views["first_capsule"]
	assert.True(t, first.Unlocked)
	assert.True(t, first.RecentlyUnlocked)
	assert.Equal(t, shared.MaxPercent, first.Progress)
	assert.Equal(t, te.clock.Time, first.UnlockedAt)

	collector := views["capsule_collector"]
	assert.False(t, collector.Unlocked)
	assert.Equal(t, shared.Percent(50), collector.Progress)
	assert.True(t, collector.UnlockedAt.IsZero())
}

func TestListAchievements_RecentBadgeExpires(t *testing.T) {
	te := newTestEngine(t)
	te.recordStat(t, "capsules_created", 1)

	te.clock.Time = te.clock.Time.Add(progression.RecencyWindow + time.Hour)

	result, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{UserID: testUser})
	require.NoError(t, err)

	for _, v := range result.Achievements {
		if v.ID == "first_capsule" {
			assert.True(t, v.Unlocked)
			assert.False(t, v.RecentlyUnlocked)
		}
	}
}

func TestListAchievements_CategoryFilter(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{
		UserID:   testUser,
		Category: "streaks",
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Achievements)
	for _, v := range result.Achievements {
		assert.Equal(t, "streaks", v.Category)
	}
}

func TestListAchievements_RarityFromPublishedSheet(t *testing.T) {
	te := newTestEngine(t)

	sheet := progression.BuildRaritySheet(
		[]shared.AchievementID{"first_capsule"},
		map[shared.AchievementID]int64{"first_capsule": 1},
		4,
		te.clock.Time,
	)
	require.NoError(t, te.rarityStore.Publish(context.Background(), sheet))

	result, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{UserID: testUser})
	require.NoError(t, err)

	for _, v := range result.Achievements {
		switch v.ID {
		case "first_capsule":
			assert.Equal(t, shared.Percent(25), v.HolderPercent)
		default:
			// Ids the sheet never scanned fall back to zero, not an error.
			assert.Equal(t, shared.Percent(0), v.HolderPercent)
		}
	}
}

func TestGetTitles_PickerView(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.TriggerUnlock(context.Background(), command.TriggerUnlockCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)
	_, err = te.engine.EquipTitle(context.Background(), command.EquipTitleCommand{
		UserID:        testUser,
		AchievementID: "founding_member",
	})
	require.NoError(t, err)

	result, err := te.engine.GetTitles(context.Background(), query.GetTitlesQuery{UserID: testUser})
	require.NoError(t, err)

	assert.Equal(t, "Founder", result.CurrentTitle)
	assert.Equal(t, shared.AchievementID("founding_member"), result.Equipped)
	assert.Equal(t, 1, result.UnlockedCount)
	assert.Equal(t, len(catalog.Default().TitleBearing()), result.TotalCount)
	assert.Len(t, result.Titles, result.TotalCount)

	for _, v := range result.Titles {
		if v.AchievementID == "founding_member" {
			assert.True(t, v.Unlocked)
			assert.True(t, v.Equipped)
		} else {
			assert.False(t, v.Equipped)
		}
	}
}

func TestListAchievements_Projections(t *testing.T) {
	te := newTestEngine(t)
	te.recordStat(t, "capsules_created", 1)

	result, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{UserID: testUser})
	require.NoError(t, err)

	byCategory := query.GroupByCategory(result.Achievements)
	assert.NotEmpty(t, byCategory["capsules"])
	assert.NotEmpty(t, byCategory["streaks"])

	byRarity := query.GroupByRarity(result.Achievements)
	assert.NotEmpty(t, byRarity[catalog.RarityLegendary])

	recent := query.RecentUnlocks(result.Achievements)
	require.Len(t, recent, 1)
	assert.Equal(t, shared.AchievementID("first_capsule"), recent[0].ID)
}

func TestListAchievements_UnlocksInWindow(t *testing.T) {
	te := newTestEngine(t)
	te.recordStat(t, "capsules_created", 1)

	view, err := te.engine.ListAchievements(context.Background(), query.ListAchievementsQuery{UserID: testUser})
	require.NoError(t, err)

	window := shared.TimeRange{
		From: te.clock.Time.Add(-time.Hour),
		To:   te.clock.Time.Add(time.Hour),
	}
	in := query.UnlocksIn(view.Achievements, window)
	require.Len(t, in, 1)
	assert.Equal(t, shared.AchievementID("first_capsule"), in[0].ID)

	before := shared.TimeRange{
		From: te.clock.Time.Add(-2 * time.Hour),
		To:   te.clock.Time.Add(-time.Hour),
	}
	assert.Empty(t, query.UnlocksIn(view.Achievements, before))

	// The zero range defaults to the trailing week of wall-clock time,
	// which never reaches back to the pinned test clock.
	assert.Empty(t, query.UnlocksIn(view.Achievements, shared.TimeRange{}))
}

func TestGetRarity_MissingSheetServesZeroFigures(t *testing.T) {
	te := newTestEngine(t)

	result, err := te.engine.GetRarity(context.Background(), query.GetRarityQuery{
		AchievementIDs: []shared.AchievementID{"first_capsule", "night_owl"},
	})
	require.NoError(t, err)

	assert.True(t, result.ComputedAt.IsZero())
	require.Len(t, result.Figures, 2)
	for _, f := range result.Figures {
		assert.Equal(t, shared.Percent(0), f.HolderPercent)
		assert.Zero(t, f.Holders)
	}
}

func TestGetRarity_ServesPublishedSheet(t *testing.T) {
	te := newTestEngine(t)

	sheet := progression.BuildRaritySheet(
		[]shared.AchievementID{"first_capsule", "night_owl"},
		map[shared.AchievementID]int64{"first_capsule": 3},
		10,
		te.clock.Time,
	)
	require.NoError(t, te.rarityStore.Publish(context.Background(), sheet))

	result, err := te.engine.GetRarity(context.Background(), query.GetRarityQuery{
		AchievementIDs: []shared.AchievementID{"first_capsule"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.TotalUsers)
	assert.Equal(t, te.clock.Time, result.ComputedAt)
	require.Len(t, result.Figures, 1)
	assert.Equal(t, shared.Percent(30), result.Figures[0].HolderPercent)
	assert.Equal(t, int64(3), result.Figures[0].Holders)
}
