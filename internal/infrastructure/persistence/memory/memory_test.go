package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
)

const (
	userA = shared.UserID("3a9f1c20-6b7d-4e8a-9c2f-1d5e8b7a6c40")
	userB = shared.UserID("7c1d2e30-9f4a-4b5c-8d6e-2f7a9b0c1d2e")
)

func TestStatRepository_GetMissingIsNotFound(t *testing.T) {
	repo := NewStatRepository()

	_, err := repo.Get(context.Background(), userA)
	assert.True(t, shared.IsNotFound(err))
}

func TestStatRepository_SaveStoresIndependentCopy(t *testing.T) {
	repo := NewStatRepository()

	snapshot := stats.NewSnapshot(userA)
	require.NoError(t, snapshot.Apply(stats.Update{Path: "capsules_created", Value: 3, Mode: stats.UpdateIncrement}))
	require.NoError(t, repo.Save(context.Background(), snapshot))

	// Mutating the caller's copy must not leak into the store.
	require.NoError(t, snapshot.Apply(stats.Update{Path: "capsules_created", Value: 100, Mode: stats.UpdateSet}))

	stored, err := repo.Get(context.Background(), userA)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.Resolve("capsules_created"))

	count, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLedger_TryUnlockIdempotent(t *testing.T) {
	ledger := NewLedger()
	first := progression.NewUnlockRecord(userA, "first_capsule",
		time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	created, existing, err := ledger.TryUnlock(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, existing)

	later := progression.NewUnlockRecord(userA, "first_capsule",
		time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC))
	created, existing, err = ledger.TryUnlock(context.Background(), later)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UnlockedAt, existing.UnlockedAt, "original timestamp wins")
}

func TestLedger_ConcurrentTryUnlockCreatesOnce(t *testing.T) {
	ledger := NewLedger()
	record := progression.NewUnlockRecord(userA, "first_capsule", time.Now().UTC())

	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := ledger.TryUnlock(context.Background(), record)
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), created.Load())
}

func TestLedger_ListByUserMostRecentFirst(t *testing.T) {
	ledger := NewLedger()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for i, id := range []shared.AchievementID{"first_capsule", "week_streak", "night_owl"} {
		_, _, err := ledger.TryUnlock(context.Background(),
			progression.NewUnlockRecord(userA, id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, _, err := ledger.TryUnlock(context.Background(),
		progression.NewUnlockRecord(userB, "first_capsule", base))
	require.NoError(t, err)

	records, err := ledger.ListByUser(context.Background(), userA)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, shared.AchievementID("night_owl"), records[0].AchievementID)
	assert.Equal(t, shared.AchievementID("first_capsule"), records[2].AchievementID)
}

func TestLedger_CountHolders(t *testing.T) {
	ledger := NewLedger()
	at := time.Now().UTC()

	_, _, err := ledger.TryUnlock(context.Background(), progression.NewUnlockRecord(userA, "first_capsule", at))
	require.NoError(t, err)
	_, _, err = ledger.TryUnlock(context.Background(), progression.NewUnlockRecord(userB, "first_capsule", at))
	require.NoError(t, err)
	_, _, err = ledger.TryUnlock(context.Background(), progression.NewUnlockRecord(userA, "night_owl", at))
	require.NoError(t, err)

	counts, err := ledger.CountHolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["first_capsule"])
	assert.Equal(t, int64(1), counts["night_owl"])
	assert.NotContains(t, counts, shared.AchievementID("year_streak"))
}

func TestProfileRepository_MissingProfileIsEmpty(t *testing.T) {
	repo := NewProfileRepository()

	profile, err := repo.Get(context.Background(), userA)
	require.NoError(t, err)
	assert.False(t, profile.HasTitle())
	assert.Equal(t, userA, profile.UserID)
}

func TestProfileRepository_SaveAndGet(t *testing.T) {
	repo := NewProfileRepository()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	profile := progression.NewTitleProfile(userA)
	profile.Equip("founding_member", now)
	require.NoError(t, repo.Save(context.Background(), profile))

	// Later caller mutations stay out of the store.
	profile.Clear(now.Add(time.Hour))

	stored, err := repo.Get(context.Background(), userA)
	require.NoError(t, err)
	assert.Equal(t, shared.AchievementID("founding_member"), stored.Equipped)
	assert.Equal(t, now, stored.UpdatedAt)
}

func TestRarityStore_LatestBeforePublishIsNotFound(t *testing.T) {
	store := NewRarityStore()

	_, err := store.Latest(context.Background())
	assert.True(t, shared.IsNotFound(err))
}

func TestRarityStore_PublishReplacesSheet(t *testing.T) {
	store := NewRarityStore()
	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	first := progression.BuildRaritySheet(
		[]shared.AchievementID{"first_capsule"},
		map[shared.AchievementID]int64{"first_capsule": 1}, 4, at)
	require.NoError(t, store.Publish(context.Background(), first))

	second := progression.BuildRaritySheet(
		[]shared.AchievementID{"first_capsule"},
		map[shared.AchievementID]int64{"first_capsule": 2}, 4, at.Add(time.Hour))
	require.NoError(t, store.Publish(context.Background(), second))

	sheet, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, shared.Percent(50), sheet.Figure("first_capsule").HolderPercent)
	assert.Equal(t, at.Add(time.Hour), sheet.ComputedAt)

	// The returned sheet is a copy; mutating it cannot corrupt the store.
	sheet.Figures["first_capsule"] = progression.RarityFigure{AchievementID: "first_capsule"}
	again, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, shared.Percent(50), again.Figure("first_capsule").HolderPercent)
}
