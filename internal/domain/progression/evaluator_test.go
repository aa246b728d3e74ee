package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
)

const testUser = shared.UserID("3a9f1c20-6b7d-4e8a-9c2f-1d5e8b7a6c40")

func def(id string, stat string, threshold float64) catalog.AchievementDefinition {
	d := catalog.AchievementDefinition{
		ID:     shared.AchievementID(id),
		Name:   id,
		Rarity: catalog.RarityCommon,
	}
	if stat != "" {
		d.Criteria = &catalog.UnlockCriteria{Stat: shared.StatPath(stat), Threshold: threshold}
	}
	return d
}

func snapshotWith(t *testing.T, values map[string]float64) *stats.Snapshot {
	t.Helper()
	s, err := stats.FromFlat(testUser, values, time.Now().UTC())
	require.NoError(t, err)
	return s
}

func TestEvaluate_ThresholdMet(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 10})

	ev := Evaluate(def("capsule_collector", "capsules_created", 10), s)

	assert.True(t, ev.Satisfied)
	assert.Equal(t, shared.MaxPercent, ev.Progress)
	assert.Equal(t, 10.0, ev.Value)
}

func TestEvaluate_PartialProgress(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 7})

	ev := Evaluate(def("capsule_collector", "capsules_created", 10), s)

	assert.False(t, ev.Satisfied)
	assert.InDelta(t, 70.0, ev.Progress.Float64(), 1e-9)
}

func TestEvaluate_ProgressSaturatesAt100(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 250})

	ev := Evaluate(def("capsule_collector", "capsules_created", 10), s)

	assert.True(t, ev.Satisfied)
	assert.Equal(t, shared.MaxPercent, ev.Progress)
}

func TestEvaluate_MissingStatPathIsZeroProgress(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 3})

	ev := Evaluate(def("night_owl", "capsules_by_hour.night", 5), s)

	assert.False(t, ev.Satisfied)
	assert.Equal(t, shared.MinPercent, ev.Progress)
	assert.Equal(t, 0.0, ev.Value)
}

func TestEvaluate_NoCriteriaNeverSatisfies(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 1000})

	ev := Evaluate(def("founding_member", "", 0), s)

	assert.False(t, ev.Satisfied)
	assert.Equal(t, shared.MinPercent, ev.Progress)
}

func TestEvaluate_NonPositiveThresholdNeverSatisfies(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"capsules_created": 1000})

	for _, threshold := range []float64{0, -5} {
		ev := Evaluate(def("broken", "capsules_created", threshold), s)
		assert.False(t, ev.Satisfied, "threshold %v", threshold)
		assert.Equal(t, shared.MinPercent, ev.Progress, "threshold %v", threshold)
	}
}

func TestEvaluate_NilSnapshotIsZero(t *testing.T) {
	ev := Evaluate(def("first_capsule", "capsules_created", 1), nil)

	assert.False(t, ev.Satisfied)
	assert.Equal(t, shared.MinPercent, ev.Progress)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	s := snapshotWith(t, map[string]float64{"streak.current": 6})
	d := def("week_streak", "streak.current", 7)

	first := Evaluate(d, s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(d, s))
	}
}

func TestNewlySatisfied_SkipsAlreadyUnlocked(t *testing.T) {
	cat, err := catalog.New("test", []catalog.AchievementDefinition{
		def("first_capsule", "capsules_created", 1),
		def("capsule_collector", "capsules_created", 10),
		def("night_owl", "capsules_by_hour.night", 5),
	})
	require.NoError(t, err)

	s := snapshotWith(t, map[string]float64{"capsules_created": 12})
	unlocked := map[shared.AchievementID]bool{"first_capsule": true}

	got := NewlySatisfied(cat, s, unlocked)

	require.Len(t, got, 1)
	assert.Equal(t, shared.AchievementID("capsule_collector"), got[0].ID)
}

func TestEvaluateAll_CatalogOrder(t *testing.T) {
	cat, err := catalog.New("test", []catalog.AchievementDefinition{
		def("b_second", "capsules_created", 2),
		def("a_first", "capsules_created", 1),
	})
	require.NoError(t, err)

	evs := EvaluateAll(cat, snapshotWith(t, map[string]float64{"capsules_created": 1}))

	require.Len(t, evs, 2)
	assert.Equal(t, shared.AchievementID("a_first"), evs[0].AchievementID)
	assert.True(t, evs[0].Satisfied)
	assert.False(t, evs[1].Satisfied)
}
