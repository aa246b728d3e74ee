// Package memory provides in-memory implementations of the engine's
// persistence interfaces. Used in tests and local development; every
// implementation is safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// STAT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StatRepository implements stats.Repository in memory.
type StatRepository struct {
	mu        sync.RWMutex
	snapshots map[shared.UserID]*stats.Snapshot
}

// NewStatRepository creates an empty StatRepository.
func NewStatRepository() *StatRepository {
	return &StatRepository{
		snapshots: make(map[shared.UserID]*stats.Snapshot),
	}
}

// Get loads a user's snapshot.
func (r *StatRepository) Get(ctx context.Context, userID shared.UserID) (*stats.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.snapshots[userID]
	if !ok {
		return nil, shared.NewDomainError("stats", "Get", shared.ErrNotFound, "no snapshot for user")
	}
	return snapshot.Clone(), nil
}

// Save upserts a user's snapshot. The stored copy is independent of the
// caller's.
func (r *StatRepository) Save(ctx context.Context, snapshot *stats.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshot.UserID] = snapshot.Clone()
	return nil
}

// CountUsers returns the number of users with a snapshot.
func (r *StatRepository) CountUsers(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.snapshots)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK LEDGER
// ══════════════════════════════════════════════════════════════════════════════

type ledgerKey struct {
	userID        shared.UserID
	achievementID shared.AchievementID
}

// Ledger implements progression.Ledger in memory. TryUnlock is atomic
// under the mutex, so concurrent duplicate triggers resolve to exactly
// one created record.
type Ledger struct {
	mu      sync.RWMutex
	records map[ledgerKey]progression.UnlockRecord
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[ledgerKey]progression.UnlockRecord),
	}
}

// TryUnlock records an unlock if the pair has no record yet.
func (l *Ledger) TryUnlock(ctx context.Context, record progression.UnlockRecord) (bool, progression.UnlockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{userID: record.UserID, achievementID: record.AchievementID}
	if existing, ok := l.records[key]; ok {
		return false, existing, nil
	}

	l.records[key] = record
	return true, record, nil
}

// IsUnlocked reports whether the pair has a ledger record.
func (l *Ledger) IsUnlocked(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.records[ledgerKey{userID: userID, achievementID: achievementID}]
	return ok, nil
}

// ListByUser returns all of a user's unlock records, most recent first.
func (l *Ledger) ListByUser(ctx context.Context, userID shared.UserID) ([]progression.UnlockRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []progression.UnlockRecord
	for key, record := range l.records {
		if key.userID == userID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UnlockedAt.After(records[j].UnlockedAt)
	})
	return records, nil
}

// CountHolders returns distinct holder counts keyed by achievement id.
func (l *Ledger) CountHolders(ctx context.Context) (map[shared.AchievementID]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[shared.AchievementID]int64)
	for key := range l.records {
		counts[key.achievementID]++
	}
	return counts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TITLE PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements progression.ProfileRepository in memory.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[shared.UserID]progression.TitleProfile
}

// NewProfileRepository creates an empty ProfileRepository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[shared.UserID]progression.TitleProfile),
	}
}

// Get loads a user's title profile. Users without a stored profile get an
// empty one.
func (r *ProfileRepository) Get(ctx context.Context, userID shared.UserID) (*progression.TitleProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if profile, ok := r.profiles[userID]; ok {
		copied := profile
		return &copied, nil
	}
	return progression.NewTitleProfile(userID), nil
}

// Save upserts a user's title profile.
func (r *ProfileRepository) Save(ctx context.Context, profile *progression.TitleProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[profile.UserID] = *profile
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RARITY STORE
// ══════════════════════════════════════════════════════════════════════════════

// RarityStore implements progression.RarityStore in memory.
type RarityStore struct {
	mu        sync.RWMutex
	sheet     progression.RaritySheet
	published bool
}

// NewRarityStore creates an empty RarityStore.
func NewRarityStore() *RarityStore {
	return &RarityStore{}
}

// Latest returns the most recently published sheet.
func (s *RarityStore) Latest(ctx context.Context) (progression.RaritySheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.published {
		return progression.RaritySheet{}, shared.NewDomainError(
			"progression", "Latest", shared.ErrNotFound, "no rarity sheet published")
	}

	copied := progression.RaritySheet{
		Figures:    make(map[shared.AchievementID]progression.RarityFigure, len(s.sheet.Figures)),
		TotalUsers: s.sheet.TotalUsers,
		ComputedAt: s.sheet.ComputedAt,
	}
	for id, f := range s.sheet.Figures {
		copied.Figures[id] = f
	}
	return copied, nil
}

// Publish replaces the published sheet.
func (s *RarityStore) Publish(ctx context.Context, sheet progression.RaritySheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := progression.RaritySheet{
		Figures:    make(map[shared.AchievementID]progression.RarityFigure, len(sheet.Figures)),
		TotalUsers: sheet.TotalUsers,
		ComputedAt: sheet.ComputedAt,
	}
	for id, f := range sheet.Figures {
		copied.Figures[id] = f
	}

	s.sheet = copied
	s.published = true
	return nil
}
