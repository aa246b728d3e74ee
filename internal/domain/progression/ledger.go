package progression

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// UNLOCK LEDGER
// Append-only record of (user, achievement, unlockedAt). At most one record
// per pair; records are never updated or deleted.
// ═══════════════════════════════════════════════════════════════════════════

// RecencyWindow is how long an unlock counts as "recently unlocked" for
// presentation purposes (the new-badge indicator).
const RecencyWindow = 3 * 24 * time.Hour

// UnlockRecord is one immutable ledger entry.
type UnlockRecord struct {
	// UserID is the user who unlocked the achievement.
	UserID shared.UserID

	// AchievementID references the catalog definition.
	AchievementID shared.AchievementID

	// UnlockedAt is the fixed unlock timestamp (UTC).
	UnlockedAt time.Time
}

// NewUnlockRecord creates a ledger entry stamped with the given time.
func NewUnlockRecord(userID shared.UserID, achievementID shared.AchievementID, at time.Time) UnlockRecord {
	return UnlockRecord{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at.UTC(),
	}
}

// IsRecent reports whether the unlock happened within the recency window
// as of the given time.
func (r UnlockRecord) IsRecent(now time.Time) bool {
	return now.Sub(r.UnlockedAt) < RecencyWindow
}

// Ledger persists unlock records.
//
// TryUnlock is the only write path and is idempotent: the first call for a
// (user, achievement) pair creates the record and returns created=true; every
// later call is a no-op returning created=false with the original record.
// Implementations must make the insert atomic so that concurrent duplicate
// triggers cannot create two records or report created=true twice.
type Ledger interface {
	// TryUnlock records an unlock if the pair has no record yet.
	TryUnlock(ctx context.Context, record UnlockRecord) (created bool, existing UnlockRecord, err error)

	// IsUnlocked reports whether the pair has a ledger record.
	IsUnlocked(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (bool, error)

	// ListByUser returns all of a user's unlock records, most recent first.
	ListByUser(ctx context.Context, userID shared.UserID) ([]UnlockRecord, error)

	// CountHolders returns the number of distinct users holding each
	// achievement, keyed by achievement id. Achievements nobody holds are
	// absent from the map.
	CountHolders(ctx context.Context) (map[shared.AchievementID]int64, error)
}
