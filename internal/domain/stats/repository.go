package stats

import (
	"context"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// Repository persists user stat snapshots.
//
// Get returns shared.ErrNotFound (wrapped) when the user has no snapshot
// yet; callers that record stats create one lazily. Save upserts the whole
// snapshot. CountUsers returns the population size used as the rarity
// denominator: a user exists once their first stat event has been recorded.
type Repository interface {
	// Get loads a user's snapshot.
	Get(ctx context.Context, userID shared.UserID) (*Snapshot, error)

	// Save upserts a user's snapshot.
	Save(ctx context.Context, snapshot *Snapshot) error

	// CountUsers returns the number of users with a snapshot.
	CountUsers(ctx context.Context) (int64, error)
}
