package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/circuitbreaker"
	"github.com/capsulehub/capsule-progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STAT SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StatRepository implements stats.Repository for PostgreSQL. Snapshots are
// stored flattened: the nested tree becomes a JSONB map of dotted leaf
// paths, rebuilt on load.
type StatRepository struct {
	conn    *Connection
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewStatRepository creates a new StatRepository.
func NewStatRepository(conn *Connection) *StatRepository {
	return &StatRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
		// Missing rows are answers, not faults; they must not trip the circuit.
		breaker: circuitbreaker.DatabaseBreaker(nil,
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !shared.IsNotFound(err)
			})),
	}
}

// Get loads a user's snapshot. Returns shared.ErrNotFound (wrapped) when
// the user has never recorded a stat.
func (r *StatRepository) Get(ctx context.Context, userID shared.UserID) (*stats.Snapshot, error) {
	query := `
		SELECT entries, updated_at
		FROM stat_snapshots
		WHERE user_id = $1
	`

	var (
		entriesJSON []byte
		updatedAt   time.Time
	)

	err := r.execute(ctx, func(ctx context.Context) error {
		row := r.conn.QueryRow(ctx, query, userID.String())
		if err := row.Scan(&entriesJSON, &updatedAt); err != nil {
			if IsNoRows(err) {
				return retry.Permanent(shared.WrapError("stats", "Get", shared.ErrNotFound,
					"no snapshot for user", err))
			}
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, r.unavailable("Get", err)
	}

	flat := make(map[string]float64)
	if err := json.Unmarshal(entriesJSON, &flat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot entries: %w", err)
	}

	return stats.FromFlat(userID, flat, updatedAt)
}

// Save upserts a user's snapshot.
func (r *StatRepository) Save(ctx context.Context, snapshot *stats.Snapshot) error {
	entriesJSON, err := json.Marshal(snapshot.Flatten())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot entries: %w", err)
	}

	query := `
		INSERT INTO stat_snapshots (user_id, entries, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			entries = EXCLUDED.entries,
			updated_at = EXCLUDED.updated_at
	`

	err = r.execute(ctx, func(ctx context.Context) error {
		if _, err := r.conn.Exec(ctx, query,
			snapshot.UserID.String(), entriesJSON, snapshot.UpdatedAt); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return r.unavailable("Save", err)
	}
	return nil
}

// CountUsers returns the number of users with a snapshot.
func (r *StatRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.execute(ctx, func(ctx context.Context) error {
		row := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM stat_snapshots")
		if err := row.Scan(&count); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return 0, r.unavailable("CountUsers", err)
	}
	return count, nil
}

// execute runs an operation through the breaker and retrier.
func (r *StatRepository) execute(ctx context.Context, op func(ctx context.Context) error) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, op)
	})
}

func (r *StatRepository) unavailable(op string, err error) error {
	return shared.WrapError("stats", op, shared.ErrServiceUnavailable,
		"stat store unavailable", err)
}
