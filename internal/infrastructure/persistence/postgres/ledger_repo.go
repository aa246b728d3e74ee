package postgres

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/circuitbreaker"
	"github.com/capsulehub/capsule-progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK LEDGER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progression.Ledger for PostgreSQL. The
// (user_id, achievement_id) primary key makes TryUnlock atomic: under
// concurrent duplicate triggers exactly one insert wins the conflict.
type LedgerRepository struct {
	conn    *Connection
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
		breaker: circuitbreaker.DatabaseBreaker(nil),
	}
}

// TryUnlock records an unlock if the pair has no record yet. The insert
// and the fallback read run in one round trip: ON CONFLICT DO NOTHING
// plus a union with the existing row.
func (r *LedgerRepository) TryUnlock(ctx context.Context, record progression.UnlockRecord) (bool, progression.UnlockRecord, error) {
	query := `
		WITH attempt AS (
			INSERT INTO unlock_ledger (user_id, achievement_id, unlocked_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, achievement_id) DO NOTHING
			RETURNING unlocked_at, TRUE AS created
		)
		SELECT unlocked_at, created FROM attempt
		UNION ALL
		SELECT unlocked_at, FALSE FROM unlock_ledger
		WHERE user_id = $1 AND achievement_id = $2
		LIMIT 1
	`

	var (
		unlockedAt time.Time
		created    bool
	)

	err := r.execute(ctx, func(ctx context.Context) error {
		row := r.conn.QueryRow(ctx, query,
			record.UserID.String(), record.AchievementID.String(), record.UnlockedAt)
		if err := row.Scan(&unlockedAt, &created); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return false, progression.UnlockRecord{}, r.unavailable("TryUnlock", err)
	}

	existing := progression.NewUnlockRecord(record.UserID, record.AchievementID, unlockedAt)
	return created, existing, nil
}

// IsUnlocked reports whether the pair has a ledger record.
func (r *LedgerRepository) IsUnlocked(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM unlock_ledger
			WHERE user_id = $1 AND achievement_id = $2
		)
	`

	var unlocked bool
	err := r.execute(ctx, func(ctx context.Context) error {
		row := r.conn.QueryRow(ctx, query, userID.String(), achievementID.String())
		if err := row.Scan(&unlocked); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return false, r.unavailable("IsUnlocked", err)
	}
	return unlocked, nil
}

// ListByUser returns all of a user's unlock records, most recent first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]progression.UnlockRecord, error) {
	query := `
		SELECT achievement_id, unlocked_at
		FROM unlock_ledger
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`

	var records []progression.UnlockRecord
	err := r.execute(ctx, func(ctx context.Context) error {
		rows, err := r.conn.Query(ctx, query, userID.String())
		if err != nil {
			return retry.Retryable(err)
		}
		defer rows.Close()

		records = records[:0]
		for rows.Next() {
			var (
				achievementID string
				unlockedAt    time.Time
			)
			if err := rows.Scan(&achievementID, &unlockedAt); err != nil {
				return retry.Retryable(err)
			}
			records = append(records, progression.NewUnlockRecord(
				userID, shared.AchievementID(achievementID), unlockedAt))
		}
		if err := rows.Err(); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, r.unavailable("ListByUser", err)
	}
	return records, nil
}

// CountHolders returns distinct holder counts keyed by achievement id.
func (r *LedgerRepository) CountHolders(ctx context.Context) (map[shared.AchievementID]int64, error) {
	query := `
		SELECT achievement_id, COUNT(DISTINCT user_id)
		FROM unlock_ledger
		GROUP BY achievement_id
	`

	counts := make(map[shared.AchievementID]int64)
	err := r.execute(ctx, func(ctx context.Context) error {
		rows, err := r.conn.Query(ctx, query)
		if err != nil {
			return retry.Retryable(err)
		}
		defer rows.Close()

		clear(counts)
		for rows.Next() {
			var (
				achievementID string
				holders       int64
			)
			if err := rows.Scan(&achievementID, &holders); err != nil {
				return retry.Retryable(err)
			}
			counts[shared.AchievementID(achievementID)] = holders
		}
		if err := rows.Err(); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, r.unavailable("CountHolders", err)
	}
	return counts, nil
}

func (r *LedgerRepository) execute(ctx context.Context, op func(ctx context.Context) error) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, op)
	})
}

func (r *LedgerRepository) unavailable(op string, err error) error {
	return shared.WrapError("progression", op, shared.ErrServiceUnavailable,
		"unlock ledger unavailable", err)
}
