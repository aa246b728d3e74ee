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
// TITLE PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TitleProfileRepository implements progression.ProfileRepository for
// PostgreSQL. A missing row and a cleared title are the same state, so Get
// answers an empty profile instead of an error.
type TitleProfileRepository struct {
	conn    *Connection
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewTitleProfileRepository creates a new TitleProfileRepository.
func NewTitleProfileRepository(conn *Connection) *TitleProfileRepository {
	return &TitleProfileRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(),
		breaker: circuitbreaker.DatabaseBreaker(nil),
	}
}

// Get loads a user's title profile.
func (r *TitleProfileRepository) Get(ctx context.Context, userID shared.UserID) (*progression.TitleProfile, error) {
	query := `
		SELECT equipped_achievement_id, updated_at
		FROM title_profiles
		WHERE user_id = $1
	`

	profile := progression.NewTitleProfile(userID)

	err := r.execute(ctx, func(ctx context.Context) error {
		var (
			equipped  string
			updatedAt time.Time
		)
		row := r.conn.QueryRow(ctx, query, userID.String())
		if err := row.Scan(&equipped, &updatedAt); err != nil {
			if IsNoRows(err) {
				return nil
			}
			return retry.Retryable(err)
		}
		profile.Equipped = shared.AchievementID(equipped)
		profile.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return nil, r.unavailable("Get", err)
	}
	return profile, nil
}

// Save upserts a user's title profile.
func (r *TitleProfileRepository) Save(ctx context.Context, profile *progression.TitleProfile) error {
	query := `
		INSERT INTO title_profiles (user_id, equipped_achievement_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			equipped_achievement_id = EXCLUDED.equipped_achievement_id,
			updated_at = EXCLUDED.updated_at
	`

	err := r.execute(ctx, func(ctx context.Context) error {
		if _, err := r.conn.Exec(ctx, query,
			profile.UserID.String(), profile.Equipped.String(), profile.UpdatedAt); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return r.unavailable("Save", err)
	}
	return nil
}

func (r *TitleProfileRepository) execute(ctx context.Context, op func(ctx context.Context) error) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, op)
	})
}

func (r *TitleProfileRepository) unavailable(op string, err error) error {
	return shared.WrapError("titles", op, shared.ErrServiceUnavailable,
		"title profile store unavailable", err)
}
