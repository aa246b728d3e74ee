package redis

import (
	"context"
	"errors"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/circuitbreaker"
	"github.com/capsulehub/capsule-progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RARITY STORE
// ══════════════════════════════════════════════════════════════════════════════

// rarityKey is the single key holding the published sheet. One key for the
// whole population keeps publish atomic: readers see either the old sheet
// or the new one, never a mix.
const rarityKey = PrefixRarity + "sheet"

// rarityFigureDoc is the wire form of one figure.
type rarityFigureDoc struct {
	AchievementID string  `json:"achievement_id"`
	HolderPercent float64 `json:"holder_percent"`
	Holders       int64   `json:"holders"`
}

// raritySheetDoc is the wire form of the published sheet.
type raritySheetDoc struct {
	Figures    []rarityFigureDoc `json:"figures"`
	TotalUsers int64             `json:"total_users"`
	ComputedAt time.Time         `json:"computed_at"`
}

// RarityStore implements progression.RarityStore on Redis. The sheet has
// no TTL: a stale sheet beats no sheet, and every scheduled scan replaces
// it wholesale.
type RarityStore struct {
	cache   *Cache
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewRarityStore creates a new RarityStore.
func NewRarityStore(cache *Cache) *RarityStore {
	return &RarityStore{
		cache:   cache,
		retrier: retry.CacheRetrier(),
		// A missing sheet is an answer, not a fault.
		breaker: circuitbreaker.CacheBreaker(nil,
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !shared.IsNotFound(err)
			})),
	}
}

// Latest returns the most recently published sheet. Returns
// shared.ErrNotFound (wrapped) when no sheet has ever been published.
func (s *RarityStore) Latest(ctx context.Context) (progression.RaritySheet, error) {
	var doc raritySheetDoc

	err := s.execute(ctx, func(ctx context.Context) error {
		if err := s.cache.Get(ctx, rarityKey, &doc); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				return retry.Permanent(shared.WrapError("progression", "Latest",
					shared.ErrNotFound, "no rarity sheet published", err))
			}
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return progression.RaritySheet{}, err
		}
		return progression.RaritySheet{}, s.unavailable("Latest", err)
	}

	sheet := progression.RaritySheet{
		Figures:    make(map[shared.AchievementID]progression.RarityFigure, len(doc.Figures)),
		TotalUsers: doc.TotalUsers,
		ComputedAt: doc.ComputedAt,
	}
	for _, f := range doc.Figures {
		id := shared.AchievementID(f.AchievementID)
		sheet.Figures[id] = progression.RarityFigure{
			AchievementID: id,
			HolderPercent: shared.ClampPercent(f.HolderPercent),
			Holders:       f.Holders,
		}
	}
	return sheet, nil
}

// Publish replaces the published sheet.
func (s *RarityStore) Publish(ctx context.Context, sheet progression.RaritySheet) error {
	doc := raritySheetDoc{
		Figures:    make([]rarityFigureDoc, 0, len(sheet.Figures)),
		TotalUsers: sheet.TotalUsers,
		ComputedAt: sheet.ComputedAt,
	}
	for _, f := range sheet.Figures {
		doc.Figures = append(doc.Figures, rarityFigureDoc{
			AchievementID: f.AchievementID.String(),
			HolderPercent: float64(f.HolderPercent),
			Holders:       f.Holders,
		})
	}

	err := s.execute(ctx, func(ctx context.Context) error {
		if err := s.cache.Set(ctx, rarityKey, doc, 0); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return s.unavailable("Publish", err)
	}
	return nil
}

func (s *RarityStore) execute(ctx context.Context, op func(ctx context.Context) error) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, op)
	})
}

func (s *RarityStore) unavailable(op string, err error) error {
	return shared.WrapError("progression", op, shared.ErrServiceUnavailable,
		"rarity store unavailable", err)
}
