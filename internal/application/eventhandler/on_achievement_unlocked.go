// Package eventhandler contains subscribers that react to domain events.
package eventhandler

import (
	"context"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED
// Nudges the published rarity sheet between scheduled scans: each unlock
// increments the achievement's holder count in the published sheet so the
// figure drifts toward reality instead of waiting for the next full scan.
// Best-effort by design; the scheduled scan remains the source of truth.
// ══════════════════════════════════════════════════════════════════════════════

// RarityNudger adjusts published rarity figures on unlock events.
type RarityNudger struct {
	store progression.RarityStore
	log   *logger.Logger
}

// NewRarityNudger creates the handler.
func NewRarityNudger(store progression.RarityStore, log *logger.Logger) *RarityNudger {
	if log == nil {
		log = logger.Default()
	}
	return &RarityNudger{
		store: store,
		log:   log.With(logger.Component("rarity_nudger")),
	}
}

// Register subscribes the handler on the bus.
func (n *RarityNudger) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventAchievementUnlocked, n.handle)
}

func (n *RarityNudger) handle(event shared.Event) error {
	unlocked, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}

	ctx := context.Background()

	sheet, err := n.store.Latest(ctx)
	if err != nil {
		// No sheet to nudge yet; the first scheduled scan will publish one.
		if !shared.IsNotFound(err) {
			n.log.Warn("rarity nudge skipped", logger.Err(err))
		}
		return nil
	}

	if sheet.Figures == nil {
		return nil
	}

	id := shared.AchievementID(unlocked.AchievementID)
	figure := sheet.Figure(id)
	sheet.Figures[id] = progression.ComputeRarity(id, figure.Holders+1, sheet.TotalUsers)

	if err := n.store.Publish(ctx, sheet); err != nil {
		n.log.Warn("rarity nudge publish failed",
			logger.Achievement(unlocked.AchievementID), logger.Err(err))
	}
	return nil
}
