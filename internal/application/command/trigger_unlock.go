package command

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER UNLOCK COMMAND
// Explicit unlock path for achievements without stat criteria (launch
// cohorts, manual grants). The ledger's idempotency applies here exactly as
// in the automatic flow: repeat triggers are absorbed.
// ══════════════════════════════════════════════════════════════════════════════

// TriggerUnlockCommand contains the data for an explicit unlock.
type TriggerUnlockCommand struct {
	// UserID is the user receiving the achievement.
	UserID shared.UserID

	// AchievementID is the achievement to unlock. Must exist in the catalog.
	AchievementID shared.AchievementID
}

// Validate validates the command.
func (c TriggerUnlockCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("trigger_unlock", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	if !c.AchievementID.IsValid() {
		return shared.NewDomainError("trigger_unlock", "Validate", shared.ErrInvalidID, "invalid achievement id")
	}
	return nil
}

// TriggerUnlockResult contains the result of an explicit unlock.
type TriggerUnlockResult struct {
	// UserID is the affected user.
	UserID shared.UserID

	// AchievementID is the triggered achievement.
	AchievementID shared.AchievementID

	// Created reports whether this trigger produced the unlock. False means
	// the user already held the achievement.
	Created bool

	// UnlockedAt is the authoritative unlock time from the ledger.
	UnlockedAt time.Time
}

// TriggerUnlockHandler handles TriggerUnlockCommand.
type TriggerUnlockHandler struct {
	catalog   *catalog.Catalog
	ledger    progression.Ledger
	eventBus  shared.EventPublisher
	clock     timeutil.Clock
	metrics   *metrics.Manager
	log       *logger.Logger
	userLocks *UserLocks
}

// NewTriggerUnlockHandler creates the handler.
func NewTriggerUnlockHandler(
	cat *catalog.Catalog,
	ledger progression.Ledger,
	eventBus shared.EventPublisher,
	clock timeutil.Clock,
	m *metrics.Manager,
	log *logger.Logger,
	userLocks *UserLocks,
) *TriggerUnlockHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	if userLocks == nil {
		userLocks = NewUserLocks(0)
	}
	return &TriggerUnlockHandler{
		catalog:   cat,
		ledger:    ledger,
		eventBus:  eventBus,
		clock:     clock,
		metrics:   m,
		log:       log.With(logger.Component("trigger_unlock")),
		userLocks: userLocks,
	}
}

// Handle records the unlock. An id missing from the catalog is an error;
// a repeat trigger succeeds with Created=false and the original timestamp.
func (h *TriggerUnlockHandler) Handle(ctx context.Context, cmd TriggerUnlockCommand) (*TriggerUnlockResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	def, err := h.catalog.Get(cmd.AchievementID)
	if err != nil {
		return nil, err
	}

	unlock := h.userLocks.Lock(cmd.UserID)
	defer unlock()

	record := progression.NewUnlockRecord(cmd.UserID, cmd.AchievementID, h.clock.Now())
	created, existing, err := h.ledger.TryUnlock(ctx, record)
	if err != nil {
		return nil, err
	}

	unlockedAt := record.UnlockedAt
	if !created {
		unlockedAt = existing.UnlockedAt
		if h.metrics != nil {
			h.metrics.RecordDuplicateUnlock()
		}
	} else {
		if h.metrics != nil {
			h.metrics.RecordUnlock(def.Rarity.String())
		}
		h.log.Info("achievement unlocked by trigger",
			logger.UserID(cmd.UserID.String()),
			logger.Achievement(cmd.AchievementID.String()))
		if h.eventBus != nil {
			event := shared.NewAchievementUnlockedEvent(
				cmd.UserID, cmd.AchievementID, def.Rarity.String(), def.Title, record.UnlockedAt)
			if err := h.eventBus.Publish(event); err != nil {
				h.log.Warn("failed to publish unlock event", logger.Err(err))
			}
		}
	}

	return &TriggerUnlockResult{
		UserID:        cmd.UserID,
		AchievementID: cmd.AchievementID,
		Created:       created,
		UnlockedAt:    unlockedAt,
	}, nil
}
