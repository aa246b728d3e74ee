package command

import (
	"context"
	"errors"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EQUIP TITLE COMMAND
// Points the user's profile at an unlocked, title-bearing achievement, or
// clears the selection. A rejected equip leaves the profile untouched.
// ══════════════════════════════════════════════════════════════════════════════

// EquipTitleCommand contains the data to equip a title.
type EquipTitleCommand struct {
	// UserID is the user equipping the title.
	UserID shared.UserID

	// AchievementID is the achievement whose title is to be displayed.
	AchievementID shared.AchievementID
}

// Validate validates the command.
func (c EquipTitleCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("equip_title", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	if !c.AchievementID.IsValid() {
		return shared.NewDomainError("equip_title", "Validate", shared.ErrInvalidID, "invalid achievement id")
	}
	return nil
}

// ClearTitleCommand contains the data to clear the equipped title.
type ClearTitleCommand struct {
	// UserID is the user clearing their title.
	UserID shared.UserID
}

// Validate validates the command.
func (c ClearTitleCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("clear_title", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	return nil
}

// EquipTitleResult contains the result of an equip or clear.
type EquipTitleResult struct {
	// UserID is the affected user.
	UserID shared.UserID

	// Equipped is the achievement now backing the displayed title. Empty
	// after a clear.
	Equipped shared.AchievementID

	// Title is the displayed title text. Empty after a clear.
	Title string

	// UpdatedAt is when the profile changed.
	UpdatedAt time.Time
}

// EquipTitleHandler handles EquipTitleCommand and ClearTitleCommand.
type EquipTitleHandler struct {
	catalog     *catalog.Catalog
	ledger      progression.Ledger
	profileRepo progression.ProfileRepository
	eventBus    shared.EventPublisher
	clock       timeutil.Clock
	metrics     *metrics.Manager
	log         *logger.Logger
	userLocks   *UserLocks
}

// NewEquipTitleHandler creates the handler.
func NewEquipTitleHandler(
	cat *catalog.Catalog,
	ledger progression.Ledger,
	profileRepo progression.ProfileRepository,
	eventBus shared.EventPublisher,
	clock timeutil.Clock,
	m *metrics.Manager,
	log *logger.Logger,
	userLocks *UserLocks,
) *EquipTitleHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	if userLocks == nil {
		userLocks = NewUserLocks(0)
	}
	return &EquipTitleHandler{
		catalog:     cat,
		ledger:      ledger,
		profileRepo: profileRepo,
		eventBus:    eventBus,
		clock:       clock,
		metrics:     m,
		log:         log.With(logger.Component("equip_title")),
		userLocks:   userLocks,
	}
}

// HandleEquip validates the equip preconditions and updates the profile.
//
// Checks run in a fixed order: the achievement must exist in the catalog
// (shared.ErrUnknownAchievement), must be unlocked by this user
// (shared.ErrNotUnlocked), and must grant a title
// (shared.ErrNoTitleForAchievement). On any failure the stored profile is
// unchanged.
func (h *EquipTitleHandler) HandleEquip(ctx context.Context, cmd EquipTitleCommand) (*EquipTitleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unlock := h.userLocks.Lock(cmd.UserID)
	defer unlock()

	def, err := h.catalog.Get(cmd.AchievementID)
	if err != nil {
		return nil, err
	}

	unlocked, err := h.ledger.IsUnlocked(ctx, cmd.UserID, cmd.AchievementID)
	if err != nil {
		// Fail closed: an unreachable ledger must not read as "not unlocked".
		return nil, err
	}

	if err := progression.ValidateEquip(def, unlocked); err != nil {
		if h.metrics != nil {
			reason := "no_title"
			if errors.Is(err, shared.ErrNotUnlocked) {
				reason = "not_unlocked"
			}
			h.metrics.RecordEquipRejection(reason)
		}
		return nil, err
	}

	profile, err := h.profileRepo.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	profile.Equip(cmd.AchievementID, now)

	if err := h.profileRepo.Save(ctx, profile); err != nil {
		return nil, err
	}

	if h.metrics != nil {
		h.metrics.RecordTitleEquip()
	}
	if h.eventBus != nil {
		if err := h.eventBus.Publish(shared.NewTitleEquippedEvent(cmd.UserID, cmd.AchievementID, def.Title)); err != nil {
			h.log.Warn("failed to publish equip event", logger.Err(err))
		}
	}

	return &EquipTitleResult{
		UserID:    cmd.UserID,
		Equipped:  cmd.AchievementID,
		Title:     def.Title,
		UpdatedAt: now,
	}, nil
}

// HandleClear removes the equipped title. Clearing when nothing is equipped
// succeeds as a no-op.
func (h *EquipTitleHandler) HandleClear(ctx context.Context, cmd ClearTitleCommand) (*EquipTitleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unlock := h.userLocks.Lock(cmd.UserID)
	defer unlock()

	profile, err := h.profileRepo.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	hadTitle := profile.HasTitle()
	profile.Clear(now)

	if err := h.profileRepo.Save(ctx, profile); err != nil {
		return nil, err
	}

	if hadTitle {
		if h.metrics != nil {
			h.metrics.RecordTitleClear()
		}
		if h.eventBus != nil {
			if err := h.eventBus.Publish(shared.NewTitleClearedEvent(cmd.UserID)); err != nil {
				h.log.Warn("failed to publish clear event", logger.Err(err))
			}
		}
	}

	return &EquipTitleResult{
		UserID:    cmd.UserID,
		UpdatedAt: now,
	}, nil
}
