package query

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TITLES QUERY
// The title picker: every title-bearing achievement with the user's unlock
// state, plus the currently equipped selection.
// ══════════════════════════════════════════════════════════════════════════════

// GetTitlesQuery asks for a user's title picker view.
type GetTitlesQuery struct {
	// UserID is the user whose titles are listed.
	UserID shared.UserID
}

// Validate validates the query.
func (q GetTitlesQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.NewDomainError("get_titles", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	return nil
}

// TitleView is one selectable title.
type TitleView struct {
	// AchievementID is the achievement granting the title.
	AchievementID shared.AchievementID

	// Title is the display text.
	Title string

	// Rarity is the granting achievement's tier.
	Rarity catalog.Rarity

	// Unlocked reports whether the user can equip this title.
	Unlocked bool

	// Equipped reports whether this is the current selection.
	Equipped bool
}

// GetTitlesResult is the assembled picker view.
type GetTitlesResult struct {
	// UserID is the viewing user.
	UserID shared.UserID

	// Equipped is the achievement backing the displayed title. Empty when
	// none is equipped.
	Equipped shared.AchievementID

	// CurrentTitle is the displayed title text. Empty when none is equipped.
	CurrentTitle string

	// Titles holds every title-bearing achievement in catalog order.
	Titles []TitleView

	// UnlockedCount is how many of the listed titles the user can equip.
	UnlockedCount int

	// TotalCount is the number of title-bearing achievements in the catalog.
	TotalCount int

	// UpdatedAt is the profile's last change time.
	UpdatedAt time.Time
}

// GetTitlesHandler handles GetTitlesQuery.
type GetTitlesHandler struct {
	catalog     *catalog.Catalog
	ledger      progression.Ledger
	profileRepo progression.ProfileRepository
	log         *logger.Logger
}

// NewGetTitlesHandler creates the handler.
func NewGetTitlesHandler(
	cat *catalog.Catalog,
	ledger progression.Ledger,
	profileRepo progression.ProfileRepository,
	log *logger.Logger,
) *GetTitlesHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetTitlesHandler{
		catalog:     cat,
		ledger:      ledger,
		profileRepo: profileRepo,
		log:         log.With(logger.Component("get_titles")),
	}
}

// Handle assembles the picker view.
func (h *GetTitlesHandler) Handle(ctx context.Context, q GetTitlesQuery) (*GetTitlesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	records, err := h.ledger.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	unlocked := make(map[shared.AchievementID]bool, len(records))
	for _, rec := range records {
		unlocked[rec.AchievementID] = true
	}

	profile, err := h.profileRepo.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	result := &GetTitlesResult{
		UserID:    q.UserID,
		UpdatedAt: profile.UpdatedAt,
	}

	for _, def := range h.catalog.TitleBearing() {
		view := TitleView{
			AchievementID: def.ID,
			Title:         def.Title,
			Rarity:        def.Rarity,
			Unlocked:      unlocked[def.ID],
			Equipped:      profile.HasTitle() && profile.Equipped == def.ID,
		}
		if view.Unlocked {
			result.UnlockedCount++
		}
		if view.Equipped {
			result.Equipped = def.ID
			result.CurrentTitle = def.Title
		}
		result.Titles = append(result.Titles, view)
		result.TotalCount++
	}

	return result, nil
}
