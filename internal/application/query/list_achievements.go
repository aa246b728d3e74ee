// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// The achievements screen: every catalog definition joined with the user's
// unlock state, live progress, and population rarity.
// ══════════════════════════════════════════════════════════════════════════════

// ListAchievementsQuery asks for a user's achievement view.
type ListAchievementsQuery struct {
	// UserID is the user whose view is assembled.
	UserID shared.UserID

	// Category filters by catalog category when non-empty.
	Category string
}

// Validate validates the query.
func (q ListAchievementsQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.NewDomainError("list_achievements", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	return nil
}

// AchievementView is one achievement as the client renders it.
type AchievementView struct {
	// ID is the achievement id.
	ID shared.AchievementID

	// Name is the display name.
	Name string

	// Description explains how the achievement is earned.
	Description string

	// Category is the grouping label.
	Category string

	// Rarity is the fixed tier.
	Rarity catalog.Rarity

	// Style carries the tier's presentation hints.
	Style catalog.StyleDescriptor

	// Title is the title granted on unlock, if any.
	Title string

	// Unlocked reports whether the user holds the achievement.
	Unlocked bool

	// UnlockedAt is the unlock time. Zero when locked.
	UnlockedAt time.Time

	// RecentlyUnlocked marks unlocks inside the new-badge window.
	RecentlyUnlocked bool

	// Progress is the completion percentage toward the unlock threshold.
	// Unlocked achievements always report 100.
	Progress shared.Percent

	// HolderPercent is the population rarity figure (possibly stale).
	HolderPercent shared.Percent
}

// ListAchievementsResult is the full assembled view.
type ListAchievementsResult struct {
	// UserID is the viewing user.
	UserID shared.UserID

	// Achievements holds the views in catalog order.
	Achievements []AchievementView

	// UnlockedCount is the number of unlocked achievements in the view.
	UnlockedCount int

	// CatalogVersion is the version of the catalog the view was built from.
	CatalogVersion string
}

// ListAchievementsHandler handles ListAchievementsQuery.
type ListAchievementsHandler struct {
	catalog     *catalog.Catalog
	statRepo    stats.Repository
	ledger      progression.Ledger
	rarityStore progression.RarityStore
	clock       timeutil.Clock
	log         *logger.Logger
}

// NewListAchievementsHandler creates the handler.
func NewListAchievementsHandler(
	cat *catalog.Catalog,
	statRepo stats.Repository,
	ledger progression.Ledger,
	rarityStore progression.RarityStore,
	clock timeutil.Clock,
	log *logger.Logger,
) *ListAchievementsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &ListAchievementsHandler{
		catalog:     cat,
		statRepo:    statRepo,
		ledger:      ledger,
		rarityStore: rarityStore,
		clock:       clock,
		log:         log.With(logger.Component("list_achievements")),
	}
}

// Handle assembles the view. Ledger reads are authoritative and a ledger
// failure fails the query; the rarity sheet is best-effort and degrades to
// zero figures when missing or unreachable.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) (*ListAchievementsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	records, err := h.ledger.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	unlockedAt := make(map[shared.AchievementID]time.Time, len(records))
	for _, rec := range records {
		unlockedAt[rec.AchievementID] = rec.UnlockedAt
	}

	snapshot, err := h.statRepo.Get(ctx, q.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, err
		}
		snapshot = nil
	}

	sheet := h.raritySheet(ctx)
	now := h.clock.Now()

	defs := h.catalog.All()
	if q.Category != "" {
		defs = h.catalog.ByCategory(q.Category)
	}

	views := make([]AchievementView, 0, len(defs))
	unlockedCount := 0

	for _, def := range defs {
		view := AchievementView{
			ID:            def.ID,
			Name:          def.Name,
			Description:   def.Description,
			Category:      def.Category,
			Rarity:        def.Rarity,
			Style:         def.Rarity.Style(),
			Title:         def.Title,
			HolderPercent: sheet.Figure(def.ID).HolderPercent,
		}

		if at, ok := unlockedAt[def.ID]; ok {
			view.Unlocked = true
			view.UnlockedAt = at
			view.RecentlyUnlocked = timeutil.Within(at, now, progression.RecencyWindow)
			view.Progress = shared.MaxPercent
			unlockedCount++
		} else {
			view.Progress = progression.Evaluate(def, snapshot).Progress
		}

		views = append(views, view)
	}

	return &ListAchievementsResult{
		UserID:         q.UserID,
		Achievements:   views,
		UnlockedCount:  unlockedCount,
		CatalogVersion: h.catalog.Version(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// VIEW PROJECTIONS
// Pure reshaping of an assembled view for dashboard grouping. No engine
// state; callers may apply these repeatedly.
// ══════════════════════════════════════════════════════════════════════════════

// GroupByCategory buckets views by category, preserving catalog order
// within each bucket.
func GroupByCategory(views []AchievementView) map[string][]AchievementView {
	out := make(map[string][]AchievementView)
	for _, v := range views {
		out[v.Category] = append(out[v.Category], v)
	}
	return out
}

// GroupByRarity buckets views by rarity tier, preserving catalog order
// within each bucket.
func GroupByRarity(views []AchievementView) map[catalog.Rarity][]AchievementView {
	out := make(map[catalog.Rarity][]AchievementView)
	for _, v := range views {
		out[v.Rarity] = append(out[v.Rarity], v)
	}
	return out
}

// RecentUnlocks filters a view down to unlocks inside the new-badge window.
func RecentUnlocks(views []AchievementView) []AchievementView {
	var out []AchievementView
	for _, v := range views {
		if v.RecentlyUnlocked {
			out = append(out, v)
		}
	}
	return out
}

// UnlocksIn filters a view down to unlocks inside an arbitrary range, for
// digest surfaces with their own window. An invalid range defaults to the
// trailing week.
func UnlocksIn(views []AchievementView, r shared.TimeRange) []AchievementView {
	if !r.IsValid() {
		r = shared.LastNDays(7)
	}
	var out []AchievementView
	for _, v := range views {
		if v.Unlocked && r.Contains(v.UnlockedAt) {
			out = append(out, v)
		}
	}
	return out
}

// raritySheet loads the published sheet, degrading to an empty sheet (all
// zero figures) when none exists or the store is unreachable.
func (h *ListAchievementsHandler) raritySheet(ctx context.Context) progression.RaritySheet {
	if h.rarityStore == nil {
		return progression.RaritySheet{}
	}
	sheet, err := h.rarityStore.Latest(ctx)
	if err != nil {
		if !shared.IsNotFound(err) {
			h.log.Warn("rarity store unavailable, serving zero figures", logger.Err(err))
		}
		return progression.RaritySheet{}
	}
	return sheet
}
