package progression

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// TITLE PROFILE
// A user displays at most one title at a time, referenced by the id of the
// achievement that granted it. The profile stores the reference, not the
// title text, so catalog renames propagate automatically.
// ═══════════════════════════════════════════════════════════════════════════

// TitleProfile is a user's title selection.
type TitleProfile struct {
	// UserID is the owner.
	UserID shared.UserID

	// Equipped is the achievement whose title is displayed. Empty means no
	// title is equipped.
	Equipped shared.AchievementID

	// UpdatedAt is the time of the last equip or clear.
	UpdatedAt time.Time
}

// NewTitleProfile creates an empty profile (no title equipped).
func NewTitleProfile(userID shared.UserID) *TitleProfile {
	return &TitleProfile{UserID: userID}
}

// HasTitle reports whether a title is currently equipped.
func (p *TitleProfile) HasTitle() bool {
	return p != nil && !p.Equipped.IsEmpty()
}

// Equip points the profile at an achievement's title. Precondition checks
// (unlocked, grants a title) are the caller's responsibility via
// ValidateEquip; Equip itself only mutates state.
func (p *TitleProfile) Equip(achievementID shared.AchievementID, now time.Time) {
	p.Equipped = achievementID
	p.UpdatedAt = now.UTC()
}

// Clear removes the equipped title. Clearing an empty profile is a no-op
// that still succeeds.
func (p *TitleProfile) Clear(now time.Time) {
	p.Equipped = ""
	p.UpdatedAt = now.UTC()
}

// ValidateEquip checks the two equip preconditions against a definition and
// the user's unlock state. Unlock state is checked first, so an achievement
// that is both locked and title-less fails as not unlocked. On failure the
// profile must be left untouched; callers check before mutating.
//
// Returns shared.ErrNotUnlocked when the user has not unlocked the
// achievement, shared.ErrNoTitleForAchievement when the definition grants
// no title.
func ValidateEquip(def catalog.AchievementDefinition, unlocked bool) error {
	if !unlocked {
		return shared.WrapError("titles", "Equip", shared.ErrForbidden,
			"achievement not unlocked: "+def.ID.String(), shared.ErrNotUnlocked)
	}
	if !def.GrantsTitle() {
		return shared.WrapError("titles", "Equip", shared.ErrInvalidInput,
			"achievement grants no title: "+def.ID.String(), shared.ErrNoTitleForAchievement)
	}
	return nil
}

// ProfileRepository persists title profiles.
//
// Get returns an empty profile, not an error, for users that never equipped
// anything; absence of a row and an explicitly cleared title are the same
// state.
type ProfileRepository interface {
	// Get loads a user's title profile.
	Get(ctx context.Context, userID shared.UserID) (*TitleProfile, error)

	// Save upserts a user's title profile.
	Save(ctx context.Context, profile *TitleProfile) error
}
