// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique user identifier (UUID format), resolved by the
// external authentication collaborator. The engine trusts the identity it is
// given and performs no authentication of its own.
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID format")
	}
	return uid, nil
}

// AchievementID represents a stable achievement identifier from the static
// catalog. It is the join key between definitions, ledger entries, and equip
// references.
type AchievementID string

// Achievement ID format: lowercase words joined by underscores
// (e.g. "first_capsule", "night_owl").
var achievementIDRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// IsValid checks if the achievement ID format is valid.
func (a AchievementID) IsValid() bool {
	s := string(a)
	return len(s) >= 2 && len(s) <= 64 && achievementIDRegex.MatchString(s)
}

// String returns the string representation.
func (a AchievementID) String() string {
	return string(a)
}

// IsEmpty checks if the ID is empty.
func (a AchievementID) IsEmpty() bool {
	return a == ""
}

// NewAchievementID creates a new AchievementID with validation.
func NewAchievementID(id string) (AchievementID, error) {
	aid := AchievementID(strings.ToLower(strings.TrimSpace(id)))
	if !aid.IsValid() {
		return "", NewDomainError("shared", "NewAchievementID", ErrInvalidID, "invalid achievement ID format")
	}
	return aid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// StatPath Value Object
// ═══════════════════════════════════════════════════════════════════════════

// StatPath addresses a statistic inside a user's stat snapshot. Nested
// statistics use dotted notation, e.g. "filter_usage.yesterday".
type StatPath string

// Stat path segments: lowercase words joined by underscores, segments joined
// by dots.
var statPathRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9][a-z0-9_]*)*$`)

// IsValid checks if the stat path format is valid.
func (p StatPath) IsValid() bool {
	s := string(p)
	return len(s) >= 1 && len(s) <= 128 && statPathRegex.MatchString(s)
}

// String returns the string representation.
func (p StatPath) String() string {
	return string(p)
}

// Segments returns the dotted path split into its components.
func (p StatPath) Segments() []string {
	return strings.Split(string(p), ".")
}

// NewStatPath creates a new StatPath with validation.
func NewStatPath(path string) (StatPath, error) {
	p := StatPath(strings.ToLower(strings.TrimSpace(path)))
	if !p.IsValid() {
		return "", NewDomainError("shared", "NewStatPath", ErrInvalidFormat, "invalid stat path format")
	}
	return p, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Percent Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percent represents a percentage value in [0, 100]. Used both for unlock
// progress and for population rarity.
type Percent float64

const (
	MinPercent Percent = 0
	MaxPercent Percent = 100
)

// IsValid checks if the percent is within valid range.
func (p Percent) IsValid() bool {
	return p >= MinPercent && p <= MaxPercent
}

// Float64 returns the underlying float64 value.
func (p Percent) Float64() float64 {
	return float64(p)
}

// IsComplete returns true when the percentage has saturated at 100.
func (p Percent) IsComplete() bool {
	return p >= MaxPercent
}

// ClampPercent clamps an arbitrary value into [0, 100].
func ClampPercent(v float64) Percent {
	if v < float64(MinPercent) {
		return MinPercent
	}
	if v > float64(MaxPercent) {
		return MaxPercent
	}
	return Percent(v)
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

// LastNDays returns a TimeRange covering the last N days up to now.
func LastNDays(n int) TimeRange {
	now := time.Now().UTC()
	return TimeRange{
		From: now.AddDate(0, 0, -n),
		To:   now,
	}
}
