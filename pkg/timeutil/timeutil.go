// Package timeutil provides UTC day arithmetic used by streak statistics
// and recency checks. The capsule app's users are global, so all bucketing
// is done in UTC rather than a fixed home timezone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Clock abstracts time.Now so the unlock flow and scheduler jobs can be
// tested against fixed times.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock pinned to one instant, for tests.
type FixedClock struct {
	Time time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time {
	return c.Time
}

// StartOfDay returns the start of the day (00:00:00 UTC).
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := t1.UTC(), t2.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// IsConsecutiveDay checks if t2 is the UTC day after t1. Streak statistics
// increment only on consecutive days.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return IsSameDay(t1.UTC().AddDate(0, 0, 1), t2)
}

// DaysBetween calculates the number of whole UTC days between two times.
func DaysBetween(t1, t2 time.Time) int {
	days := int(StartOfDay(t2).Sub(StartOfDay(t1)).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Within reports whether t falls inside the window ending at now.
func Within(t, now time.Time, window time.Duration) bool {
	d := now.Sub(t)
	return d >= 0 && d < window
}

// Hour buckets used by habit statistics such as "capsules_by_hour.night".
const (
	// NightStart is the hour (UTC) at which the night bucket begins.
	NightStart = 0
	// NightEnd is the hour (UTC) at which the night bucket ends.
	NightEnd = 5
)

// HourBucket classifies a time into a coarse hour-of-day bucket name.
func HourBucket(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h >= NightStart && h < NightEnd:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// FormatDate formats a time as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
