// Package stats holds per-user statistic snapshots: the raw counters,
// streaks, and nested category counters that unlock criteria are evaluated
// against. The package is pure data; it does not know which statistics
// trigger which achievements.
package stats

import (
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// STAT VALUES
// ═══════════════════════════════════════════════════════════════════════════

// Value is a single statistic entry: either a leaf number or a nested
// mapping of sub-keys to numbers (one level is all the catalog needs, but
// nesting is unrestricted).
type Value struct {
	// Number is the leaf value. Meaningful only when Children is nil.
	Number float64

	// Children holds nested sub-statistics, e.g. "filter_usage" broken down
	// by filter name. Non-nil means this entry is a branch, not a leaf.
	Children map[string]*Value
}

// leaf creates a leaf value.
func leaf(n float64) *Value {
	return &Value{Number: n}
}

// branch creates an empty branch value.
func branch() *Value {
	return &Value{Children: make(map[string]*Value)}
}

// IsBranch reports whether the value holds nested sub-statistics.
func (v *Value) IsBranch() bool {
	return v != nil && v.Children != nil
}

// clone deep-copies a value tree.
func (v *Value) clone() *Value {
	if v == nil {
		return nil
	}
	out := &Value{Number: v.Number}
	if v.Children != nil {
		out.Children = make(map[string]*Value, len(v.Children))
		for k, child := range v.Children {
			out.Children[k] = child.clone()
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// UPDATE MODES
// ═══════════════════════════════════════════════════════════════════════════

// UpdateMode distinguishes additive updates (counters, streak increments)
// from absolute ones (e.g. "current streak" after a break).
type UpdateMode int

const (
	// UpdateIncrement adds the value to the current statistic.
	UpdateIncrement UpdateMode = iota

	// UpdateSet replaces the current statistic with the value.
	UpdateSet
)

// String returns the mode name.
func (m UpdateMode) String() string {
	if m == UpdateSet {
		return "set"
	}
	return "increment"
}

// Update describes one stat mutation to apply to a snapshot.
type Update struct {
	// Path addresses the statistic, creating intermediate nesting as needed.
	Path shared.StatPath

	// Value is the delta (UpdateIncrement) or the new value (UpdateSet).
	Value float64

	// Mode selects additive or absolute application.
	Mode UpdateMode
}

// Validate checks the update.
func (u Update) Validate() error {
	if !u.Path.IsValid() {
		return shared.NewDomainError("stats", "Validate", shared.ErrInvalidFormat, "invalid stat path: "+u.Path.String())
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ═══════════════════════════════════════════════════════════════════════════

// Snapshot is one user's full statistic state. It is mutated only through
// Apply; every read path (Resolve, Flatten) leaves it untouched, so the
// criteria evaluator can run against it repeatedly without side effects.
type Snapshot struct {
	// UserID is the owner.
	UserID shared.UserID

	// Entries maps top-level statistic names to values.
	Entries map[string]*Value

	// UpdatedAt is the time of the last applied update.
	UpdatedAt time.Time
}

// NewSnapshot creates an empty snapshot for a user.
func NewSnapshot(userID shared.UserID) *Snapshot {
	return &Snapshot{
		UserID:  userID,
		Entries: make(map[string]*Value),
	}
}

// Apply mutates the addressed statistic, creating intermediate nested
// structure as needed. A leaf written through with a deeper path becomes a
// branch; its previous number is discarded (the catalog never re-types a
// path in practice).
func (s *Snapshot) Apply(u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}

	segments := u.Path.Segments()
	entries := s.Entries

	for i, seg := range segments {
		last := i == len(segments)-1
		cur := entries[seg]

		if last {
			if cur == nil || cur.IsBranch() {
				cur = leaf(0)
				entries[seg] = cur
			}
			switch u.Mode {
			case UpdateSet:
				cur.Number = u.Value
			default:
				cur.Number += u.Value
			}
			break
		}

		if cur == nil || !cur.IsBranch() {
			cur = branch()
			entries[seg] = cur
		}
		entries = cur.Children
	}

	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Resolve looks up a dotted path and returns the statistic's value.
// A missing path, or a path that lands on a branch, resolves to 0 - never
// an error. This is the contract the criteria evaluator depends on.
func (s *Snapshot) Resolve(path shared.StatPath) float64 {
	if s == nil {
		return 0
	}

	segments := path.Segments()
	entries := s.Entries

	for i, seg := range segments {
		cur, ok := entries[seg]
		if !ok || cur == nil {
			return 0
		}
		if i == len(segments)-1 {
			if cur.IsBranch() {
				return 0
			}
			return cur.Number
		}
		if !cur.IsBranch() {
			return 0
		}
		entries = cur.Children
	}
	return 0
}

// Clone deep-copies the snapshot so callers can hand it out without
// exposing the mutable entry tree.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		UserID:    s.UserID,
		Entries:   make(map[string]*Value, len(s.Entries)),
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Entries {
		out.Entries[k] = v.clone()
	}
	return out
}

// Flatten returns every leaf statistic keyed by its dotted path. Used for
// persistence and for debugging views.
func (s *Snapshot) Flatten() map[string]float64 {
	out := make(map[string]float64)
	var walk func(prefix string, entries map[string]*Value)
	walk = func(prefix string, entries map[string]*Value) {
		for k, v := range entries {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if v.IsBranch() {
				walk(key, v.Children)
				continue
			}
			out[key] = v.Number
		}
	}
	walk("", s.Entries)
	return out
}

// FromFlat rebuilds a snapshot from flattened dotted-path leaves.
func FromFlat(userID shared.UserID, flat map[string]float64, updatedAt time.Time) (*Snapshot, error) {
	s := NewSnapshot(userID)
	for path, value := range flat {
		p, err := shared.NewStatPath(path)
		if err != nil {
			return nil, err
		}
		if err := s.Apply(Update{Path: p, Value: value, Mode: UpdateSet}); err != nil {
			return nil, err
		}
	}
	s.UpdatedAt = updatedAt
	return s, nil
}
