package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// CATALOG
// The static, versioned set of achievement definitions. Loaded once per
// process; all accessors are safe for concurrent use because the catalog is
// never mutated after construction.
// ═══════════════════════════════════════════════════════════════════════════

// Catalog is the immutable collection of achievement definitions.
type Catalog struct {
	version string
	byID    map[shared.AchievementID]AchievementDefinition
	ordered []AchievementDefinition
}

// New builds a Catalog from definitions, rejecting duplicates and invalid
// entries. Definitions are ordered by rarity tier, then by Order, then by ID.
func New(version string, defs []AchievementDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, shared.ErrEmptyCatalog
	}

	byID := make(map[shared.AchievementID]AchievementDefinition, len(defs))
	ordered := make([]AchievementDefinition, 0, len(defs))

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byID[def.ID]; exists {
			return nil, shared.WrapError("catalog", "New", shared.ErrAlreadyExists,
				"duplicate achievement definition: "+def.ID.String(), shared.ErrDuplicateAchievement)
		}
		byID[def.ID] = def
		ordered = append(ordered, def)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Rarity != ordered[j].Rarity {
			return ordered[i].Rarity < ordered[j].Rarity
		}
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].ID < ordered[j].ID
	})

	return &Catalog{
		version: version,
		byID:    byID,
		ordered: ordered,
	}, nil
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// Get returns the definition for an id.
// Returns shared.ErrUnknownAchievement if the id is not in the catalog.
func (c *Catalog) Get(id shared.AchievementID) (AchievementDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return AchievementDefinition{}, shared.WrapError("catalog", "Get", shared.ErrNotFound,
			"achievement not in catalog: "+id.String(), shared.ErrUnknownAchievement)
	}
	return def, nil
}

// Contains reports whether the id exists in the catalog.
func (c *Catalog) Contains(id shared.AchievementID) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every definition in catalog order (rarity, then Order, then ID).
// The returned slice is a copy; callers may not mutate catalog state.
func (c *Catalog) All() []AchievementDefinition {
	out := make([]AchievementDefinition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// TitleBearing returns every definition that grants a title, in catalog order.
func (c *Catalog) TitleBearing() []AchievementDefinition {
	var out []AchievementDefinition
	for _, def := range c.ordered {
		if def.GrantsTitle() {
			out = append(out, def)
		}
	}
	return out
}

// ByCategory returns the definitions in a category, in catalog order.
func (c *Catalog) ByCategory(category string) []AchievementDefinition {
	var out []AchievementDefinition
	for _, def := range c.ordered {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// JSON LOADING
// The catalog ships as a versioned JSON document supplied at startup. How it
// is packaged is the deployer's concern; the engine only parses it.
// ═══════════════════════════════════════════════════════════════════════════

type catalogDocument struct {
	Version      string               `json:"version"`
	Achievements []definitionDocument `json:"achievements"`
}

type definitionDocument struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Rarity      string             `json:"rarity"`
	Criteria    *criteriaDocument  `json:"criteria,omitempty"`
	Order       int                `json:"order"`
	Title       string             `json:"title,omitempty"`
}

type criteriaDocument struct {
	Stat      string  `json:"stat"`
	Threshold float64 `json:"threshold"`
}

// Parse reads a catalog JSON document.
func Parse(r io.Reader) (*Catalog, error) {
	var doc catalogDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, shared.WrapError("catalog", "Parse", shared.ErrInvalidFormat, "malformed catalog document", err)
	}

	defs := make([]AchievementDefinition, 0, len(doc.Achievements))
	for _, d := range doc.Achievements {
		def, err := d.toDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return New(doc.Version, defs)
}

// LoadFile parses a catalog from a JSON file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.WrapError("catalog", "LoadFile", shared.ErrNotFound,
			fmt.Sprintf("cannot open catalog file %q", path), err)
	}
	defer f.Close()
	return Parse(f)
}

func (d definitionDocument) toDefinition() (AchievementDefinition, error) {
	id, err := shared.NewAchievementID(d.ID)
	if err != nil {
		return AchievementDefinition{}, err
	}

	rarity, err := ParseRarity(d.Rarity)
	if err != nil {
		return AchievementDefinition{}, err
	}

	var criteria *UnlockCriteria
	if d.Criteria != nil {
		stat, err := shared.NewStatPath(d.Criteria.Stat)
		if err != nil {
			return AchievementDefinition{}, err
		}
		criteria = &UnlockCriteria{Stat: stat, Threshold: d.Criteria.Threshold}
	}

	return AchievementDefinition{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Rarity:      rarity,
		Criteria:    criteria,
		Order:       d.Order,
		Title:       d.Title,
	}, nil
}
