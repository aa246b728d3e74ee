package query

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RARITY QUERY
// Serves the latest published rarity sheet. The sheet is recomputed on a
// schedule; this query never triggers a scan, it only reads what the last
// scan published.
// ══════════════════════════════════════════════════════════════════════════════

// GetRarityQuery asks for the published population rarity figures.
type GetRarityQuery struct {
	// AchievementIDs limits the answer to these ids. Empty means every
	// figure in the published sheet.
	AchievementIDs []shared.AchievementID
}

// GetRarityResult contains the answered figures.
type GetRarityResult struct {
	// Figures holds the requested rarity figures.
	Figures []progression.RarityFigure

	// TotalUsers is the population denominator of the underlying scan.
	TotalUsers int64

	// ComputedAt is when the underlying scan ran. Zero when no sheet has
	// ever been published.
	ComputedAt time.Time
}

// GetRarityHandler handles GetRarityQuery.
type GetRarityHandler struct {
	rarityStore progression.RarityStore
	metrics     *metrics.Manager
	log         *logger.Logger
}

// NewGetRarityHandler creates the handler.
func NewGetRarityHandler(store progression.RarityStore, m *metrics.Manager, log *logger.Logger) *GetRarityHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetRarityHandler{
		rarityStore: store,
		metrics:     m,
		log:         log.With(logger.Component("get_rarity")),
	}
}

// Handle reads the published sheet. A missing sheet answers zero figures
// for the requested ids rather than failing; staleness is acceptable by
// contract and absence is the extreme case of staleness.
func (h *GetRarityHandler) Handle(ctx context.Context, q GetRarityQuery) (*GetRarityResult, error) {
	sheet, err := h.rarityStore.Latest(ctx)
	if err != nil {
		if !shared.IsNotFound(err) {
			h.log.Warn("rarity store unavailable, serving zero figures", logger.Err(err))
			if h.metrics != nil {
				h.metrics.RecordPersistenceError("rarity")
			}
		}
		if h.metrics != nil {
			h.metrics.RecordRarityCacheMiss()
		}
		sheet = progression.RaritySheet{}
	} else if h.metrics != nil {
		h.metrics.RecordRarityCacheHit()
	}

	result := &GetRarityResult{
		TotalUsers: sheet.TotalUsers,
		ComputedAt: sheet.ComputedAt,
	}

	if len(q.AchievementIDs) > 0 {
		result.Figures = make([]progression.RarityFigure, 0, len(q.AchievementIDs))
		for _, id := range q.AchievementIDs {
			result.Figures = append(result.Figures, sheet.Figure(id))
		}
		return result, nil
	}

	result.Figures = make([]progression.RarityFigure, 0, len(sheet.Figures))
	for _, f := range sheet.Figures {
		result.Figures = append(result.Figures, f)
	}
	return result, nil
}
