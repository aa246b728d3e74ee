// Package jobs contains the scheduled jobs of the progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE RARITY JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeRarityJob performs the full population rarity scan: count users,
// count holders per achievement, derive the percentages, and publish the
// resulting sheet. Reads between scans serve whatever this job last
// published; the unlock-event nudge only papers over the gap.
type RecomputeRarityJob struct {
	catalog     *catalog.Catalog
	statRepo    stats.Repository
	ledger      progression.Ledger
	rarityStore progression.RarityStore
	eventBus    shared.EventPublisher
	metrics     *metrics.Manager
	logger      *slog.Logger

	config RecomputeRarityConfig

	lastScanStats atomic.Value // *ScanStats
}

// RecomputeRarityConfig contains configuration for the scan job.
type RecomputeRarityConfig struct {
	// Timeout bounds one scan. Zero disables the bound.
	Timeout time.Duration
}

// DefaultRecomputeRarityConfig returns sensible defaults.
func DefaultRecomputeRarityConfig() RecomputeRarityConfig {
	return RecomputeRarityConfig{
		Timeout: 2 * time.Minute,
	}
}

// ScanStats contains statistics from one scan run.
type ScanStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	TotalUsers   int64
	Achievements int
}

// NewRecomputeRarityJob creates the scan job.
func NewRecomputeRarityJob(
	cat *catalog.Catalog,
	statRepo stats.Repository,
	ledger progression.Ledger,
	rarityStore progression.RarityStore,
	eventBus shared.EventPublisher,
	m *metrics.Manager,
	logger *slog.Logger,
	config RecomputeRarityConfig,
) *RecomputeRarityJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecomputeRarityJob{
		catalog:     cat,
		statRepo:    statRepo,
		ledger:      ledger,
		rarityStore: rarityStore,
		eventBus:    eventBus,
		metrics:     m,
		logger:      logger,
		config:      config,
	}
}

// Name returns the job name.
func (j *RecomputeRarityJob) Name() string {
	return "recompute_rarity"
}

// Run executes one full scan.
func (j *RecomputeRarityJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ScanStats{StartedAt: startedAt}

	j.logger.Info("starting recompute_rarity job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	totalUsers, err := j.statRepo.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	stats.TotalUsers = totalUsers

	holders, err := j.ledger.CountHolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to count holders: %w", err)
	}

	// Every catalog achievement gets a figure, holders or not, so the
	// published sheet answers 0% instead of leaving ids unanswered.
	ids := make([]shared.AchievementID, 0, len(j.catalog.All()))
	for _, def := range j.catalog.All() {
		ids = append(ids, def.ID)
	}
	stats.Achievements = len(ids)

	sheet := progression.BuildRaritySheet(ids, holders, totalUsers, time.Now().UTC())

	if err := j.rarityStore.Publish(ctx, sheet); err != nil {
		return fmt.Errorf("failed to publish rarity sheet: %w", err)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastScanStats.Store(stats)

	if j.metrics != nil {
		j.metrics.RecordRarityScan(totalUsers, stats.Duration)
	}
	if j.eventBus != nil {
		event := shared.NewRarityRecomputedEvent(int(totalUsers), stats.Achievements, stats.Duration)
		_ = j.eventBus.Publish(event)
	}

	j.logger.Info("recompute_rarity job completed",
		"duration", stats.Duration.String(),
		"total_users", stats.TotalUsers,
		"achievements", stats.Achievements,
	)
	return nil
}

// LastScanStats returns statistics from the last completed scan.
func (j *RecomputeRarityJob) LastScanStats() *ScanStats {
	stats := j.lastScanStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ScanStats)
}
