// Package application wires the commands, queries, and sagas behind one
// facade. Callers (app backend handlers, jobs, tests) interact with the
// progression engine only through this package.
package application

import (
	"context"
	"errors"

	"github.com/capsulehub/capsule-progression-hub/internal/application/command"
	"github.com/capsulehub/capsule-progression-hub/internal/application/query"
	"github.com/capsulehub/capsule-progression-hub/internal/application/saga"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// Progression is the engine's single entry point. All state lives in the
// injected collaborators; the facade itself only routes.
type Progression struct {
	recordStat     *command.RecordStatHandler
	recordActivity *command.RecordActivityHandler
	triggerUnlock  *command.TriggerUnlockHandler
	equipTitle     *command.EquipTitleHandler

	listAchievements *query.ListAchievementsHandler
	getTitles        *query.GetTitlesHandler
	getRarity        *query.GetRarityHandler
}

// Dependencies holds everything the facade needs. Catalog, StatRepo,
// Ledger, and ProfileRepo are required; the rest degrade gracefully when
// nil.
type Dependencies struct {
	Catalog     *catalog.Catalog
	StatRepo    stats.Repository
	Ledger      progression.Ledger
	ProfileRepo progression.ProfileRepository
	RarityStore progression.RarityStore
	EventBus    shared.EventPublisher
	Clock       timeutil.Clock
	Metrics     *metrics.Manager
	Logger      *logger.Logger

	// UnlockFlow overrides the saga configuration when non-nil.
	UnlockFlow *saga.UnlockFlowConfig
}

// New creates the facade, sharing one striped lock set across all write
// handlers so every write for a user serializes on the same stripe.
func New(deps Dependencies) (*Progression, error) {
	if deps.Catalog == nil {
		return nil, errors.New("application: catalog is required")
	}
	if deps.StatRepo == nil {
		return nil, errors.New("application: stat repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("application: unlock ledger is required")
	}
	if deps.ProfileRepo == nil {
		return nil, errors.New("application: title profile repository is required")
	}

	flowConfig := saga.DefaultUnlockFlowConfig()
	if deps.UnlockFlow != nil {
		flowConfig = *deps.UnlockFlow
	}

	unlockFlow, err := saga.NewUnlockFlowSagaBuilder().
		WithCatalog(deps.Catalog).
		WithStatRepository(deps.StatRepo).
		WithLedger(deps.Ledger).
		WithEventBus(deps.EventBus).
		WithClock(deps.Clock).
		WithMetrics(deps.Metrics).
		WithLogger(deps.Logger).
		WithConfig(flowConfig).
		Build()
	if err != nil {
		return nil, err
	}

	locks := command.NewUserLocks(0)

	recordStat := command.NewRecordStatHandler(
		deps.StatRepo, unlockFlow, deps.EventBus, deps.Clock, deps.Metrics, deps.Logger, locks)

	return &Progression{
		recordStat: recordStat,
		recordActivity: command.NewRecordActivityHandler(
			deps.StatRepo, recordStat, deps.Clock, deps.Logger),
		triggerUnlock: command.NewTriggerUnlockHandler(
			deps.Catalog, deps.Ledger, deps.EventBus, deps.Clock, deps.Metrics, deps.Logger, locks),
		equipTitle: command.NewEquipTitleHandler(
			deps.Catalog, deps.Ledger, deps.ProfileRepo, deps.EventBus, deps.Clock, deps.Metrics, deps.Logger, locks),
		listAchievements: query.NewListAchievementsHandler(
			deps.Catalog, deps.StatRepo, deps.Ledger, deps.RarityStore, deps.Clock, deps.Logger),
		getTitles: query.NewGetTitlesHandler(
			deps.Catalog, deps.Ledger, deps.ProfileRepo, deps.Logger),
		getRarity: query.NewGetRarityHandler(
			deps.RarityStore, deps.Metrics, deps.Logger),
	}, nil
}

// RecordStat applies one stat event and runs the unlock cascade.
func (p *Progression) RecordStat(ctx context.Context, cmd command.RecordStatCommand) (*command.RecordStatResult, error) {
	return p.recordStat.Handle(ctx, cmd)
}

// RecordActivity ingests one raw app activity, deriving the counter,
// habit-bucket, and streak stat events it implies.
func (p *Progression) RecordActivity(ctx context.Context, cmd command.RecordActivityCommand) (*command.RecordActivityResult, error) {
	return p.recordActivity.Handle(ctx, cmd)
}

// TriggerUnlock unlocks a criteria-less achievement explicitly.
func (p *Progression) TriggerUnlock(ctx context.Context, cmd command.TriggerUnlockCommand) (*command.TriggerUnlockResult, error) {
	return p.triggerUnlock.Handle(ctx, cmd)
}

// EquipTitle equips an unlocked achievement's title.
func (p *Progression) EquipTitle(ctx context.Context, cmd command.EquipTitleCommand) (*command.EquipTitleResult, error) {
	return p.equipTitle.HandleEquip(ctx, cmd)
}

// ClearTitle removes the equipped title.
func (p *Progression) ClearTitle(ctx context.Context, cmd command.ClearTitleCommand) (*command.EquipTitleResult, error) {
	return p.equipTitle.HandleClear(ctx, cmd)
}

// ListAchievements assembles a user's achievements screen.
func (p *Progression) ListAchievements(ctx context.Context, q query.ListAchievementsQuery) (*query.ListAchievementsResult, error) {
	return p.listAchievements.Handle(ctx, q)
}

// GetTitles assembles a user's title picker.
func (p *Progression) GetTitles(ctx context.Context, q query.GetTitlesQuery) (*query.GetTitlesResult, error) {
	return p.getTitles.Handle(ctx, q)
}

// GetRarity serves the latest published rarity figures.
func (p *Progression) GetRarity(ctx context.Context, q query.GetRarityQuery) (*query.GetRarityResult, error) {
	return p.getRarity.Handle(ctx, q)
}
