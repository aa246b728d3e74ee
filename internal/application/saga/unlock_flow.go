// Package saga contains multi-step business processes that orchestrate
// several domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/catalog"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK FLOW SAGA
// Business process: evaluate a user's snapshot against the catalog and
// record every newly satisfied achievement in the ledger.
// Flow: Load Snapshot → Load Unlocked Set → Evaluate Criteria →
//
//	Record Unlocks → Publish Events
//
// The ledger write is the authoritative step: an achievement is unlocked
// only when TryUnlock reports a created record, and the unlocked event is
// emitted exactly once per created record.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockCheckInput contains the data needed to run the unlock flow.
type UnlockCheckInput struct {
	// UserID is the user whose snapshot is evaluated.
	UserID shared.UserID

	// TriggerPath is the stat path whose change triggered this check.
	// Informational; evaluation always covers the whole catalog.
	TriggerPath shared.StatPath
}

// Validate checks if the input is valid.
func (i UnlockCheckInput) Validate() error {
	if !i.UserID.IsValid() {
		return shared.NewDomainError("unlock_flow", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	return nil
}

// UnlockFlowResult contains the outcome of one unlock flow run.
type UnlockFlowResult struct {
	// UserID is the evaluated user.
	UserID shared.UserID

	// NewUnlocks holds the records created by this run, in catalog order.
	NewUnlocks []progression.UnlockRecord

	// Absorbed counts unlock attempts the ledger reported as already
	// recorded (concurrent duplicate triggers).
	Absorbed int

	// ProcessedAt is when the flow completed.
	ProcessedAt time.Time
}

// HasNewUnlocks returns true if any achievements were unlocked.
func (r *UnlockFlowResult) HasNewUnlocks() bool {
	return len(r.NewUnlocks) > 0
}

// UnlockFlowStep identifies a step in the unlock flow.
type UnlockFlowStep string

const (
	StepLoadSnapshot   UnlockFlowStep = "load_snapshot"
	StepLoadUnlocked   UnlockFlowStep = "load_unlocked"
	StepEvaluate       UnlockFlowStep = "evaluate"
	StepRecordUnlocks  UnlockFlowStep = "record_unlocks"
	StepPublishEvents  UnlockFlowStep = "publish_events"
	StepUnlockComplete UnlockFlowStep = "complete"
)

// unlockFlowState tracks one run of the saga.
type unlockFlowState struct {
	currentStep UnlockFlowStep
	input       UnlockCheckInput
	snapshot    *stats.Snapshot
	unlocked    map[shared.AchievementID]bool
	candidates  []catalog.AchievementDefinition
	newUnlocks  []progression.UnlockRecord
	absorbed    int
	startedAt   time.Time
	failedStep  UnlockFlowStep
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UnlockFlowSaga orchestrates evaluation and ledger recording for one user.
type UnlockFlowSaga struct {
	catalog  *catalog.Catalog
	statRepo stats.Repository
	ledger   progression.Ledger
	eventBus shared.EventPublisher
	clock    timeutil.Clock
	metrics  *metrics.Manager
	log      *logger.Logger

	maxUnlocksPerRun int
}

// UnlockFlowConfig contains configuration for the unlock flow saga.
type UnlockFlowConfig struct {
	// MaxUnlocksPerRun caps records created in one run. Guards against a
	// misconfigured catalog unlocking everything at once.
	MaxUnlocksPerRun int
}

// DefaultUnlockFlowConfig returns default configuration.
func DefaultUnlockFlowConfig() UnlockFlowConfig {
	return UnlockFlowConfig{
		MaxUnlocksPerRun: 10,
	}
}

// NewUnlockFlowSaga creates a new unlock flow saga with all dependencies.
func NewUnlockFlowSaga(
	cat *catalog.Catalog,
	statRepo stats.Repository,
	ledger progression.Ledger,
	eventBus shared.EventPublisher,
	clock timeutil.Clock,
	m *metrics.Manager,
	log *logger.Logger,
	config UnlockFlowConfig,
) *UnlockFlowSaga {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &UnlockFlowSaga{
		catalog:          cat,
		statRepo:         statRepo,
		ledger:           ledger,
		eventBus:         eventBus,
		clock:            clock,
		metrics:          m,
		log:              log.With(logger.Component("unlock_flow")),
		maxUnlocksPerRun: config.MaxUnlocksPerRun,
	}
}

// Execute runs the complete unlock flow for one user.
func (s *UnlockFlowSaga) Execute(ctx context.Context, input UnlockCheckInput) (*UnlockFlowResult, error) {
	state := &unlockFlowState{
		currentStep: StepLoadSnapshot,
		input:       input,
		startedAt:   s.clock.Now(),
	}

	if err := input.Validate(); err != nil {
		state.failedStep = StepLoadSnapshot
		return nil, s.wrapError(state, err)
	}

	if err := s.stepLoadSnapshot(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	state.currentStep = StepLoadUnlocked
	if err := s.stepLoadUnlocked(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	state.currentStep = StepEvaluate
	s.stepEvaluate(state)

	if len(state.candidates) > 0 {
		state.currentStep = StepRecordUnlocks
		if err := s.stepRecordUnlocks(ctx, state); err != nil {
			return nil, s.wrapError(state, err)
		}

		// Non-critical: a lost event costs a celebration animation, not an
		// unlock. The ledger is already authoritative.
		state.currentStep = StepPublishEvents
		s.stepPublishEvents(state)
	}

	state.currentStep = StepUnlockComplete
	now := s.clock.Now()

	if s.metrics != nil {
		s.metrics.RecordUnlockFlowLatency(now.Sub(state.startedAt))
	}

	return &UnlockFlowResult{
		UserID:      input.UserID,
		NewUnlocks:  state.newUnlocks,
		Absorbed:    state.absorbed,
		ProcessedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepLoadSnapshot loads the user's stat snapshot. A user without one has
// never recorded a stat; evaluation runs against the empty snapshot.
func (s *UnlockFlowSaga) stepLoadSnapshot(ctx context.Context, state *unlockFlowState) error {
	snapshot, err := s.statRepo.Get(ctx, state.input.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			state.snapshot = stats.NewSnapshot(state.input.UserID)
			return nil
		}
		state.failedStep = StepLoadSnapshot
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	state.snapshot = snapshot
	return nil
}

// stepLoadUnlocked loads the user's current unlock set from the ledger.
func (s *UnlockFlowSaga) stepLoadUnlocked(ctx context.Context, state *unlockFlowState) error {
	records, err := s.ledger.ListByUser(ctx, state.input.UserID)
	if err != nil {
		state.failedStep = StepLoadUnlocked
		return fmt.Errorf("failed to load unlock ledger: %w", err)
	}

	state.unlocked = make(map[shared.AchievementID]bool, len(records))
	for _, rec := range records {
		state.unlocked[rec.AchievementID] = true
	}
	return nil
}

// stepEvaluate finds definitions the snapshot now satisfies but the ledger
// does not yet hold.
func (s *UnlockFlowSaga) stepEvaluate(state *unlockFlowState) {
	candidates := progression.NewlySatisfied(s.catalog, state.snapshot, state.unlocked)

	if s.metrics != nil {
		s.metrics.RecordEvaluations(s.catalog.Len())
	}

	if len(candidates) > s.maxUnlocksPerRun {
		s.log.Warn("unlock candidates capped",
			logger.UserID(state.input.UserID.String()),
			logger.Int("candidates", len(candidates)),
			logger.Int("cap", s.maxUnlocksPerRun))
		candidates = candidates[:s.maxUnlocksPerRun]
	}
	state.candidates = candidates
}

// stepRecordUnlocks writes ledger records for every candidate. The ledger
// absorbs concurrent duplicates; only created records count as new.
// A persistence failure aborts the flow so the caller can retry - a failed
// write must never read as "not unlocked".
func (s *UnlockFlowSaga) stepRecordUnlocks(ctx context.Context, state *unlockFlowState) error {
	now := s.clock.Now()

	for _, def := range state.candidates {
		record := progression.NewUnlockRecord(state.input.UserID, def.ID, now)

		created, _, err := s.ledger.TryUnlock(ctx, record)
		if err != nil {
			state.failedStep = StepRecordUnlocks
			if s.metrics != nil {
				s.metrics.RecordUnlockFlowFailure()
			}
			return fmt.Errorf("failed to record unlock %s: %w", def.ID, err)
		}

		if !created {
			state.absorbed++
			if s.metrics != nil {
				s.metrics.RecordDuplicateUnlock()
			}
			continue
		}

		state.newUnlocks = append(state.newUnlocks, record)
		if s.metrics != nil {
			s.metrics.RecordUnlock(def.Rarity.String())
		}
		s.log.Info("achievement unlocked",
			logger.UserID(state.input.UserID.String()),
			logger.Achievement(def.ID.String()),
			logger.String("rarity", def.Rarity.String()))
	}

	return nil
}

// stepPublishEvents publishes one unlocked event per created record.
func (s *UnlockFlowSaga) stepPublishEvents(state *unlockFlowState) {
	if s.eventBus == nil {
		return
	}

	for _, rec := range state.newUnlocks {
		def, err := s.catalog.Get(rec.AchievementID)
		if err != nil {
			continue
		}

		event := shared.NewAchievementUnlockedEvent(
			rec.UserID, rec.AchievementID, def.Rarity.String(), def.Title, rec.UnlockedAt)
		if err := s.eventBus.Publish(event); err != nil {
			s.log.Warn("failed to publish unlock event",
				logger.Achievement(rec.AchievementID.String()),
				logger.Err(err))
		}
	}
}

// wrapError wraps an error with saga context.
func (s *UnlockFlowSaga) wrapError(state *unlockFlowState, err error) error {
	return &UnlockFlowError{
		Step:   state.failedStep,
		UserID: state.input.UserID,
		Cause:  err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// UnlockFlowError represents a failure during the unlock flow.
type UnlockFlowError struct {
	Step   UnlockFlowStep
	UserID shared.UserID
	Cause  error
}

// Error implements the error interface.
func (e *UnlockFlowError) Error() string {
	return fmt.Sprintf("unlock flow failed at step '%s' for user %s: %v", e.Step, e.UserID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UnlockFlowError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK FLOW SAGA BUILDER (Fluent API)
// ══════════════════════════════════════════════════════════════════════════════

// UnlockFlowSagaBuilder provides a fluent API for building UnlockFlowSaga.
type UnlockFlowSagaBuilder struct {
	catalog  *catalog.Catalog
	statRepo stats.Repository
	ledger   progression.Ledger
	eventBus shared.EventPublisher
	clock    timeutil.Clock
	metrics  *metrics.Manager
	log      *logger.Logger
	config   UnlockFlowConfig
}

// NewUnlockFlowSagaBuilder creates a new builder.
func NewUnlockFlowSagaBuilder() *UnlockFlowSagaBuilder {
	return &UnlockFlowSagaBuilder{
		config: DefaultUnlockFlowConfig(),
	}
}

// WithCatalog sets the achievement catalog.
func (b *UnlockFlowSagaBuilder) WithCatalog(cat *catalog.Catalog) *UnlockFlowSagaBuilder {
	b.catalog = cat
	return b
}

// WithStatRepository sets the stat snapshot repository.
func (b *UnlockFlowSagaBuilder) WithStatRepository(repo stats.Repository) *UnlockFlowSagaBuilder {
	b.statRepo = repo
	return b
}

// WithLedger sets the unlock ledger.
func (b *UnlockFlowSagaBuilder) WithLedger(ledger progression.Ledger) *UnlockFlowSagaBuilder {
	b.ledger = ledger
	return b
}

// WithEventBus sets the event bus.
func (b *UnlockFlowSagaBuilder) WithEventBus(bus shared.EventPublisher) *UnlockFlowSagaBuilder {
	b.eventBus = bus
	return b
}

// WithClock sets the clock.
func (b *UnlockFlowSagaBuilder) WithClock(clock timeutil.Clock) *UnlockFlowSagaBuilder {
	b.clock = clock
	return b
}

// WithMetrics sets the metrics manager.
func (b *UnlockFlowSagaBuilder) WithMetrics(m *metrics.Manager) *UnlockFlowSagaBuilder {
	b.metrics = m
	return b
}

// WithLogger sets the logger.
func (b *UnlockFlowSagaBuilder) WithLogger(log *logger.Logger) *UnlockFlowSagaBuilder {
	b.log = log
	return b
}

// WithConfig sets the configuration.
func (b *UnlockFlowSagaBuilder) WithConfig(config UnlockFlowConfig) *UnlockFlowSagaBuilder {
	b.config = config
	return b
}

// Build creates the UnlockFlowSaga instance.
func (b *UnlockFlowSagaBuilder) Build() (*UnlockFlowSaga, error) {
	if b.catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if b.statRepo == nil {
		return nil, errors.New("stat repository is required")
	}
	if b.ledger == nil {
		return nil, errors.New("unlock ledger is required")
	}

	return NewUnlockFlowSaga(
		b.catalog,
		b.statRepo,
		b.ledger,
		b.eventBus,
		b.clock,
		b.metrics,
		b.log,
		b.config,
	), nil
}
