// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"sync"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/application/saga"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/metrics"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD STAT COMMAND
// The single authoritative trigger of the unlock cascade: applies one stat
// event to the user's snapshot, persists it, and runs the unlock flow.
// Updates for the same user are serialized through a striped lock; updates
// for different users proceed concurrently.
// ══════════════════════════════════════════════════════════════════════════════

// RecordStatCommand contains the data to record one stat event.
type RecordStatCommand struct {
	// UserID is the user whose statistic changes.
	UserID shared.UserID

	// Path addresses the statistic.
	Path shared.StatPath

	// Value is the delta, or the new value when Absolute is set.
	Value float64

	// Absolute replaces the statistic instead of incrementing it. Used for
	// stats like the current streak, which resets rather than accumulates.
	Absolute bool
}

// Validate validates the command.
func (c RecordStatCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("record_stat", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	if !c.Path.IsValid() {
		return shared.NewDomainError("record_stat", "Validate", shared.ErrInvalidFormat, "invalid stat path: "+c.Path.String())
	}
	return nil
}

// RecordStatResult contains the result of recording a stat event.
type RecordStatResult struct {
	// UserID is the updated user.
	UserID shared.UserID

	// NewValue is the statistic's value after the update.
	NewValue float64

	// NewUnlocks holds unlock records created by the cascade, in catalog order.
	NewUnlocks []progression.UnlockRecord

	// RecordedAt is when the event was applied.
	RecordedAt time.Time
}

// RecordStatHandler handles RecordStatCommand.
type RecordStatHandler struct {
	statRepo   stats.Repository
	unlockFlow *saga.UnlockFlowSaga
	eventBus   shared.EventPublisher
	clock      timeutil.Clock
	metrics    *metrics.Manager
	log        *logger.Logger

	// userLocks serializes all writes for one user. Striped by user id so
	// unrelated users never contend.
	userLocks *UserLocks
}

// NewRecordStatHandler creates the handler.
func NewRecordStatHandler(
	statRepo stats.Repository,
	unlockFlow *saga.UnlockFlowSaga,
	eventBus shared.EventPublisher,
	clock timeutil.Clock,
	m *metrics.Manager,
	log *logger.Logger,
	userLocks *UserLocks,
) *RecordStatHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	if userLocks == nil {
		userLocks = NewUserLocks(0)
	}
	return &RecordStatHandler{
		statRepo:   statRepo,
		unlockFlow: unlockFlow,
		eventBus:   eventBus,
		clock:      clock,
		metrics:    m,
		log:        log.With(logger.Component("record_stat")),
		userLocks:  userLocks,
	}
}

// Handle applies the stat event and runs the unlock cascade.
//
// The snapshot write and the ledger writes happen under the user's lock, so
// two concurrent events for the same user cannot interleave their
// read-evaluate-write cycles. A persistence failure is returned to the
// caller; nothing is cached as if it succeeded.
func (h *RecordStatHandler) Handle(ctx context.Context, cmd RecordStatCommand) (*RecordStatResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	started := h.clock.Now()

	unlock := h.userLocks.Lock(cmd.UserID)
	defer unlock()

	snapshot, err := h.statRepo.Get(ctx, cmd.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, err
		}
		// First stat event for this user creates the snapshot.
		snapshot = stats.NewSnapshot(cmd.UserID)
	}

	mode := stats.UpdateIncrement
	if cmd.Absolute {
		mode = stats.UpdateSet
	}
	if err := snapshot.Apply(stats.Update{Path: cmd.Path, Value: cmd.Value, Mode: mode}); err != nil {
		return nil, err
	}

	if err := h.statRepo.Save(ctx, snapshot); err != nil {
		return nil, err
	}

	if h.metrics != nil {
		h.metrics.RecordStatEvent()
	}
	if h.eventBus != nil {
		event := shared.NewStatRecordedEvent(cmd.UserID, cmd.Path, cmd.Value, cmd.Absolute)
		if err := h.eventBus.Publish(event); err != nil {
			h.log.Warn("failed to publish stat event",
				logger.StatPath(cmd.Path.String()), logger.Err(err))
		}
	}

	flowResult, err := h.unlockFlow.Execute(ctx, saga.UnlockCheckInput{
		UserID:      cmd.UserID,
		TriggerPath: cmd.Path,
	})
	if err != nil {
		return nil, err
	}

	if h.metrics != nil {
		h.metrics.RecordStatLatency(h.clock.Now().Sub(started))
	}

	return &RecordStatResult{
		UserID:     cmd.UserID,
		NewValue:   snapshot.Resolve(cmd.Path),
		NewUnlocks: flowResult.NewUnlocks,
		RecordedAt: started,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER LOCKS
// ══════════════════════════════════════════════════════════════════════════════

const defaultLockStripes = 256

// UserLocks provides per-user mutual exclusion via lock striping. Two users
// may occasionally share a stripe; that costs throughput, never correctness.
type UserLocks struct {
	stripes []sync.Mutex
}

// NewUserLocks creates a striped lock set. A non-positive count uses the
// default stripe count.
func NewUserLocks(stripeCount int) *UserLocks {
	if stripeCount <= 0 {
		stripeCount = defaultLockStripes
	}
	return &UserLocks{stripes: make([]sync.Mutex, stripeCount)}
}

// Lock acquires the stripe for a user and returns the release function.
func (l *UserLocks) Lock(userID shared.UserID) func() {
	m := &l.stripes[l.stripeFor(userID)]
	m.Lock()
	return m.Unlock
}

func (l *UserLocks) stripeFor(userID shared.UserID) int {
	// FNV-1a over the id string.
	var h uint32 = 2166136261
	for i := 0; i < len(userID); i++ {
		h ^= uint32(userID[i])
		h *= 16777619
	}
	return int(h % uint32(len(l.stripes)))
}
