package command

import (
	"context"
	"time"

	"github.com/capsulehub/capsule-progression-hub/internal/domain/progression"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/shared"
	"github.com/capsulehub/capsule-progression-hub/internal/domain/stats"
	"github.com/capsulehub/capsule-progression-hub/pkg/logger"
	"github.com/capsulehub/capsule-progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Translates raw capsule-app activity into stat events. The app backend
// reports what happened ("a capsule was sealed at 02:14 UTC") and this
// handler derives the statistics the catalog criteria read: the plain
// counter, the hour-of-day habit bucket, and the daily activity streak.
// Every derived update flows through RecordStatHandler, so ingestion runs
// the same unlock cascade as a direct stat event.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind names one kind of user activity in the capsule app.
type ActivityKind string

const (
	// ActivityCapsuleSealed is the creation of a memory capsule.
	ActivityCapsuleSealed ActivityKind = "capsule_sealed"

	// ActivityCapsuleOpened is the opening of a delivered capsule.
	ActivityCapsuleOpened ActivityKind = "capsule_opened"

	// ActivityCapsuleShared is sharing a capsule with a friend.
	ActivityCapsuleShared ActivityKind = "capsule_shared"

	// ActivityReactionGiven is reacting to a shared memory.
	ActivityReactionGiven ActivityKind = "reaction_given"

	// ActivityReactionReceived is someone else reacting to the user's
	// shared memory. Not the user's own doing, so it never advances the
	// streak.
	ActivityReactionReceived ActivityKind = "reaction_received"
)

// counterPaths maps each activity kind to the counter it increments.
var counterPaths = map[ActivityKind]shared.StatPath{
	ActivityCapsuleSealed:    "capsules_created",
	ActivityCapsuleOpened:    "capsules_opened",
	ActivityCapsuleShared:    "capsules_shared",
	ActivityReactionGiven:    "reactions_given",
	ActivityReactionReceived: "reactions_received",
}

// Streak bookkeeping paths. last_day stores the UTC day number of the most
// recent own activity, so consecutive days are detectable across restarts
// without a separate activity log.
const (
	streakCurrentPath = shared.StatPath("streak.current")
	streakLongestPath = shared.StatPath("streak.longest")
	streakLastDayPath = shared.StatPath("streak.last_day")
)

const secondsPerDay = 86400

// RecordActivityCommand reports one user activity.
type RecordActivityCommand struct {
	// UserID is the user who acted (or, for received reactions, whose
	// content was reacted to).
	UserID shared.UserID

	// Kind is the kind of activity.
	Kind ActivityKind

	// OccurredAt is when the activity happened. Zero means now.
	OccurredAt time.Time
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.NewDomainError("record_activity", "Validate", shared.ErrInvalidID, "invalid user id")
	}
	if _, ok := counterPaths[c.Kind]; !ok {
		return shared.NewDomainError("record_activity", "Validate", shared.ErrInvalidInput,
			"unknown activity kind: "+string(c.Kind))
	}
	return nil
}

// RecordActivityResult contains the outcome of one ingested activity.
type RecordActivityResult struct {
	// UserID is the updated user.
	UserID shared.UserID

	// Kind is the ingested activity kind.
	Kind ActivityKind

	// NewUnlocks holds every unlock created by the derived stat events.
	NewUnlocks []progression.UnlockRecord

	// Streak is the current daily streak after this activity. Zero for
	// activity kinds that do not count as the user's own.
	Streak float64

	// RecordedAt is the activity time the updates were derived from.
	RecordedAt time.Time
}

// RecordActivityHandler handles RecordActivityCommand.
type RecordActivityHandler struct {
	statRepo   stats.Repository
	recordStat *RecordStatHandler
	clock      timeutil.Clock
	log        *logger.Logger
}

// NewRecordActivityHandler creates the handler. All derived writes go
// through the given RecordStatHandler.
func NewRecordActivityHandler(
	statRepo stats.Repository,
	recordStat *RecordStatHandler,
	clock timeutil.Clock,
	log *logger.Logger,
) *RecordActivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &RecordActivityHandler{
		statRepo:   statRepo,
		recordStat: recordStat,
		clock:      clock,
		log:        log.With(logger.Component("record_activity")),
	}
}

// Handle derives the stat events for one activity and applies them in
// order through the record-stat pipeline.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	at := cmd.OccurredAt
	if at.IsZero() {
		at = h.clock.Now()
	}
	at = at.UTC()

	updates := []RecordStatCommand{
		{UserID: cmd.UserID, Path: counterPaths[cmd.Kind], Value: 1},
	}
	if cmd.Kind == ActivityCapsuleSealed {
		bucket := shared.StatPath("capsules_by_hour." + timeutil.HourBucket(at))
		updates = append(updates, RecordStatCommand{UserID: cmd.UserID, Path: bucket, Value: 1})
	}

	result := &RecordActivityResult{UserID: cmd.UserID, Kind: cmd.Kind, RecordedAt: at}

	if cmd.Kind != ActivityReactionReceived {
		streakUpdates, streak, err := h.streakUpdates(ctx, cmd.UserID, at)
		if err != nil {
			return nil, err
		}
		updates = append(updates, streakUpdates...)
		result.Streak = streak
	}

	for _, u := range updates {
		res, err := h.recordStat.Handle(ctx, u)
		if err != nil {
			return nil, err
		}
		result.NewUnlocks = append(result.NewUnlocks, res.NewUnlocks...)
	}
	return result, nil
}

// streakUpdates derives the streak changes for own activity at the given
// time. The read runs outside the per-user stripe; each derived write is
// serialized by the stripe, and two same-day activities converge on the
// same day number.
func (h *RecordActivityHandler) streakUpdates(ctx context.Context, userID shared.UserID, at time.Time) ([]RecordStatCommand, float64, error) {
	var current, longest, lastDay float64
	snapshot, err := h.statRepo.Get(ctx, userID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, 0, err
		}
	} else {
		current = snapshot.Resolve(streakCurrentPath)
		longest = snapshot.Resolve(streakLongestPath)
		lastDay = snapshot.Resolve(streakLastDayPath)
	}

	last := time.Unix(int64(lastDay)*secondsPerDay, 0).UTC()

	switch {
	case lastDay == 0:
		current = 1
	case timeutil.IsSameDay(last, at):
		// Already counted today.
		return nil, current, nil
	case timeutil.IsConsecutiveDay(last, at):
		current++
	default:
		// Covers gaps and out-of-order activity older than the last
		// counted day; producers deliver in order.
		h.log.Debug("streak broken",
			logger.UserID(userID.String()),
			logger.Int("gap_days", timeutil.DaysBetween(last, at)),
			logger.String("day", timeutil.FormatDate(at)))
		current = 1
	}

	day := float64(timeutil.StartOfDay(at).Unix() / secondsPerDay)
	updates := []RecordStatCommand{
		{UserID: userID, Path: streakCurrentPath, Value: current, Absolute: true},
		{UserID: userID, Path: streakLastDayPath, Value: day, Absolute: true},
	}
	if current > longest {
		updates = append(updates, RecordStatCommand{
			UserID: userID, Path: streakLongestPath, Value: current, Absolute: true,
		})
	}
	return updates, current, nil
}
