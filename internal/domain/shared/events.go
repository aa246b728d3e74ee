// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Stat events
	EventStatRecorded EventType = "stats.recorded"

	// Progression events
	EventAchievementUnlocked EventType = "progression.achievement_unlocked"
	EventTitleEquipped       EventType = "progression.title_equipped"
	EventTitleCleared        EventType = "progression.title_cleared"

	// Rarity events
	EventRarityRecomputed EventType = "rarity.recomputed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Stat Events
// ═══════════════════════════════════════════════════════════════════════════

// StatRecordedEvent is emitted after a stat event has been applied to a
// user's snapshot, before the unlock cascade runs.
type StatRecordedEvent struct {
	BaseEvent
	UserID   string  `json:"user_id"`
	StatPath string  `json:"stat_path"`
	Value    float64 `json:"value"`
	Absolute bool    `json:"absolute"`
}

// Payload implements Event interface.
func (e StatRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"stat_path": e.StatPath,
		"value":     e.Value,
		"absolute":  e.Absolute,
	}
}

// NewStatRecordedEvent creates a new StatRecordedEvent.
func NewStatRecordedEvent(userID UserID, path StatPath, value float64, absolute bool) StatRecordedEvent {
	return StatRecordedEvent{
		BaseEvent: NewBaseEvent(EventStatRecorded, userID.String()),
		UserID:    userID.String(),
		StatPath:  path.String(),
		Value:     value,
		Absolute:  absolute,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted exactly once per real unlock, when the
// ledger reports a newly created record. Presentation collaborators use it
// to drive celebration effects.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Rarity        string    `json:"rarity"`
	Title         string    `json:"title,omitempty"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"rarity":         e.Rarity,
		"title":          e.Title,
		"unlocked_at":    e.UnlockedAt.Format(time.RFC3339),
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID UserID, achievementID AchievementID, rarity, title string, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID.String()),
		UserID:        userID.String(),
		AchievementID: achievementID.String(),
		Rarity:        rarity,
		Title:         title,
		UnlockedAt:    unlockedAt,
	}
}

// TitleEquippedEvent is emitted when a user equips an achievement title.
type TitleEquippedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
}

// Payload implements Event interface.
func (e TitleEquippedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"title":          e.Title,
	}
}

// NewTitleEquippedEvent creates a new TitleEquippedEvent.
func NewTitleEquippedEvent(userID UserID, achievementID AchievementID, title string) TitleEquippedEvent {
	return TitleEquippedEvent{
		BaseEvent:     NewBaseEvent(EventTitleEquipped, userID.String()),
		UserID:        userID.String(),
		AchievementID: achievementID.String(),
		Title:         title,
	}
}

// TitleClearedEvent is emitted when a user removes their equipped title.
type TitleClearedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// Payload implements Event interface.
func (e TitleClearedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
	}
}

// NewTitleClearedEvent creates a new TitleClearedEvent.
func NewTitleClearedEvent(userID UserID) TitleClearedEvent {
	return TitleClearedEvent{
		BaseEvent: NewBaseEvent(EventTitleCleared, userID.String()),
		UserID:    userID.String(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Rarity Events
// ═══════════════════════════════════════════════════════════════════════════

// RarityRecomputedEvent is emitted after a full population rarity scan.
type RarityRecomputedEvent struct {
	BaseEvent
	TotalUsers   int           `json:"total_users"`
	Achievements int           `json:"achievements"`
	Duration     time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e RarityRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"total_users":  e.TotalUsers,
		"achievements": e.Achievements,
		"duration":     e.Duration.String(),
	}
}

// NewRarityRecomputedEvent creates a new RarityRecomputedEvent.
func NewRarityRecomputedEvent(totalUsers, achievements int, duration time.Duration) RarityRecomputedEvent {
	return RarityRecomputedEvent{
		BaseEvent:    NewBaseEvent(EventRarityRecomputed, "population"),
		TotalUsers:   totalUsers,
		Achievements: achievements,
		Duration:     duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
