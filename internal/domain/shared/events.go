// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of integration event.
type EventType string

// Integration event types. These are published after a progression change
// has been committed and drive metrics, cache invalidation and pub/sub fan-out.
const (
	// Progress events
	EventPointsAwarded EventType = "progress.points_awarded"
	EventLevelUp       EventType = "progress.level_up"
	EventSaveFailed    EventType = "progress.save_failed"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Habit events
	EventHabitToggled EventType = "habit.toggled"
	EventHabitChanged EventType = "habit.changed"

	// Goal and training events
	EventGoalCompleted EventType = "goal.completed"
	EventPlanCompleted EventType = "training.plan_completed"

	// Coach events
	EventCoachReplied EventType = "coach.replied"
)

// Event is the base interface for all integration events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the user the event belongs to.
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
		Timestamp:   time.Now(),
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
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent is emitted when a user's point total changes.
type PointsAwardedEvent struct {
	BaseEvent
	Delta    int    `json:"delta"`
	NewTotal int    `json:"new_total"`
	Reason   string `json:"reason"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"delta":     e.Delta,
		"new_total": e.NewTotal,
		"reason":    e.Reason,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(userID string, delta, newTotal int, reason string) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent: NewBaseEvent(EventPointsAwarded, userID),
		Delta:     delta,
		NewTotal:  newTotal,
		Reason:    reason,
	}
}

// LevelUpEvent is emitted when a user reaches a higher level.
type LevelUpEvent struct {
	BaseEvent
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	LevelName string `json:"level_name"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level":  e.OldLevel,
		"new_level":  e.NewLevel,
		"level_name": e.LevelName,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, name string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LevelName: name,
	}
}

// SaveFailedEvent is emitted when a progression change could not be persisted
// and the in-memory state was rolled back.
type SaveFailedEvent struct {
	BaseEvent
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// Payload implements Event interface.
func (e SaveFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"operation": e.Operation,
		"error":     e.Error,
	}
}

// NewSaveFailedEvent creates a new SaveFailedEvent.
func NewSaveFailedEvent(userID, operation string, err error) SaveFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return SaveFailedEvent{
		BaseEvent: NewBaseEvent(EventSaveFailed, userID),
		Operation: operation,
		Error:     msg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per (user, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	PointReward   int    `json:"point_reward"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"point_reward":   e.PointReward,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name string, reward int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		AchievementID: achievementID,
		Name:          name,
		PointReward:   reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Habit Events
// ═══════════════════════════════════════════════════════════════════════════

// HabitToggledEvent is emitted after a habit completion was toggled.
type HabitToggledEvent struct {
	BaseEvent
	HabitID   string `json:"habit_id"`
	Completed bool   `json:"completed"`
	Streak    int    `json:"streak"`
}

// Payload implements Event interface.
func (e HabitToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":  e.HabitID,
		"completed": e.Completed,
		"streak":    e.Streak,
	}
}

// NewHabitToggledEvent creates a new HabitToggledEvent.
func NewHabitToggledEvent(userID, habitID string, completed bool, streak int) HabitToggledEvent {
	return HabitToggledEvent{
		BaseEvent: NewBaseEvent(EventHabitToggled, userID),
		HabitID:   habitID,
		Completed: completed,
		Streak:    streak,
	}
}

// HabitChangedEvent signals that a user's habit collection changed
// (create, rename, delete or toggle). Watchers reload on receipt.
type HabitChangedEvent struct {
	BaseEvent
	HabitID string `json:"habit_id"`
	Change  string `json:"change"`
}

// Payload implements Event interface.
func (e HabitChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id": e.HabitID,
		"change":   e.Change,
	}
}

// NewHabitChangedEvent creates a new HabitChangedEvent.
func NewHabitChangedEvent(userID, habitID, change string) HabitChangedEvent {
	return HabitChangedEvent{
		BaseEvent: NewBaseEvent(EventHabitChanged, userID),
		HabitID:   habitID,
		Change:    change,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Goal, Training and Coach Events
// ═══════════════════════════════════════════════════════════════════════════

// GoalCompletedEvent is emitted when a goal reaches 100% progress.
type GoalCompletedEvent struct {
	BaseEvent
	GoalID         string `json:"goal_id"`
	CompletedGoals int    `json:"completed_goals"`
}

// Payload implements Event interface.
func (e GoalCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"goal_id":         e.GoalID,
		"completed_goals": e.CompletedGoals,
	}
}

// NewGoalCompletedEvent creates a new GoalCompletedEvent.
func NewGoalCompletedEvent(userID, goalID string, completed int) GoalCompletedEvent {
	return GoalCompletedEvent{
		BaseEvent:      NewBaseEvent(EventGoalCompleted, userID),
		GoalID:         goalID,
		CompletedGoals: completed,
	}
}

// PlanCompletedEvent is emitted when a training plan is marked completed.
type PlanCompletedEvent struct {
	BaseEvent
	PlanID string `json:"plan_id"`
}

// Payload implements Event interface.
func (e PlanCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"plan_id": e.PlanID}
}

// NewPlanCompletedEvent creates a new PlanCompletedEvent.
func NewPlanCompletedEvent(userID, planID string) PlanCompletedEvent {
	return PlanCompletedEvent{
		BaseEvent: NewBaseEvent(EventPlanCompleted, userID),
		PlanID:    planID,
	}
}

// CoachRepliedEvent is emitted after a successful coach exchange.
type CoachRepliedEvent struct {
	BaseEvent
	Provider string `json:"provider"`
	Latency  int64  `json:"latency_ms"`
}

// Payload implements Event interface.
func (e CoachRepliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"provider":   e.Provider,
		"latency_ms": e.Latency,
	}
}

// NewCoachRepliedEvent creates a new CoachRepliedEvent.
func NewCoachRepliedEvent(userID, provider string, latency time.Duration) CoachRepliedEvent {
	return CoachRepliedEvent{
		BaseEvent: NewBaseEvent(EventCoachReplied, userID),
		Provider:  provider,
		Latency:   latency.Milliseconds(),
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
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event payload into an envelope.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Payload:     payload,
	}, nil
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

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
