package redis

import (
	"context"

	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// HabitWatcher implements habit.Watcher across replicas. Any replica that
// changes a habit calls Notify; every subscriber then reloads the list from
// the repository.
type HabitWatcher struct {
	habits habit.Repository
	cache  *Cache
	log    *logger.Logger
}

// NewHabitWatcher creates a HabitWatcher.
func NewHabitWatcher(habits habit.Repository, cache *Cache, log *logger.Logger) *HabitWatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &HabitWatcher{habits: habits, cache: cache, log: log.With(logger.Component("habit_watcher"))}
}

// Watch delivers the current list at once and again after every Notify for userID.
func (w *HabitWatcher) Watch(ctx context.Context, userID string, onChange func([]*habit.Habit), onError func(error)) (func(), error) {
	if onError == nil {
		onError = func(error) {}
	}

	messages, stop, err := w.cache.Listen(ctx, HabitChannel(userID))
	if err != nil {
		return nil, shared.Storage("habit", "Watch", err)
	}

	list, err := w.habits.List(ctx, userID)
	if err != nil {
		stop()
		return nil, err
	}
	onChange(list)

	go func() {
		for range messages {
			list, err := w.habits.List(ctx, userID)
			if err != nil {
				onError(err)
				continue
			}
			onChange(list)
		}
	}()
	return stop, nil
}

// Notify announces that userID's habits changed.
func (w *HabitWatcher) Notify(ctx context.Context, userID string) error {
	return w.cache.Broadcast(ctx, HabitChannel(userID), []byte(userID))
}

// HandleEvent is an event bus handler that notifies on habit events.
func (w *HabitWatcher) HandleEvent(event shared.Event) error {
	switch event.EventType() {
	case shared.EventHabitChanged, shared.EventHabitToggled:
		if err := w.Notify(context.Background(), event.AggregateID()); err != nil {
			w.log.Warn("habit notify failed", logger.UserID(event.AggregateID()), logger.Err(err))
			return err
		}
	}
	return nil
}
