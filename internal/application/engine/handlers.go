package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/notification"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// handle applies one event to the in-memory state and returns follow-up events.
func (e *Engine) handle(t *txn, ev Event) ([]Event, error) {
	switch ev := ev.(type) {
	case PointsAwarded:
		return e.onPoints(t, ev), nil
	case AchievementCandidate:
		return e.onCandidate(t, ev)
	case HabitToggled:
		return e.onHabitToggled(t, ev)
	case GoalProgressChanged:
		return e.onGoalProgress(t, ev)
	case PlanCompleted:
		return e.onPlanCompleted(t, ev)
	case ItemCreated:
		return e.onItemCreated(ev)
	case CoachReplied:
		return e.onCoachReplied(ev), nil
	default:
		return nil, shared.Validation("engine", "Apply", fmt.Sprintf("unsupported event %T", ev))
	}
}

func (e *Engine) onPoints(t *txn, ev PointsAwarded) []Event {
	oldTotal := e.progress.TotalPoints
	oldLevel := e.progress.CurrentLevel

	total := shared.Points(oldTotal).Add(ev.Amount).Int()
	if total == oldTotal {
		return nil
	}
	lvl := e.deps.Table.LevelForPoints(total)

	e.progress.TotalPoints = total
	e.progress.CurrentLevel = lvl.Level
	t.dirty = true
	t.events = append(t.events, shared.NewPointsAwardedEvent(e.userID, total-oldTotal, total, ev.Reason))

	if lvl.Level <= oldLevel {
		return nil
	}

	t.leveledUp = true
	t.notes = append(t.notes, notification.LevelUp(lvl.Level, lvl.Name))
	t.events = append(t.events, shared.NewLevelUpEvent(e.userID, oldLevel, lvl.Level, lvl.Name))
	e.log.Info("level up", logger.LevelNumber(lvl.Level), logger.Points(total))

	// Only a level-up that lands exactly on the milestone level counts.
	if lvl.Level == progression.MilestoneLevel {
		return []Event{AchievementCandidate{ID: progression.Level5Reached}}
	}
	return nil
}

func (e *Engine) onCandidate(t *txn, ev AchievementCandidate) ([]Event, error) {
	def, err := e.deps.Registry.Get(ev.ID)
	if err != nil {
		e.log.Error("unknown achievement", logger.AchievementID(ev.ID.String()), logger.Err(err))
		return nil, err
	}
	if _, ok := e.earned[ev.ID]; ok {
		return nil, nil
	}

	// Earned is recorded before the reward is queued.
	earned := def.Earn(t.now)
	e.earned[ev.ID] = earned
	t.unlocked = append(t.unlocked, earned)
	t.dirty = true
	t.notes = append(t.notes, notification.AchievementUnlocked(def.Name, def.PointReward))
	t.events = append(t.events, shared.NewAchievementUnlockedEvent(e.userID, def.ID.String(), def.Name, def.PointReward))

	if def.PointReward == 0 {
		return nil, nil
	}
	return []Event{PointsAwarded{Amount: def.PointReward, Reason: "achievement:" + def.ID.String()}}, nil
}

func (e *Engine) onHabitToggled(t *txn, ev HabitToggled) ([]Event, error) {
	if ev.Habit == nil {
		return nil, shared.Validation("engine", "EvaluateHabitToggle", "habit is required")
	}
	today := time.Date(ev.Today.Year(), ev.Today.Month(), ev.Today.Day(), 0, 0, 0, 0, time.UTC)

	r := habit.ToggleCompletion(ev.Habit, today)
	r.Habit.UpdatedAt = t.now
	t.habit = r.Habit
	t.completed = r.Completed

	if e.deps.Habits != nil {
		updated, original := r.Habit.Clone(), ev.Habit.Clone()
		t.writes = append(t.writes, write{
			name: "habit",
			do:   func(ctx context.Context) error { return e.deps.Habits.Save(ctx, updated) },
			undo: func(ctx context.Context) error { return e.deps.Habits.Save(ctx, original) },
		})
	}
	t.events = append(t.events,
		shared.NewHabitToggledEvent(e.userID, r.Habit.ID, r.Completed, r.Habit.Streak),
		shared.NewHabitChangedEvent(e.userID, r.Habit.ID, "toggle"),
	)

	next := []Event{PointsAwarded{Amount: r.PointsDelta, Reason: "habit:" + r.Habit.ID}}
	if r.CrossedStreak != nil {
		if id, ok := progression.StreakMilestones[*r.CrossedStreak]; ok {
			next = append(next, AchievementCandidate{ID: id})
		}
	}
	return next, nil
}

func (e *Engine) onGoalProgress(t *txn, ev GoalProgressChanged) ([]Event, error) {
	if ev.Goal == nil {
		return nil, shared.Validation("engine", "EvaluateGoalProgress", "goal is required")
	}
	g := ev.Goal.Clone()
	justCompleted := g.SetProgress(ev.NewProgress, t.now)
	t.goal = g

	if e.deps.Goals != nil {
		updated, original := g.Clone(), ev.Goal.Clone()
		t.writes = append(t.writes, write{
			name: "goal",
			do:   func(ctx context.Context) error { return e.deps.Goals.Save(ctx, updated) },
			undo: func(ctx context.Context) error { return e.deps.Goals.Save(ctx, original) },
		})
	}
	if !justCompleted {
		return nil, nil
	}

	completed := ev.OtherCompleted + 1
	t.notes = append(t.notes, notification.Celebrate("Glückwunsch!",
		fmt.Sprintf("Ziel %q erreicht! +%d P.", g.Name, goal.CompletionPoints)))
	t.events = append(t.events, shared.NewGoalCompletedEvent(e.userID, g.ID, completed))

	next := []Event{
		PointsAwarded{Amount: goal.CompletionPoints, Reason: "goal:" + g.ID},
		AchievementCandidate{ID: progression.FirstGoalCompleted},
	}
	if completed >= progression.FiveGoalsThreshold {
		next = append(next, AchievementCandidate{ID: progression.FiveGoalsCompleted})
	}
	return next, nil
}

func (e *Engine) onPlanCompleted(t *txn, ev PlanCompleted) ([]Event, error) {
	if ev.Plan == nil {
		return nil, shared.Validation("engine", "EvaluatePlanCompleted", "plan is required")
	}
	p := ev.Plan.Clone()
	p.MarkCompleted(t.now)
	t.plan = p

	if e.deps.Plans != nil {
		updated, original := p.Clone(), ev.Plan.Clone()
		t.writes = append(t.writes, write{
			name: "plan",
			do:   func(ctx context.Context) error { return e.deps.Plans.Save(ctx, updated) },
			undo: func(ctx context.Context) error { return e.deps.Plans.Save(ctx, original) },
		})
	}

	t.notes = append(t.notes, notification.Celebrate("Training beendet!",
		fmt.Sprintf("Super! Plan %q abgeschlossen (+%d P.).", p.Name, training.CompletionPoints)))
	t.events = append(t.events, shared.NewPlanCompletedEvent(e.userID, p.ID))

	return []Event{
		PointsAwarded{Amount: training.CompletionPoints, Reason: "plan:" + p.ID},
		AchievementCandidate{ID: progression.FirstPlanCompleted},
	}, nil
}

func (e *Engine) onItemCreated(ev ItemCreated) ([]Event, error) {
	points, ok := creationPoints[ev.Kind]
	if !ok {
		return nil, shared.Validation("engine", "EvaluateItemCreated", "unknown item kind "+string(ev.Kind))
	}

	next := []Event{PointsAwarded{Amount: points, Reason: "created:" + string(ev.Kind)}}
	if ev.First {
		next = append(next, AchievementCandidate{ID: firstOfKind[ev.Kind]})
	}
	if ev.Kind == ItemPlan && ev.AllCategories {
		next = append(next, AchievementCandidate{ID: progression.MultiCategoryPlan})
	}
	return next, nil
}

func (e *Engine) onCoachReplied(ev CoachReplied) []Event {
	var next []Event
	if ev.FirstUserTurn {
		next = append(next, AchievementCandidate{ID: progression.FirstCoachChat})
	}
	if ev.Replied {
		next = append(next, PointsAwarded{Amount: CoachReplyPoints, Reason: "coach"})
	}
	return next
}

// ─────────────────────────────────────────────────────────────────────────────
// Entity writes
// ─────────────────────────────────────────────────────────────────────────────

// write is an entity change with its compensation.
type write struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// runWrites applies writes in order. On failure the applied ones are undone.
func (e *Engine) runWrites(ctx context.Context, writes []write) ([]write, error) {
	applied := make([]write, 0, len(writes))
	for _, w := range writes {
		if err := w.do(ctx); err != nil {
			e.compensate(context.WithoutCancel(ctx), applied)
			return nil, fmt.Errorf("save %s: %w", w.name, err)
		}
		applied = append(applied, w)
	}
	return applied, nil
}

// compensate undoes writes in reverse order. Failures are logged only.
func (e *Engine) compensate(ctx context.Context, writes []write) {
	for i := len(writes) - 1; i >= 0; i-- {
		if err := writes[i].undo(ctx); err != nil {
			e.log.Error("compensation failed", logger.String("entity", writes[i].name), logger.Err(err))
		}
	}
}
