// Package engine implements the progression engine: the single writer of a
// user's points, level and earned achievements.
//
// Every public call takes the user's slot, mutates in-memory state by draining
// an event queue, persists the delta and publishes integration events. A
// failed write reverts the in-memory state to what it was before the call.
package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/notification"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/pkg/logger"
	"github.com/selfdev-app/selfdev/pkg/retry"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxCascade bounds the number of events handled in one call.
const DefaultMaxCascade = 32

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	// Progress is required.
	Progress progression.ProgressRepository

	// Entity stores are optional. When set, the engine writes the changed
	// entity before the progress row and restores it if that write fails.
	Habits habit.Repository
	Goals  goal.Repository
	Plans  training.PlanRepository

	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Clock     timeutil.Clock
	Table     *progression.Table
	Registry  *progression.Registry
}

func (d *Dependencies) withDefaults() {
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Table == nil {
		d.Table = progression.DefaultTable()
	}
	if d.Registry == nil {
		d.Registry = progression.DefaultRegistry()
	}
}

// Config tunes engine behaviour.
type Config struct {
	// MaxCascade limits events processed per call.
	MaxCascade int

	// ConflictRetries is how many times a call is re-applied after a
	// version conflict on the progress row.
	ConflictRetries int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxCascade:      DefaultMaxCascade,
		ConflictRetries: 3,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine owns one user's progression state.
type Engine struct {
	userID string
	deps   Dependencies
	cfg    Config
	log    *logger.Logger

	// sem serializes all calls for this user. Size 1.
	sem *semaphore.Weighted

	loaded   bool
	progress progression.UserProgress
	earned   map[progression.AchievementID]progression.EarnedAchievement
}

// New creates an engine for userID. State is loaded lazily on first use.
func New(userID string, deps Dependencies, cfg Config) (*Engine, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	if deps.Progress == nil {
		return nil, shared.Validation("engine", "New", "progress repository is required")
	}
	deps.withDefaults()
	if cfg.MaxCascade <= 0 {
		cfg.MaxCascade = DefaultMaxCascade
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 1
	}

	return &Engine{
		userID: userID,
		deps:   deps,
		cfg:    cfg,
		log:    deps.Logger.With(logger.Component("engine"), logger.UserID(userID)),
		sem:    semaphore.NewWeighted(1),
	}, nil
}

// UserID returns the owner of this engine.
func (e *Engine) UserID() string {
	return e.userID
}

// ─────────────────────────────────────────────────────────────────────────────
// Public operations
// ─────────────────────────────────────────────────────────────────────────────

// AwardPoints adds delta to the total (clamped at zero) and reports level-ups.
func (e *Engine) AwardPoints(ctx context.Context, delta int, reason string) (Result, error) {
	return e.run(ctx, "AwardPoints", []Event{PointsAwarded{Amount: delta, Reason: reason}})
}

// AwardAchievement unlocks id once. Unknown ids fail with a NotFound error.
func (e *Engine) AwardAchievement(ctx context.Context, id progression.AchievementID) (Result, error) {
	return e.run(ctx, "AwardAchievement", []Event{AchievementCandidate{ID: id}})
}

// EvaluateHabitToggle runs the streak tracker on h and awards the outcome.
// today is the calendar date in the user's time zone.
func (e *Engine) EvaluateHabitToggle(ctx context.Context, h *habit.Habit, today time.Time) (Result, error) {
	return e.run(ctx, "EvaluateHabitToggle", []Event{HabitToggled{Habit: h, Today: today}})
}

// EvaluateFirstOfKind unlocks id iff the collection now holds exactly one item.
func (e *Engine) EvaluateFirstOfKind(ctx context.Context, sizeAfterInsert int, id progression.AchievementID) (Result, error) {
	var events []Event
	if sizeAfterInsert == 1 {
		events = append(events, AchievementCandidate{ID: id})
	}
	return e.run(ctx, "EvaluateFirstOfKind", events)
}

// EvaluateGoalProgress sets a goal's progress and rewards completion.
func (e *Engine) EvaluateGoalProgress(ctx context.Context, g *goal.Goal, newProgress, otherCompleted int) (Result, error) {
	return e.run(ctx, "EvaluateGoalProgress", []Event{GoalProgressChanged{Goal: g, NewProgress: newProgress, OtherCompleted: otherCompleted}})
}

// EvaluatePlanCompleted rewards a finished training session.
func (e *Engine) EvaluatePlanCompleted(ctx context.Context, p *training.Plan) (Result, error) {
	return e.run(ctx, "EvaluatePlanCompleted", []Event{PlanCompleted{Plan: p}})
}

// EvaluateItemCreated rewards creating a habit, goal or plan.
func (e *Engine) EvaluateItemCreated(ctx context.Context, kind ItemKind, first, allCategories bool) (Result, error) {
	return e.run(ctx, "EvaluateItemCreated", []Event{ItemCreated{Kind: kind, First: first, AllCategories: allCategories}})
}

// EvaluateCoachExchange rewards talking to the coach.
func (e *Engine) EvaluateCoachExchange(ctx context.Context, firstUserTurn, replied bool) (Result, error) {
	return e.run(ctx, "EvaluateCoachExchange", []Event{CoachReplied{FirstUserTurn: firstUserTurn, Replied: replied}})
}

// Apply processes arbitrary events in one call.
func (e *Engine) Apply(ctx context.Context, events ...Event) (Result, error) {
	return e.run(ctx, "Apply", events)
}

// Snapshot returns copies of the current state.
func (e *Engine) Snapshot(ctx context.Context) (State, error) {
	if err := e.acquire(ctx, "Snapshot"); err != nil {
		return State{}, err
	}
	defer e.sem.Release(1)

	if err := e.ensureLoaded(ctx); err != nil {
		return State{}, err
	}
	return e.state(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Call pipeline
// ─────────────────────────────────────────────────────────────────────────────

func (e *Engine) acquire(ctx context.Context, op string) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return shared.WrapError("engine", op, shared.ErrTimeout, "progression engine is busy", err)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, op string, events []Event) (Result, error) {
	if err := e.acquire(ctx, op); err != nil {
		return Result{}, err
	}
	defer e.sem.Release(1)

	if err := e.ensureLoaded(ctx); err != nil {
		return Result{}, err
	}

	var (
		res       Result
		published []shared.Event
		done      []write
		attempt   int
	)

	err := retry.ForConflicts(shared.IsConflict, e.cfg.ConflictRetries).Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			e.log.Warn("progress version conflict, reloading", logger.Operation(op), logger.Int("attempt", attempt))
			if len(done) > 0 {
				e.compensate(context.WithoutCancel(ctx), done)
				done = nil
			}
			if err := e.load(ctx); err != nil {
				return retry.Permanent(err)
			}
		}

		current, err := e.reload(ctx, events)
		if err != nil {
			return retry.Permanent(err)
		}

		before := e.capture()
		t := newTxn(e.deps.Clock.Now(), before.progress.TotalPoints)

		if err := e.process(t, current); err != nil {
			e.restore(before)
			return retry.Permanent(err)
		}

		applied, err := e.runWrites(ctx, t.writes)
		if err != nil {
			e.restore(before)
			return retry.Permanent(shared.Storage("engine", op, err))
		}
		done = applied

		if err := e.commit(ctx, t); err != nil {
			e.restore(before)
			if shared.IsConflict(err) {
				return err
			}
			return retry.Permanent(shared.Storage("engine", op, err))
		}

		res = e.result(t)
		published = t.events
		return nil
	})

	if err != nil {
		return e.fail(ctx, op, err, done)
	}

	for _, ev := range published {
		if perr := e.deps.Publisher.Publish(ev); perr != nil {
			e.log.Warn("failed to publish event", logger.String("event", string(ev.EventType())), logger.Err(perr))
		}
	}
	return res, nil
}

// fail compensates entity writes and reports the error.
func (e *Engine) fail(ctx context.Context, op string, err error, done []write) (Result, error) {
	if len(done) > 0 {
		e.compensate(context.WithoutCancel(ctx), done)
	}

	if shared.IsNotFound(err) || shared.IsValidation(err) {
		e.log.Error("progression call rejected", logger.Operation(op), logger.Err(err))
		return Result{Progress: e.progress}, err
	}

	e.log.Error("progression change rolled back", logger.Operation(op), logger.Err(err))
	if perr := e.deps.Publisher.Publish(shared.NewSaveFailedEvent(e.userID, op, err)); perr != nil {
		e.log.Warn("failed to publish event", logger.Err(perr))
	}

	return Result{
		Progress:      e.progress,
		Level:         e.deps.Table.LevelForPoints(e.progress.TotalPoints),
		Next:          e.deps.Table.NextLevelInfo(e.progress.TotalPoints),
		Notifications: []notification.Notification{notification.StorageError("Fortschritt")},
	}, err
}

// reload replaces the entities carried by events with their stored state.
// It runs while the user's slot is held, so a caller that read the entity
// earlier cannot toggle or complete it from a stale copy.
func (e *Engine) reload(ctx context.Context, events []Event) ([]Event, error) {
	out := make([]Event, len(events))
	for i, ev := range events {
		switch ev := ev.(type) {
		case HabitToggled:
			if ev.Habit != nil && e.deps.Habits != nil {
				h, err := e.deps.Habits.Get(ctx, e.userID, ev.Habit.ID)
				if err != nil {
					return nil, entityErr("LoadHabit", err)
				}
				ev.Habit = h
			}
			out[i] = ev
		case GoalProgressChanged:
			if ev.Goal != nil && e.deps.Goals != nil {
				g, err := e.deps.Goals.Get(ctx, e.userID, ev.Goal.ID)
				if err != nil {
					return nil, entityErr("LoadGoal", err)
				}
				completed, err := e.deps.Goals.CountCompleted(ctx, e.userID)
				if err != nil {
					return nil, entityErr("LoadGoal", err)
				}
				if g.IsCompleted() {
					completed--
				}
				ev.Goal, ev.OtherCompleted = g, completed
			}
			out[i] = ev
		default:
			out[i] = ev
		}
	}
	return out, nil
}

func entityErr(op string, err error) error {
	if shared.IsNotFound(err) || shared.IsStorage(err) {
		return err
	}
	return shared.Storage("engine", op, err)
}

// process drains the event queue.
func (e *Engine) process(t *txn, events []Event) error {
	queue := append([]Event(nil), events...)
	for n := 0; len(queue) > 0; n++ {
		if n >= e.cfg.MaxCascade {
			return shared.NewDomainError("engine", "Apply", shared.ErrInvalidInput,
				fmt.Sprintf("event cascade exceeded %d events", e.cfg.MaxCascade))
		}
		ev := queue[0]
		queue = queue[1:]

		next, err := e.handle(t, ev)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}

// commit persists the progress row and newly earned achievements.
func (e *Engine) commit(ctx context.Context, t *txn) error {
	if !t.dirty {
		return nil
	}

	expected := e.progress.Version
	next := e.progress
	next.Version = expected + 1
	next.UpdatedAt = t.now

	var err error
	if c, ok := e.deps.Progress.(progression.AtomicCommitter); ok {
		err = c.CommitProgress(ctx, next, expected, t.unlocked)
	} else if err = e.deps.Progress.SaveProgress(ctx, next, expected); err == nil {
		// The version check passed, so earned rows are only written for a
		// call that actually commits.
		for _, a := range t.unlocked {
			if err = e.deps.Progress.MergeEarned(ctx, e.userID, a); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	e.progress = next
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// State management
// ─────────────────────────────────────────────────────────────────────────────

type snapshot struct {
	progress progression.UserProgress
	earned   map[progression.AchievementID]progression.EarnedAchievement
}

func (e *Engine) capture() snapshot {
	return snapshot{progress: e.progress, earned: maps.Clone(e.earned)}
}

func (e *Engine) restore(s snapshot) {
	e.progress = s.progress
	e.earned = s.earned
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) error {
	r := retry.ForStorage(shared.IsStorage)

	var p progression.UserProgress
	err := r.Do(ctx, func(ctx context.Context) error {
		var gerr error
		p, gerr = e.deps.Progress.GetProgress(ctx, e.userID)
		return gerr
	})
	switch {
	case shared.IsNotFound(err):
		p = progression.NewUserProgress(e.userID, e.deps.Clock.Now())
	case err != nil:
		return shared.Storage("engine", "Load", err)
	}
	p.CurrentLevel = e.deps.Table.LevelForPoints(p.TotalPoints).Level

	var earned map[progression.AchievementID]progression.EarnedAchievement
	err = r.Do(ctx, func(ctx context.Context) error {
		var gerr error
		earned, gerr = e.deps.Progress.GetEarned(ctx, e.userID)
		return gerr
	})
	if err != nil {
		return shared.Storage("engine", "Load", err)
	}
	if earned == nil {
		earned = make(map[progression.AchievementID]progression.EarnedAchievement)
	}

	e.progress = p
	e.earned = earned
	e.loaded = true
	return nil
}

func (e *Engine) state() State {
	return State{
		Progress: e.progress,
		Level:    e.deps.Table.LevelForPoints(e.progress.TotalPoints),
		Next:     e.deps.Table.NextLevelInfo(e.progress.TotalPoints),
		Earned:   maps.Clone(e.earned),
		Quests:   progression.QuestStatuses(e.earned),
	}
}

func (e *Engine) result(t *txn) Result {
	return Result{
		Progress:      e.progress,
		Level:         e.deps.Table.LevelForPoints(e.progress.TotalPoints),
		Next:          e.deps.Table.NextLevelInfo(e.progress.TotalPoints),
		LeveledUp:     t.leveledUp,
		PointsDelta:   e.progress.TotalPoints - t.pointsBefore,
		Unlocked:      t.unlocked,
		Notifications: t.notes,
		Habit:         t.habit,
		Completed:     t.completed,
		Goal:          t.goal,
		Plan:          t.plan,
	}
}
