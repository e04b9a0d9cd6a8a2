package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/notification"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/memory"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testUser = "user-1"

var (
	testNow   = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	testToday = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// failingProgress fails every commit with err.
type failingProgress struct {
	*memory.Store
	err     error
	commits int
}

func (f *failingProgress) CommitProgress(context.Context, progression.UserProgress, int64, []progression.EarnedAchievement) error {
	f.commits++
	return f.err
}

// plainProgress hides the atomic commit path of the memory store.
type plainProgress struct {
	store *memory.Store
}

func (p plainProgress) GetProgress(ctx context.Context, userID string) (progression.UserProgress, error) {
	return p.store.GetProgress(ctx, userID)
}

func (p plainProgress) SaveProgress(ctx context.Context, up progression.UserProgress, expected int64) error {
	return p.store.SaveProgress(ctx, up, expected)
}

func (p plainProgress) GetEarned(ctx context.Context, userID string) (map[progression.AchievementID]progression.EarnedAchievement, error) {
	return p.store.GetEarned(ctx, userID)
}

func (p plainProgress) MergeEarned(ctx context.Context, userID string, a progression.EarnedAchievement) error {
	return p.store.MergeEarned(ctx, userID, a)
}

// rejectingSave fails every SaveProgress with err.
type rejectingSave struct {
	plainProgress
	err error
}

func (r rejectingSave) SaveProgress(context.Context, progression.UserProgress, int64) error {
	return r.err
}

type fixture struct {
	store *memory.Store
	pub   *recordingPublisher
	deps  Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	return &fixture{
		store: store,
		pub:   pub,
		deps: Dependencies{
			Progress:  store,
			Habits:    store,
			Goals:     store.Goals(),
			Plans:     store.Plans(),
			Publisher: pub,
			Clock:     timeutil.FixedClock{At: testNow},
		},
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testUser, f.deps, DefaultConfig())
	require.NoError(t, err)
	return e
}

func (f *fixture) seedPoints(t *testing.T, points int) {
	t.Helper()
	p := progression.NewUserProgress(testUser, testNow)
	p.TotalPoints = points
	p.CurrentLevel = progression.LevelForPoints(points).Level
	p.Version = 1
	require.NoError(t, f.store.SaveProgress(context.Background(), p, 0))
}

func (f *fixture) seedHabit(t *testing.T, streak int, last *time.Time) *habit.Habit {
	t.Helper()
	h, err := habit.New("h1", testUser, "Lesen", testNow)
	require.NoError(t, err)
	h.Streak = streak
	h.LastCompletedDate = last
	_, err = f.store.Create(context.Background(), h)
	require.NoError(t, err)
	return h
}

func (f *fixture) seedGoal(t *testing.T, id string, progress int) *goal.Goal {
	t.Helper()
	g, err := goal.New(id, testUser, goal.Details{Name: "Ziel " + id}, testNow)
	require.NoError(t, err)
	g.SetProgress(progress, testNow)
	_, err = f.deps.Goals.Create(context.Background(), g)
	require.NoError(t, err)
	return g
}

func (f *fixture) seedCompletedGoal(t *testing.T, id string) {
	t.Helper()
	f.seedGoal(t, id, 100)
}

func dayBefore(d time.Time) *time.Time {
	prev := d.AddDate(0, 0, -1)
	return &prev
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	store := memory.NewStore()

	_, err := New("", Dependencies{Progress: store}, DefaultConfig())
	assert.True(t, shared.IsValidation(err))

	_, err = New("user 1", Dependencies{Progress: store}, DefaultConfig())
	assert.True(t, shared.IsValidation(err))

	_, err = New(testUser, Dependencies{}, DefaultConfig())
	assert.True(t, shared.IsValidation(err))

	e, err := New(testUser, Dependencies{Progress: store}, Config{})
	require.NoError(t, err)
	assert.Equal(t, testUser, e.UserID())
	assert.Equal(t, DefaultMaxCascade, e.cfg.MaxCascade)
}

// ─────────────────────────────────────────────────────────────────────────────
// Points and levels
// ─────────────────────────────────────────────────────────────────────────────

func TestAwardPoints(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		delta     int
		wantTotal int
		wantLevel int
		leveledUp bool
	}{
		{"fresh user stays level 1", 0, 30, 30, 1, false},
		{"crossing 100 levels up", 90, 15, 105, 2, true},
		{"exact threshold levels up", 99, 1, 100, 2, true},
		{"negative delta clamps at zero", 20, -50, 0, 1, false},
		{"losing points never levels up", 300, -100, 200, 2, false},
		{"multi-level jump", 0, 600, 600, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.start > 0 {
				f.seedPoints(t, tt.start)
			}
			e := f.engine(t)

			res, err := e.AwardPoints(context.Background(), tt.delta, "test")
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, res.Progress.TotalPoints)
			assert.Equal(t, tt.wantLevel, res.Progress.CurrentLevel)
			assert.Equal(t, tt.wantLevel, res.Level.Level)
			assert.Equal(t, tt.leveledUp, res.LeveledUp)
			assert.Equal(t, tt.wantTotal-tt.start, res.PointsDelta)

			stored, err := f.store.GetProgress(context.Background(), testUser)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, stored.TotalPoints)
		})
	}
}

func TestAwardPoints_LevelUpNotification(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 90)
	e := f.engine(t)

	res, err := e.AwardPoints(context.Background(), 15, "test")
	require.NoError(t, err)

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, notification.KindLevelUp, res.Notifications[0].Kind)
	assert.Equal(t, "Level Aufstieg!", res.Notifications[0].Title)
	assert.Contains(t, res.Notifications[0].Message, "Aufsteiger")
	assert.Contains(t, f.pub.types(), shared.EventLevelUp)
}

func TestAwardPoints_ZeroDeltaDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 50)
	e := f.engine(t)

	res, err := e.AwardPoints(context.Background(), 0, "noop")
	require.NoError(t, err)
	assert.Equal(t, 50, res.Progress.TotalPoints)
	assert.Equal(t, int64(1), res.Progress.Version)
}

func TestAwardPoints_ReachingLevelFive(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 990)
	e := f.engine(t)

	res, err := e.AwardPoints(context.Background(), 10, "test")
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 5, res.Progress.CurrentLevel)
	assert.True(t, res.Awarded(progression.Level5Reached))
	assert.Equal(t, 1200, res.Progress.TotalPoints)

	earned, err := f.store.GetEarned(context.Background(), testUser)
	require.NoError(t, err)
	assert.Contains(t, earned, progression.Level5Reached)
}

func TestAwardPoints_SkippingPastLevelFive(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 900)
	e := f.engine(t)

	res, err := e.AwardPoints(context.Background(), 1200, "test")
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 6, res.Progress.CurrentLevel)
	assert.False(t, res.Awarded(progression.Level5Reached))
	assert.Equal(t, 2100, res.Progress.TotalPoints)

	earned, err := f.store.GetEarned(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotContains(t, earned, progression.Level5Reached)
}

func TestAwardPoints_VersionIncrements(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := e.AwardPoints(ctx, 1, "tick")
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.Progress.Version)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

func TestAwardAchievement_Idempotent(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	first, err := e.AwardAchievement(ctx, progression.FirstHabitCreated)
	require.NoError(t, err)
	assert.True(t, first.Awarded(progression.FirstHabitCreated))
	assert.Equal(t, 15, first.Progress.TotalPoints)

	second, err := e.AwardAchievement(ctx, progression.FirstHabitCreated)
	require.NoError(t, err)
	assert.Empty(t, second.Unlocked)
	assert.Equal(t, 15, second.Progress.TotalPoints)
	assert.Equal(t, first.Progress.Version, second.Progress.Version)
	assert.Zero(t, second.PointsDelta)
}

func TestAwardAchievement_Unknown(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 40)
	e := f.engine(t)

	res, err := e.AwardAchievement(context.Background(), "NOT_A_REAL_ONE")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 40, res.Progress.TotalPoints)

	state, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Earned)
}

func TestAwardAchievement_NotificationAndEvent(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	res, err := e.AwardAchievement(context.Background(), progression.FirstCoachChat)
	require.NoError(t, err)

	require.NotEmpty(t, res.Notifications)
	assert.Equal(t, notification.KindAchievement, res.Notifications[0].Kind)
	assert.Equal(t, []shared.EventType{shared.EventAchievementUnlocked, shared.EventPointsAwarded}, f.pub.types())
}

func TestEvaluateFirstOfKind(t *testing.T) {
	tests := []struct {
		size  int
		award bool
	}{
		{0, false},
		{1, true},
		{2, false},
	}

	for _, tt := range tests {
		f := newFixture(t)
		e := f.engine(t)

		res, err := e.EvaluateFirstOfKind(context.Background(), tt.size, progression.FirstPlanCreated)
		require.NoError(t, err)
		assert.Equal(t, tt.award, res.Awarded(progression.FirstPlanCreated), "size %d", tt.size)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Habits
// ─────────────────────────────────────────────────────────────────────────────

func TestEvaluateHabitToggle_FirstCompletion(t *testing.T) {
	f := newFixture(t)
	h := f.seedHabit(t, 0, nil)
	e := f.engine(t)

	res, err := e.EvaluateHabitToggle(context.Background(), h, testToday)
	require.NoError(t, err)

	require.NotNil(t, res.Habit)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.Habit.Streak)
	require.NotNil(t, res.Habit.LastCompletedDate)
	assert.True(t, res.Habit.LastCompletedDate.Equal(testToday))
	assert.Equal(t, 5, res.PointsDelta)
	assert.Empty(t, res.Unlocked)

	stored, err := f.store.Get(context.Background(), testUser, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
}

func TestEvaluateHabitToggle_UndoRestores(t *testing.T) {
	f := newFixture(t)
	h := f.seedHabit(t, 3, dayBefore(testToday))
	e := f.engine(t)
	ctx := context.Background()

	done, err := e.EvaluateHabitToggle(ctx, h, testToday)
	require.NoError(t, err)
	assert.Equal(t, 4, done.Habit.Streak)

	undone, err := e.EvaluateHabitToggle(ctx, done.Habit, testToday)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Equal(t, 3, undone.Habit.Streak)
	assert.Nil(t, undone.Habit.LastCompletedDate)
	assert.Equal(t, 0, undone.Progress.TotalPoints)
}

func TestEvaluateHabitToggle_StreakMilestones(t *testing.T) {
	tests := []struct {
		name      string
		streak    int
		want      progression.AchievementID
		wantTotal int
	}{
		{"seven days", 6, progression.HabitStreak7Days, 5 + 50},
		{"thirty days", 29, progression.HabitStreak30Days, 5 + 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := f.seedHabit(t, tt.streak, dayBefore(testToday))
			e := f.engine(t)

			res, err := e.EvaluateHabitToggle(context.Background(), h, testToday)
			require.NoError(t, err)
			assert.True(t, res.Awarded(tt.want))
			assert.Equal(t, tt.wantTotal, res.Progress.TotalPoints)
		})
	}
}

func TestEvaluateHabitToggle_QuestCompletes(t *testing.T) {
	f := newFixture(t)
	h := f.seedHabit(t, 6, dayBefore(testToday))
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.EvaluateHabitToggle(ctx, h, testToday)
	require.NoError(t, err)

	state, err := e.Snapshot(ctx)
	require.NoError(t, err)
	for _, q := range state.Quests {
		assert.Equal(t, q.ID == "FOREST_OF_HABIT", q.Completed, q.ID)
	}
}

func TestEvaluateHabitToggle_NilHabit(t *testing.T) {
	e := newFixture(t).engine(t)
	_, err := e.EvaluateHabitToggle(context.Background(), nil, testToday)
	assert.True(t, shared.IsValidation(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Goals, plans, creation, coach
// ─────────────────────────────────────────────────────────────────────────────

func TestEvaluateGoalProgress(t *testing.T) {
	tests := []struct {
		name       string
		start      int
		progress   int
		others     int
		wantTotal  int
		wantStatus goal.Status
		unlocked   []progression.AchievementID
	}{
		{"partial progress", 0, 40, 0, 0, goal.StatusActive, nil},
		{"first completion", 60, 100, 0, 50 + 75, goal.StatusCompleted,
			[]progression.AchievementID{progression.FirstGoalCompleted}},
		{"fifth completion", 90, 100, 4, 50 + 75 + 100, goal.StatusCompleted,
			[]progression.AchievementID{progression.FirstGoalCompleted, progression.FiveGoalsCompleted}},
		{"clamped above 100", 10, 150, 0, 50 + 75, goal.StatusCompleted,
			[]progression.AchievementID{progression.FirstGoalCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			g, err := goal.New("g1", testUser, goal.Details{Name: "Marathon laufen"}, testNow)
			require.NoError(t, err)
			g.Progress = tt.start
			_, err = f.deps.Goals.Create(context.Background(), g)
			require.NoError(t, err)
			for i := range tt.others {
				f.seedCompletedGoal(t, fmt.Sprintf("done-%d", i))
			}
			e := f.engine(t)

			res, err := e.EvaluateGoalProgress(context.Background(), g, tt.progress, tt.others)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, res.Progress.TotalPoints)
			require.NotNil(t, res.Goal)
			assert.Equal(t, tt.wantStatus, res.Goal.Status)
			for _, id := range tt.unlocked {
				assert.True(t, res.Awarded(id), id)
			}
			assert.Len(t, res.Unlocked, len(tt.unlocked))

			stored, err := f.deps.Goals.Get(context.Background(), testUser, g.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}
}

func TestEvaluateGoalProgress_AlreadyCompleted(t *testing.T) {
	f := newFixture(t)
	g, err := goal.New("g1", testUser, goal.Details{Name: "Buch lesen"}, testNow)
	require.NoError(t, err)
	g.SetProgress(100, testNow)
	_, err = f.deps.Goals.Create(context.Background(), g)
	require.NoError(t, err)
	e := f.engine(t)

	res, err := e.EvaluateGoalProgress(context.Background(), g, 100, 1)
	require.NoError(t, err)
	assert.Zero(t, res.PointsDelta)
	assert.Empty(t, res.Unlocked)
}

func TestEvaluatePlanCompleted_Repeatable(t *testing.T) {
	f := newFixture(t)
	p, err := training.NewPlan("p1", testUser, "Morgenroutine", []string{"ex1"},
		training.IndexExercises(training.DefaultExercises), testNow)
	require.NoError(t, err)
	_, err = f.deps.Plans.Create(context.Background(), p)
	require.NoError(t, err)
	e := f.engine(t)
	ctx := context.Background()

	first, err := e.EvaluatePlanCompleted(ctx, p)
	require.NoError(t, err)
	assert.True(t, first.Awarded(progression.FirstPlanCompleted))
	assert.Equal(t, 25+30, first.Progress.TotalPoints)
	assert.Equal(t, 1, first.Plan.TimesCompleted)

	second, err := e.EvaluatePlanCompleted(ctx, first.Plan)
	require.NoError(t, err)
	assert.Empty(t, second.Unlocked)
	assert.Equal(t, 25+30+25, second.Progress.TotalPoints)
	assert.Equal(t, 2, second.Plan.TimesCompleted)
}

func TestEvaluateItemCreated(t *testing.T) {
	tests := []struct {
		name      string
		kind      ItemKind
		first     bool
		allCats   bool
		wantTotal int
		unlocked  []progression.AchievementID
	}{
		{"first habit", ItemHabit, true, false, 10 + 15, []progression.AchievementID{progression.FirstHabitCreated}},
		{"second habit", ItemHabit, false, false, 10, nil},
		{"first goal", ItemGoal, true, false, 20 + 20, []progression.AchievementID{progression.FirstGoalCreated}},
		{"first plan", ItemPlan, true, false, 15 + 20, []progression.AchievementID{progression.FirstPlanCreated}},
		{"multi-category plan", ItemPlan, true, true, 15 + 20 + 40,
			[]progression.AchievementID{progression.FirstPlanCreated, progression.MultiCategoryPlan}},
		{"categories ignored for goals", ItemGoal, false, true, 20, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFixture(t).engine(t)

			res, err := e.EvaluateItemCreated(context.Background(), tt.kind, tt.first, tt.allCats)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, res.Progress.TotalPoints)
			var got []progression.AchievementID
			for _, a := range res.Unlocked {
				got = append(got, a.AchievementID)
			}
			if diff := cmp.Diff(tt.unlocked, got); diff != "" {
				t.Errorf("unlocked mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateItemCreated_UnknownKind(t *testing.T) {
	e := newFixture(t).engine(t)
	_, err := e.EvaluateItemCreated(context.Background(), "diary", true, false)
	assert.True(t, shared.IsValidation(err))
}

func TestEvaluateCoachExchange(t *testing.T) {
	tests := []struct {
		name      string
		firstTurn bool
		replied   bool
		wantTotal int
	}{
		{"first turn with reply", true, true, 10 + 5},
		{"first turn, coach failed", true, false, 10},
		{"later turn", false, true, 5},
		{"later turn, coach failed", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFixture(t).engine(t)

			res, err := e.EvaluateCoachExchange(context.Background(), tt.firstTurn, tt.replied)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.Progress.TotalPoints)
			assert.Equal(t, tt.firstTurn, res.Awarded(progression.FirstCoachChat))
		})
	}
}

func TestApply_CascadeLimit(t *testing.T) {
	f := newFixture(t)
	e, err := New(testUser, f.deps, Config{MaxCascade: 2})
	require.NoError(t, err)

	_, err = e.Apply(context.Background(), ItemCreated{Kind: ItemGoal, First: true})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	state, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, state.Progress.TotalPoints)
	assert.Empty(t, state.Earned)
}

func TestApply_MultipleEvents(t *testing.T) {
	e := newFixture(t).engine(t)

	res, err := e.Apply(context.Background(),
		PointsAwarded{Amount: 40, Reason: "a"},
		PointsAwarded{Amount: 70, Reason: "b"},
		AchievementCandidate{ID: progression.FirstGoalCreated},
	)
	require.NoError(t, err)
	assert.Equal(t, 130, res.Progress.TotalPoints)
	assert.Equal(t, 2, res.Progress.CurrentLevel)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, int64(1), res.Progress.Version)
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence failures and concurrency
// ─────────────────────────────────────────────────────────────────────────────

func TestRollbackOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.seedPoints(t, 90)
	h := f.seedHabit(t, 0, nil)

	failing := &failingProgress{Store: f.store, err: errors.New("disk full")}
	f.deps.Progress = failing
	e := f.engine(t)
	ctx := context.Background()

	res, err := e.EvaluateHabitToggle(ctx, h, testToday)
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
	assert.Equal(t, 1, failing.commits)

	assert.Equal(t, 90, res.Progress.TotalPoints)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, notification.KindStorageError, res.Notifications[0].Kind)
	assert.Equal(t, "Speicherfehler", res.Notifications[0].Title)

	state, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, state.Progress.TotalPoints)
	assert.Equal(t, 1, state.Progress.CurrentLevel)

	// The habit write was compensated.
	stored, err := f.store.Get(ctx, testUser, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Streak)
	assert.Nil(t, stored.LastCompletedDate)

	assert.Equal(t, []shared.EventType{shared.EventSaveFailed}, f.pub.types())
}

func TestRollbackRestoresEarned(t *testing.T) {
	f := newFixture(t)
	f.deps.Progress = &failingProgress{Store: f.store, err: errors.New("connection reset")}
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.AwardAchievement(ctx, progression.FirstCoachChat)
	require.Error(t, err)

	state, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Earned)

	// A later success awards it normally.
	f.deps.Progress = f.store
	e2 := f.engine(t)
	res, err := e2.AwardAchievement(ctx, progression.FirstCoachChat)
	require.NoError(t, err)
	assert.True(t, res.Awarded(progression.FirstCoachChat))
}

func TestConflictReloadsAndRetries(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	// Load state (version 0), then another replica writes.
	_, err := e.Snapshot(ctx)
	require.NoError(t, err)
	f.seedPoints(t, 200)

	res, err := e.AwardPoints(ctx, 10, "test")
	require.NoError(t, err)
	assert.Equal(t, 210, res.Progress.TotalPoints)
	assert.Equal(t, int64(2), res.Progress.Version)

	stored, err := f.store.GetProgress(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 210, stored.TotalPoints)
}

func TestConflictExhausted(t *testing.T) {
	f := newFixture(t)
	failing := &failingProgress{Store: f.store, err: shared.ErrProgressConflict}
	f.deps.Progress = failing
	e := f.engine(t)

	res, err := e.AwardPoints(context.Background(), 10, "test")
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 3, failing.commits)
	assert.Zero(t, res.Progress.TotalPoints)
}

func TestNonAtomicCommitPath(t *testing.T) {
	f := newFixture(t)
	f.deps.Progress = plainProgress{store: f.store}
	e := f.engine(t)

	res, err := e.AwardAchievement(context.Background(), progression.FirstGoalCreated)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Progress.TotalPoints)

	earned, err := f.store.GetEarned(context.Background(), testUser)
	require.NoError(t, err)
	assert.Contains(t, earned, progression.FirstGoalCreated)
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.AwardPoints(ctx, 1, "tick"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	stored, err := f.store.GetProgress(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, n, stored.TotalPoints)
	assert.Equal(t, int64(n), stored.Version)
}

func TestEvaluateHabitToggle_StaleCopyIsReloaded(t *testing.T) {
	f := newFixture(t)
	stale := f.seedHabit(t, 0, nil)
	e := f.engine(t)
	ctx := context.Background()

	first, err := e.EvaluateHabitToggle(ctx, stale, testToday)
	require.NoError(t, err)
	assert.True(t, first.Completed)

	// The caller still holds the pre-toggle copy; the second call undoes.
	second, err := e.EvaluateHabitToggle(ctx, stale, testToday)
	require.NoError(t, err)
	assert.False(t, second.Completed)
	assert.Equal(t, 0, second.Habit.Streak)
	assert.Equal(t, 0, second.Progress.TotalPoints)
}

func TestConcurrentTogglesOfOneHabit(t *testing.T) {
	f := newFixture(t)
	stale := f.seedHabit(t, 6, dayBefore(testToday))
	e := f.engine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan Result, 2)
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.EvaluateHabitToggle(ctx, stale.Clone(), testToday)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	var completed int
	for res := range results {
		if res.Completed {
			completed++
		}
	}
	assert.Equal(t, 1, completed, "one call completes, the other undoes")

	stored, err := f.store.Get(ctx, testUser, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Streak)
	assert.Nil(t, stored.LastCompletedDate)

	// +5 +50 for the milestone, then -5 for the undo. The achievement stays.
	p, err := f.store.GetProgress(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 50, p.TotalPoints)
	assert.Equal(t, int64(2), p.Version)
}

func TestConcurrentGoalCompletionRewardsOnce(t *testing.T) {
	f := newFixture(t)
	stale := f.seedGoal(t, "g1", 80)
	e := f.engine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EvaluateGoalProgress(ctx, stale.Clone(), 100, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := f.store.GetProgress(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, goal.CompletionPoints+75, p.TotalPoints)
}

func TestConflictRetryReloadsHabit(t *testing.T) {
	f := newFixture(t)
	h := f.seedHabit(t, 0, nil)
	e := f.engine(t)
	ctx := context.Background()

	// Load state (version 0), then another replica writes progress.
	_, err := e.Snapshot(ctx)
	require.NoError(t, err)
	f.seedPoints(t, 200)

	res, err := e.EvaluateHabitToggle(ctx, h, testToday)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 205, res.Progress.TotalPoints)

	stored, err := f.store.Get(ctx, testUser, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
	require.NotNil(t, stored.LastCompletedDate)
}

func TestNonAtomicCommitSkipsEarnedOnFailedSave(t *testing.T) {
	f := newFixture(t)
	f.deps.Progress = rejectingSave{plainProgress: plainProgress{store: f.store}, err: shared.ErrProgressConflict}
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.AwardAchievement(ctx, progression.FirstGoalCreated)
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))

	earned, err := f.store.GetEarned(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, earned)
}

func TestCancelledContextWhileBusy(t *testing.T) {
	e := newFixture(t).engine(t)
	require.NoError(t, e.sem.Acquire(context.Background(), 1))
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.AwardPoints(ctx, 5, "test")
	assert.True(t, shared.IsTimeout(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	reg := NewRegistry(Dependencies{Progress: memory.NewStore()}, DefaultConfig())

	a, err := reg.For("alice")
	require.NoError(t, err)
	b, err := reg.For("alice")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = reg.For("bob")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	reg.Forget("alice")
	c, err := reg.For("alice")
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	_, err = reg.For("")
	assert.Error(t, err)
}
