package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/memory"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func TestGetProgress_FreshUser(t *testing.T) {
	r := NewProgressReader(memory.NewStore(), nil, nil)

	dto, err := r.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, dto.TotalPoints)
	assert.Equal(t, 1, dto.Level.Level)
	require.NotNil(t, dto.Next.Next)
	assert.Equal(t, 100, dto.Next.PointsRemaining)
	assert.Empty(t, dto.Earned)
	require.Len(t, dto.Quests, 2)
	assert.False(t, dto.Quests[0].Completed)

	_, err = r.GetProgress(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
}

func TestGetProgress_StoredState(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	p := progression.NewUserProgress("u1", now)
	p.TotalPoints, p.CurrentLevel, p.Version = 375, 3, 4
	require.NoError(t, store.SaveProgress(ctx, p, 0))

	reg := progression.DefaultRegistry()
	goalDef, err := reg.Get(progression.FirstGoalCreated)
	require.NoError(t, err)
	habitDef, err := reg.Get(progression.FirstHabitCreated)
	require.NoError(t, err)
	require.NoError(t, store.MergeEarned(ctx, "u1", goalDef.Earn(now.Add(time.Hour))))
	require.NoError(t, store.MergeEarned(ctx, "u1", habitDef.Earn(now)))

	dto, err := NewProgressReader(store, nil, reg).GetProgress(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 375, dto.TotalPoints)
	assert.Equal(t, "Fortgeschrittener", dto.Level.Name)
	assert.Equal(t, 50, dto.Next.ProgressPercent)
	require.Len(t, dto.Earned, 2)
	assert.Equal(t, progression.FirstHabitCreated, dto.Earned[0].AchievementID)

	for _, q := range dto.Quests {
		assert.Equal(t, q.ID == "MOUNTAIN_OF_GOALS", q.Completed, q.ID)
	}
}

func TestListAchievements(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	reg := progression.DefaultRegistry()

	def, err := reg.Get(progression.FirstCoachChat)
	require.NoError(t, err)
	require.NoError(t, store.MergeEarned(ctx, "u1", def.Earn(now)))

	list, err := NewProgressReader(store, nil, reg).ListAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, reg.Len())

	for _, a := range list {
		if a.ID == progression.FirstCoachChat {
			assert.True(t, a.Earned)
			require.NotNil(t, a.EarnedAt)
			assert.True(t, a.EarnedAt.Equal(now))
		} else {
			assert.False(t, a.Earned, a.ID)
		}
	}
}

func TestListHabits_CompletedToday(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	done, err := habit.New("h1", "u1", "Lesen", now)
	require.NoError(t, err)
	today := timeutil.StartOfDay(now, time.UTC)
	done.Streak, done.LastCompletedDate = 1, &today
	_, err = store.Create(ctx, done)
	require.NoError(t, err)

	open, err := habit.New("h2", "u1", "Laufen", now)
	require.NoError(t, err)
	_, err = store.Create(ctx, open)
	require.NoError(t, err)

	r := NewCollectionReader(store, store.Goals(), store.Plans(), store, timeutil.FixedClock{At: now}, time.UTC)
	list, err := r.ListHabits(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CompletedToday)
	assert.False(t, list[1].CompletedToday)
}

func TestListPlansAndExercises(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	p, err := training.NewPlan("p1", "u1", "Mix", []string{"ex2", "ex5", "ex7"},
		training.IndexExercises(training.DefaultExercises), now)
	require.NoError(t, err)
	_, err = store.Plans().Create(ctx, p)
	require.NoError(t, err)

	r := NewCollectionReader(store, store.Goals(), store.Plans(), store, nil, nil)

	plans, err := r.ListPlans(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].AllCategories)
	assert.Len(t, plans[0].Exercises, 3)

	groups, err := r.ListExercises(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	total := 0
	for _, g := range groups {
		total += len(g.Exercises)
	}
	assert.Equal(t, len(training.DefaultExercises), total)
}
