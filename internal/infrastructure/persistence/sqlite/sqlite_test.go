package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

var now = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "selfdev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}

func TestProgress_CompareAndSwap(t *testing.T) {
	repo := NewProgressRepository(openDB(t))
	ctx := context.Background()

	_, err := repo.GetProgress(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	p := progression.NewUserProgress("u1", now)
	p.TotalPoints, p.CurrentLevel, p.Version = 120, 2, 1
	require.NoError(t, repo.SaveProgress(ctx, p, 0))
	assert.True(t, shared.IsConflict(repo.SaveProgress(ctx, p, 0)))

	p.TotalPoints, p.Version = 130, 2
	require.NoError(t, repo.SaveProgress(ctx, p, 1))
	assert.True(t, shared.IsConflict(repo.SaveProgress(ctx, p, 1)))

	got, err := repo.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 130, got.TotalPoints)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestProgress_CommitIsAllOrNothing(t *testing.T) {
	repo := NewProgressRepository(openDB(t))
	ctx := context.Background()
	reg := progression.DefaultRegistry()

	habitDef, err := reg.Get(progression.FirstHabitCreated)
	require.NoError(t, err)
	goalDef, err := reg.Get(progression.FirstGoalCreated)
	require.NoError(t, err)

	p := progression.NewUserProgress("u1", now)
	p.TotalPoints, p.Version = 25, 1
	require.NoError(t, repo.CommitProgress(ctx, p, 0, []progression.EarnedAchievement{habitDef.Earn(now)}))

	p.Version = 2
	err = repo.CommitProgress(ctx, p, 7, []progression.EarnedAchievement{goalDef.Earn(now)})
	assert.True(t, shared.IsConflict(err))

	earned, err := repo.GetEarned(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, earned, 1)
	assert.Equal(t, habitDef.PointReward, earned[progression.FirstHabitCreated].PointReward)
}

func TestProgress_MergeEarnedNeverOverwrites(t *testing.T) {
	repo := NewProgressRepository(openDB(t))
	ctx := context.Background()

	def, err := progression.DefaultRegistry().Get(progression.FirstCoachChat)
	require.NoError(t, err)

	require.NoError(t, repo.MergeEarned(ctx, "u1", def.Earn(now)))
	require.NoError(t, repo.MergeEarned(ctx, "u1", def.Earn(now.Add(time.Hour))))

	earned, err := repo.GetEarned(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, earned[progression.FirstCoachChat].EarnedAt.Equal(now))
}

func TestProgress_ConcurrentCreateHasOneWinner(t *testing.T) {
	repo := NewProgressRepository(openDB(t))
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := progression.NewUserProgress("u1", now)
			p.Version = 1
			err := repo.SaveProgress(ctx, p, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if shared.IsConflict(err) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
}

func TestHabits_Lifecycle(t *testing.T) {
	repo := NewHabitRepository(openDB(t))
	ctx := context.Background()

	h, err := habit.New("h1", "u1", "Lesen", now)
	require.NoError(t, err)
	first, err := repo.Create(ctx, h)
	require.NoError(t, err)
	assert.True(t, first)

	_, err = repo.Create(ctx, h)
	assert.True(t, shared.IsAlreadyExists(err))

	h2, err := habit.New("h2", "u1", "Laufen", now.Add(time.Minute))
	require.NoError(t, err)
	first, err = repo.Create(ctx, h2)
	require.NoError(t, err)
	assert.False(t, first)

	today := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	habit.ToggleCompletion(h, today)
	require.NoError(t, repo.Save(ctx, h))

	got, err := repo.Get(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Streak)
	require.NotNil(t, got.LastCompletedDate)
	assert.True(t, got.LastCompletedDate.Equal(today))

	list, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].ID)

	require.NoError(t, repo.Delete(ctx, "u1", "h1"))
	assert.True(t, shared.IsNotFound(repo.Delete(ctx, "u1", "h1")))
	_, err = repo.Get(ctx, "u1", "h1")
	assert.True(t, shared.IsNotFound(err))
}

func TestGoals_CountCompleted(t *testing.T) {
	repo := NewGoalRepository(openDB(t))
	ctx := context.Background()
	deadline := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"g1", "g2", "g3"} {
		g, err := goal.New(id, "u1", goal.Details{Name: "Ziel", TimeBound: &deadline}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		first, err := repo.Create(ctx, g)
		require.NoError(t, err)
		assert.Equal(t, i == 0, first)
		if i < 2 {
			g.Status, g.Progress = goal.StatusCompleted, 100
			require.NoError(t, repo.Save(ctx, g))
		}
	}

	n, err := repo.CountCompleted(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.Get(ctx, "u1", "g3")
	require.NoError(t, err)
	require.NotNil(t, got.TimeBound)
	assert.True(t, got.TimeBound.Equal(deadline))
	assert.Equal(t, goal.StatusActive, got.Status)
}

func TestTraining_SeedAndPlans(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	exercises, err := NewExerciseCatalog(db).ListExercises(ctx)
	require.NoError(t, err)
	assert.Len(t, exercises, len(training.DefaultExercises))

	plans := NewPlanRepository(db)
	p, err := training.NewPlan("p1", "u1", "Morgens", []string{"ex1", "ex4", "ex1"}, training.IndexExercises(exercises), now)
	require.NoError(t, err)
	_, err = plans.Create(ctx, p)
	require.NoError(t, err)

	p.MarkCompleted(now.Add(time.Hour))
	require.NoError(t, plans.Save(ctx, p))

	got, err := plans.Get(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ex1", "ex4"}, got.ExerciseIDs)
	assert.Equal(t, 1, got.TimesCompleted)
	require.NotNil(t, got.LastCompletedAt)

	_, err = plans.Get(ctx, "u1", "missing")
	assert.True(t, shared.IsNotFound(err))
}
