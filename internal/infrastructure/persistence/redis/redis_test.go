package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/memory"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("SELFDEV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SELFDEV_TEST_REDIS_ADDR not set")
	}
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: addr}))
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "progress:u1", ProgressKey("u1"))
	assert.Equal(t, "earned:u1", EarnedKey("u1"))
	assert.Equal(t, "pubsub:habits:u1", HabitChannel("u1"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestNewProgressCache_KeepsAtomicCommitter(t *testing.T) {
	store := memory.NewStore()
	repo := NewProgressCache(store, &Cache{}, nil)
	_, ok := repo.(progression.AtomicCommitter)
	assert.True(t, ok)

	plain := NewProgressCache(struct{ progression.ProgressRepository }{store}, &Cache{}, nil)
	_, ok = plain.(progression.AtomicCommitter)
	assert.False(t, ok)
}

func TestCache_SetGetDelete(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	require.NoError(t, c.Set(ctx, key, map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, c.Delete(ctx, key))
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "", &got), ErrCacheKeyEmpty)
}

func TestProgressCache_InvalidatesOnWrite(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewProgressCache(store, c, nil)
	user := "u-" + uuid.NewString()
	now := time.Now().UTC()

	p := progression.NewUserProgress(user, now)
	p.TotalPoints, p.Version = 10, 1
	require.NoError(t, repo.SaveProgress(ctx, p, 0))

	got, err := repo.GetProgress(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalPoints)

	// Written through the decorator: the next read must see it.
	p.TotalPoints, p.Version = 20, 2
	require.NoError(t, repo.(progression.AtomicCommitter).CommitProgress(ctx, p, 1, nil))

	got, err = repo.GetProgress(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 20, got.TotalPoints)

	_, err = repo.GetProgress(ctx, "missing-"+uuid.NewString())
	assert.True(t, shared.IsNotFound(err))
}

func TestProgressCache_EarnedRoundTrip(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()
	repo := NewProgressCache(memory.NewStore(), c, nil)
	user := "u-" + uuid.NewString()

	earned, err := repo.GetEarned(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, earned)

	def, err := progression.DefaultRegistry().Get(progression.FirstCoachChat)
	require.NoError(t, err)
	require.NoError(t, repo.MergeEarned(ctx, user, def.Earn(time.Now().UTC())))

	earned, err = repo.GetEarned(ctx, user)
	require.NoError(t, err)
	assert.Contains(t, earned, progression.FirstCoachChat)
}

func TestHabitWatcher_NotifyReloads(t *testing.T) {
	c := openCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	w := NewHabitWatcher(store, c, nil)
	user := "u-" + uuid.NewString()

	updates := make(chan int, 4)
	stop, err := w.Watch(ctx, user, func(list []*habit.Habit) { updates <- len(list) }, nil)
	require.NoError(t, err)
	defer stop()

	assert.Equal(t, 0, <-updates)

	h, err := habit.New("h1", user, "Lesen", time.Now())
	require.NoError(t, err)
	_, err = store.Create(ctx, h)
	require.NoError(t, err)
	require.NoError(t, w.HandleEvent(shared.NewHabitChangedEvent(user, "h1", "create")))

	select {
	case n := <-updates:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after notify")
	}
}
