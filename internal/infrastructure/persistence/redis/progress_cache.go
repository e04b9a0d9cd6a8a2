package redis

import (
	"context"
	"errors"

	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// ProgressCache is a cache-aside decorator for a progression.ProgressRepository.
// Reads go to Redis first; every write goes to the inner store and then
// drops the cached keys. Cache failures never fail a call.
type ProgressCache struct {
	inner progression.ProgressRepository
	cache *Cache
	log   *logger.Logger
}

// atomicProgressCache additionally forwards CommitProgress.
type atomicProgressCache struct {
	*ProgressCache
	committer progression.AtomicCommitter
}

// NewProgressCache decorates inner. The result implements
// progression.AtomicCommitter exactly when inner does.
func NewProgressCache(inner progression.ProgressRepository, cache *Cache, log *logger.Logger) progression.ProgressRepository {
	if log == nil {
		log = logger.Nop()
	}
	pc := &ProgressCache{inner: inner, cache: cache, log: log.With(logger.Component("progress_cache"))}
	if c, ok := inner.(progression.AtomicCommitter); ok {
		return &atomicProgressCache{ProgressCache: pc, committer: c}
	}
	return pc
}

func (p *ProgressCache) GetProgress(ctx context.Context, userID string) (progression.UserProgress, error) {
	var cached progression.UserProgress
	err := p.cache.Get(ctx, ProgressKey(userID), &cached)
	if err == nil {
		return cached, nil
	}
	p.logCacheErr("get_progress", userID, err)

	up, err := p.inner.GetProgress(ctx, userID)
	if err != nil {
		return up, err
	}
	if err := p.cache.Set(ctx, ProgressKey(userID), up, TTLProgress); err != nil {
		p.logCacheErr("set_progress", userID, err)
	}
	return up, nil
}

func (p *ProgressCache) SaveProgress(ctx context.Context, up progression.UserProgress, expectedVersion int64) error {
	err := p.inner.SaveProgress(ctx, up, expectedVersion)
	p.invalidate(ctx, up.UserID, ProgressKey(up.UserID))
	return err
}

func (p *ProgressCache) GetEarned(ctx context.Context, userID string) (map[progression.AchievementID]progression.EarnedAchievement, error) {
	var cached map[progression.AchievementID]progression.EarnedAchievement
	err := p.cache.Get(ctx, EarnedKey(userID), &cached)
	if err == nil {
		if cached == nil {
			cached = make(map[progression.AchievementID]progression.EarnedAchievement)
		}
		return cached, nil
	}
	p.logCacheErr("get_earned", userID, err)

	earned, err := p.inner.GetEarned(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, EarnedKey(userID), earned, TTLProgress); err != nil {
		p.logCacheErr("set_earned", userID, err)
	}
	return earned, nil
}

func (p *ProgressCache) MergeEarned(ctx context.Context, userID string, a progression.EarnedAchievement) error {
	err := p.inner.MergeEarned(ctx, userID, a)
	p.invalidate(ctx, userID, EarnedKey(userID))
	return err
}

// CommitProgress forwards to the inner atomic store.
func (p *atomicProgressCache) CommitProgress(ctx context.Context, up progression.UserProgress, expectedVersion int64, earned []progression.EarnedAchievement) error {
	err := p.committer.CommitProgress(ctx, up, expectedVersion, earned)
	p.invalidate(ctx, up.UserID, ProgressKey(up.UserID), EarnedKey(up.UserID))
	return err
}

// invalidate runs after failed writes too: a conflict means the cached row is stale.
func (p *ProgressCache) invalidate(ctx context.Context, userID string, keys ...string) {
	if err := p.cache.Delete(ctx, keys...); err != nil {
		p.logCacheErr("invalidate", userID, err)
	}
}

func (p *ProgressCache) logCacheErr(op, userID string, err error) {
	if errors.Is(err, ErrCacheMiss) {
		return
	}
	p.log.Warn("cache unavailable", logger.Operation(op), logger.UserID(userID), logger.Err(err))
}
