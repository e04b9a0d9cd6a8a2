// Package memory provides in-process implementations of every repository.
// It backs unit tests and the "memory" storage driver for local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// Store holds all data in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	progress map[string]progression.UserProgress
	earned   map[string]map[progression.AchievementID]progression.EarnedAchievement
	habits   map[string][]*habit.Habit
	goals    map[string][]*goal.Goal
	plans    map[string][]*training.Plan

	exercises []training.Exercise

	watchMu  sync.Mutex
	watchers map[string]map[int]func([]*habit.Habit)
	nextID   int
}

// NewStore creates an empty store with the default exercise catalogue.
func NewStore() *Store {
	return &Store{
		progress:  make(map[string]progression.UserProgress),
		earned:    make(map[string]map[progression.AchievementID]progression.EarnedAchievement),
		habits:    make(map[string][]*habit.Habit),
		goals:     make(map[string][]*goal.Goal),
		plans:     make(map[string][]*training.Plan),
		exercises: slices.Clone(training.DefaultExercises),
		watchers:  make(map[string]map[int]func([]*habit.Habit)),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// GetProgress implements progression.ProgressRepository.
func (s *Store) GetProgress(_ context.Context, userID string) (progression.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[userID]
	if !ok {
		return progression.UserProgress{}, shared.NotFound("progression", "GetProgress", "progress", userID)
	}
	return p, nil
}

// SaveProgress implements progression.ProgressRepository.
func (s *Store) SaveProgress(_ context.Context, p progression.UserProgress, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProgressLocked(p, expectedVersion)
}

func (s *Store) saveProgressLocked(p progression.UserProgress, expectedVersion int64) error {
	cur, ok := s.progress[p.UserID]
	switch {
	case !ok && expectedVersion != 0:
		return shared.ErrProgressConflict
	case ok && cur.Version != expectedVersion:
		return shared.ErrProgressConflict
	}
	s.progress[p.UserID] = p
	return nil
}

// GetEarned implements progression.ProgressRepository.
func (s *Store) GetEarned(_ context.Context, userID string) (map[progression.AchievementID]progression.EarnedAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := maps.Clone(s.earned[userID])
	if out == nil {
		out = make(map[progression.AchievementID]progression.EarnedAchievement)
	}
	return out, nil
}

// MergeEarned implements progression.ProgressRepository.
func (s *Store) MergeEarned(_ context.Context, userID string, a progression.EarnedAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeEarnedLocked(userID, a)
	return nil
}

func (s *Store) mergeEarnedLocked(userID string, a progression.EarnedAchievement) {
	m, ok := s.earned[userID]
	if !ok {
		m = make(map[progression.AchievementID]progression.EarnedAchievement)
		s.earned[userID] = m
	}
	if _, exists := m[a.AchievementID]; !exists {
		m[a.AchievementID] = a
	}
}

// CommitProgress implements progression.AtomicCommitter.
func (s *Store) CommitProgress(_ context.Context, p progression.UserProgress, expectedVersion int64, earned []progression.EarnedAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveProgressLocked(p, expectedVersion); err != nil {
		return err
	}
	for _, a := range earned {
		s.mergeEarnedLocked(p.UserID, a)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// List implements habit.Repository.
func (s *Store) List(_ context.Context, userID string) ([]*habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHabits(s.habits[userID]), nil
}

// Get implements habit.Repository.
func (s *Store) Get(_ context.Context, userID, habitID string) (*habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.habits[userID] {
		if h.ID == habitID {
			return h.Clone(), nil
		}
	}
	return nil, shared.ErrHabitNotFound
}

// Create implements habit.Repository.
func (s *Store) Create(_ context.Context, h *habit.Habit) (bool, error) {
	s.mu.Lock()
	for _, existing := range s.habits[h.UserID] {
		if existing.ID == h.ID {
			s.mu.Unlock()
			return false, shared.NewDomainError("habit", "Create", shared.ErrAlreadyExists, "habit already exists")
		}
	}
	s.habits[h.UserID] = append(s.habits[h.UserID], h.Clone())
	first := len(s.habits[h.UserID]) == 1
	snapshot := cloneHabits(s.habits[h.UserID])
	s.mu.Unlock()

	s.notify(h.UserID, snapshot)
	return first, nil
}

// Save implements habit.Repository.
func (s *Store) Save(_ context.Context, h *habit.Habit) error {
	s.mu.Lock()
	list := s.habits[h.UserID]
	idx := slices.IndexFunc(list, func(x *habit.Habit) bool { return x.ID == h.ID })
	if idx < 0 {
		s.mu.Unlock()
		return shared.ErrHabitNotFound
	}
	list[idx] = h.Clone()
	snapshot := cloneHabits(list)
	s.mu.Unlock()

	s.notify(h.UserID, snapshot)
	return nil
}

// Delete implements habit.Repository.
func (s *Store) Delete(_ context.Context, userID, habitID string) error {
	s.mu.Lock()
	list := s.habits[userID]
	idx := slices.IndexFunc(list, func(x *habit.Habit) bool { return x.ID == habitID })
	if idx < 0 {
		s.mu.Unlock()
		return shared.ErrHabitNotFound
	}
	s.habits[userID] = slices.Delete(list, idx, idx+1)
	snapshot := cloneHabits(s.habits[userID])
	s.mu.Unlock()

	s.notify(userID, snapshot)
	return nil
}

// Watch implements habit.Watcher. The current collection is delivered immediately.
func (s *Store) Watch(ctx context.Context, userID string, onChange func([]*habit.Habit), _ func(error)) (func(), error) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[int]func([]*habit.Habit))
	}
	s.watchers[userID][id] = onChange
	s.watchMu.Unlock()

	initial, _ := s.List(ctx, userID)
	onChange(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers[userID], id)
			s.watchMu.Unlock()
		})
	}, nil
}

func (s *Store) notify(userID string, habits []*habit.Habit) {
	s.watchMu.Lock()
	subs := make([]func([]*habit.Habit), 0, len(s.watchers[userID]))
	for _, fn := range s.watchers[userID] {
		subs = append(subs, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range subs {
		fn(cloneHabits(habits))
	}
}

func cloneHabits(in []*habit.Habit) []*habit.Habit {
	out := make([]*habit.Habit, 0, len(in))
	for _, h := range in {
		out = append(out, h.Clone())
	}
	return out
}
