// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Dashboard view: points, level bar, earned achievements and quests.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressDTO is the dashboard view of a user's progression.
type ProgressDTO struct {
	UserID      string                     `json:"user_id"`
	TotalPoints int                        `json:"total_points"`
	Level       progression.LevelThreshold `json:"level"`
	Next        progression.NextLevelInfo  `json:"next_level"`

	// Earned is ordered by unlock time.
	Earned []progression.EarnedAchievement `json:"earned"`
	Quests []progression.QuestStatus       `json:"quests"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressReader reads progression state without going through the engine.
type ProgressReader struct {
	repo  progression.ProgressRepository
	table *progression.Table
	reg   *progression.Registry
	clock timeutil.Clock
}

// NewProgressReader creates a reader. Nil table and registry fall back to the defaults.
func NewProgressReader(repo progression.ProgressRepository, table *progression.Table, reg *progression.Registry) *ProgressReader {
	if table == nil {
		table = progression.DefaultTable()
	}
	if reg == nil {
		reg = progression.DefaultRegistry()
	}
	return &ProgressReader{repo: repo, table: table, reg: reg, clock: timeutil.SystemClock{}}
}

// GetProgress returns the dashboard view. Users without stored progress
// get the initial state.
func (r *ProgressReader) GetProgress(ctx context.Context, userID string) (*ProgressDTO, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}

	p, err := r.repo.GetProgress(ctx, userID)
	switch {
	case shared.IsNotFound(err):
		p = progression.NewUserProgress(userID, r.clock.Now())
	case err != nil:
		return nil, fmt.Errorf("get progress: %w", err)
	}

	earned, err := r.repo.GetEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	list := make([]progression.EarnedAchievement, 0, len(earned))
	for _, a := range earned {
		list = append(list, a)
	}
	slices.SortFunc(list, func(a, b progression.EarnedAchievement) int {
		if c := a.EarnedAt.Compare(b.EarnedAt); c != 0 {
			return c
		}
		return compareIDs(a.AchievementID, b.AchievementID)
	})

	return &ProgressDTO{
		UserID:      userID,
		TotalPoints: p.TotalPoints,
		Level:       r.table.LevelForPoints(p.TotalPoints),
		Next:        r.table.NextLevelInfo(p.TotalPoints),
		Earned:      list,
		Quests:      progression.QuestStatuses(earned),
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDTO is a catalogue entry with the user's unlock state.
type AchievementDTO struct {
	progression.AchievementDefinition
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// ListAchievements returns the full catalogue in display order.
func (r *ProgressReader) ListAchievements(ctx context.Context, userID string) ([]AchievementDTO, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	earned, err := r.repo.GetEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	defs := r.reg.All()
	out := make([]AchievementDTO, 0, len(defs))
	for _, d := range defs {
		dto := AchievementDTO{AchievementDefinition: d}
		if a, ok := earned[d.ID]; ok {
			at := a.EarnedAt
			dto.Earned = true
			dto.EarnedAt = &at
		}
		out = append(out, dto)
	}
	return out, nil
}

// Levels returns the level table.
func (r *ProgressReader) Levels() []progression.LevelThreshold {
	return r.table.Thresholds()
}

func compareIDs(a, b progression.AchievementID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
