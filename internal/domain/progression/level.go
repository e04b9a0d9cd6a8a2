// Package progression contains the gamification rules of SelfDev:
// the level table, the point-to-level calculator and the achievement catalogue.
// Everything here is pure and safe for concurrent use.
package progression

import (
	"fmt"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TABLE
// ══════════════════════════════════════════════════════════════════════════════

// LevelThreshold is one row of the level table.
type LevelThreshold struct {
	// Level is the 1-based level number.
	Level int `json:"level" yaml:"level"`

	// Points is the minimum point total for this level.
	Points int `json:"points" yaml:"points"`

	// Name is the display title of the level.
	Name string `json:"name" yaml:"name"`
}

// Table is an ordered, validated list of thresholds.
type Table struct {
	thresholds []LevelThreshold
}

// DefaultThresholds is the level table used by the app.
var DefaultThresholds = []LevelThreshold{
	{Level: 1, Points: 0, Name: "Neuling"},
	{Level: 2, Points: 100, Name: "Aufsteiger"},
	{Level: 3, Points: 250, Name: "Fortgeschrittener"},
	{Level: 4, Points: 500, Name: "Experte"},
	{Level: 5, Points: 1000, Name: "Meister"},
	{Level: 6, Points: 2000, Name: "Großmeister"},
	{Level: 7, Points: 5000, Name: "Legende"},
}

// DefaultTable returns the table built from DefaultThresholds.
func DefaultTable() *Table {
	t, err := NewTable(DefaultThresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates thresholds and builds a Table.
// The first entry must be level 1 at 0 points; levels and points must strictly ascend.
func NewTable(thresholds []LevelThreshold) (*Table, error) {
	if len(thresholds) == 0 {
		return nil, shared.ErrEmptyLevelTable
	}
	if thresholds[0].Level != 1 || thresholds[0].Points != 0 {
		return nil, shared.Validation("progression", "NewTable", "first level must be level 1 with 0 points")
	}
	for i := 1; i < len(thresholds); i++ {
		prev, cur := thresholds[i-1], thresholds[i]
		if cur.Level != prev.Level+1 {
			return nil, shared.Validation("progression", "NewTable",
				fmt.Sprintf("level %d follows level %d", cur.Level, prev.Level))
		}
		if cur.Points <= prev.Points {
			return nil, shared.Validation("progression", "NewTable",
				fmt.Sprintf("level %d needs more points than level %d", cur.Level, prev.Level))
		}
	}

	cp := make([]LevelThreshold, len(thresholds))
	copy(cp, thresholds)
	return &Table{thresholds: cp}, nil
}

// Thresholds returns a copy of the table rows.
func (t *Table) Thresholds() []LevelThreshold {
	cp := make([]LevelThreshold, len(t.thresholds))
	copy(cp, t.thresholds)
	return cp
}

// Max returns the highest level.
func (t *Table) Max() LevelThreshold {
	return t.thresholds[len(t.thresholds)-1]
}

// ByNumber returns the threshold for a level number.
func (t *Table) ByNumber(level int) (LevelThreshold, bool) {
	if level < 1 || level > len(t.thresholds) {
		return LevelThreshold{}, false
	}
	return t.thresholds[level-1], true
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// LevelForPoints returns the highest threshold whose Points <= points.
// Negative input is treated as 0.
func (t *Table) LevelForPoints(points int) LevelThreshold {
	if points < 0 {
		points = 0
	}
	current := t.thresholds[0]
	for i := len(t.thresholds) - 1; i >= 0; i-- {
		if points >= t.thresholds[i].Points {
			current = t.thresholds[i]
			break
		}
	}
	return current
}

// NextLevelInfo describes the distance to the next level.
type NextLevelInfo struct {
	Current LevelThreshold  `json:"current"`
	Next    *LevelThreshold `json:"next,omitempty"`

	// PointsRemaining is how many points are missing for Next (0 at max level).
	PointsRemaining int `json:"points_remaining"`

	// ProgressPercent is 0..100, floored.
	ProgressPercent int `json:"progress_percent"`

	// PointsInLevel is how far the user is past the current threshold.
	PointsInLevel int `json:"points_in_level"`

	// LevelSpan is the width of the current level.
	// At max level it is the width of the step that led to it.
	LevelSpan int `json:"level_span"`
}

// IsMax reports whether the user is at the highest level.
func (n NextLevelInfo) IsMax() bool {
	return n.Next == nil
}

// NextLevelInfo computes progress towards the next level.
func (t *Table) NextLevelInfo(points int) NextLevelInfo {
	if points < 0 {
		points = 0
	}
	cur := t.LevelForPoints(points)
	info := NextLevelInfo{
		Current:       cur,
		PointsInLevel: points - cur.Points,
	}

	if cur.Level >= t.Max().Level {
		info.ProgressPercent = 100
		info.LevelSpan = cur.Points
		if prev, ok := t.ByNumber(cur.Level - 1); ok && cur.Points-prev.Points > 0 {
			info.LevelSpan = cur.Points - prev.Points
		}
		if info.LevelSpan <= 0 {
			info.LevelSpan = 1
		}
		return info
	}

	next := t.thresholds[cur.Level]
	info.Next = &next
	span := next.Points - cur.Points
	info.LevelSpan = span
	info.PointsRemaining = span - info.PointsInLevel

	if span == 0 {
		info.ProgressPercent = 100
		return info
	}
	info.ProgressPercent = clamp(info.PointsInLevel*100/span, 0, 100)
	return info
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// defaultTable backs the package-level helpers.
var defaultTable = DefaultTable()

// LevelForPoints uses the default table.
func LevelForPoints(points int) LevelThreshold {
	return defaultTable.LevelForPoints(points)
}

// GetNextLevelInfo uses the default table.
func GetNextLevelInfo(points int) NextLevelInfo {
	return defaultTable.NextLevelInfo(points)
}
