package habit

import (
	"time"
)

// PointsPerCompletion is awarded on completion and taken back on undo.
const PointsPerCompletion = 5

// milestones are the streak lengths the tracker reports as crossed.
var milestones = map[int]bool{7: true, 30: true}

// ToggleResult is the outcome of ToggleCompletion.
type ToggleResult struct {
	Habit *Habit

	// PointsDelta is +5 on completion and -5 on undo.
	PointsDelta int

	// CrossedStreak is set to the new streak iff it just reached a milestone.
	CrossedStreak *int

	// Completed reports the new state (true when marked done for today).
	Completed bool
}

// ToggleCompletion flips today's completion of a habit. It never mutates h.
//
// Completing on a day after a gap still extends the streak; missed days are
// not detected here.
func ToggleCompletion(h *Habit, today time.Time) ToggleResult {
	next := h.Clone()

	if h.CompletedToday(today) {
		next.Streak = max(0, h.Streak-1)
		next.LastCompletedDate = nil
		return ToggleResult{Habit: next, PointsDelta: -PointsPerCompletion}
	}

	d := today
	next.Streak = h.Streak + 1
	next.LastCompletedDate = &d

	res := ToggleResult{Habit: next, PointsDelta: PointsPerCompletion, Completed: true}
	if milestones[next.Streak] {
		s := next.Streak
		res.CrossedStreak = &s
	}
	return res
}
