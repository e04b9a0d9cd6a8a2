// Package goal contains SMART goals and their progress rules.
package goal

import (
	"strings"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// Status of a goal.
type Status string

const (
	// StatusActive - the goal is being worked on.
	StatusActive Status = "active"
	// StatusCompleted - progress reached 100%.
	StatusCompleted Status = "completed"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCompleted
}

// CompletionPoints is awarded when a goal transitions to completed.
const CompletionPoints = 50

// Goal is a SMART goal: Specific, Measurable, Achievable, Relevant, Time-bound.
type Goal struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	Specific   string     `json:"specific,omitempty"`
	Measurable string     `json:"measurable,omitempty"`
	Achievable string     `json:"achievable,omitempty"`
	Relevant   string     `json:"relevant,omitempty"`
	TimeBound  *time.Time `json:"time_bound,omitempty"`

	// Progress is a percentage in 0..100.
	Progress int    `json:"progress"`
	Status   Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Details holds the editable SMART fields.
type Details struct {
	Name       string
	Specific   string
	Measurable string
	Achievable string
	Relevant   string
	TimeBound  *time.Time
}

// New builds an active goal at 0%.
func New(id, userID string, d Details, now time.Time) (*Goal, error) {
	g := &Goal{
		ID:        id,
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: now,
	}
	if err := g.Edit(d, now); err != nil {
		return nil, err
	}
	return g, nil
}

// Edit replaces the SMART fields.
func (g *Goal) Edit(d Details, now time.Time) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return shared.ErrEmptyGoalName
	}
	g.Name = name
	g.Specific = strings.TrimSpace(d.Specific)
	g.Measurable = strings.TrimSpace(d.Measurable)
	g.Achievable = strings.TrimSpace(d.Achievable)
	g.Relevant = strings.TrimSpace(d.Relevant)
	g.TimeBound = d.TimeBound
	g.UpdatedAt = now
	return nil
}

// IsCompleted reports whether the goal is completed.
func (g *Goal) IsCompleted() bool {
	return g.Status == StatusCompleted
}

// SetProgress clamps progress to 0..100 and updates the status.
// It reports whether this call completed a goal that was not completed before.
func (g *Goal) SetProgress(progress int, now time.Time) (justCompleted bool) {
	progress = min(100, max(0, progress))
	wasCompleted := g.IsCompleted()

	g.Progress = progress
	if progress == 100 {
		g.Status = StatusCompleted
	} else {
		g.Status = StatusActive
	}
	g.UpdatedAt = now

	return g.IsCompleted() && !wasCompleted
}

// Clone returns a deep copy.
func (g *Goal) Clone() *Goal {
	cp := *g
	if g.TimeBound != nil {
		tb := *g.TimeBound
		cp.TimeBound = &tb
	}
	return &cp
}
