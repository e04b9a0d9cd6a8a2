package goal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

func TestSetProgress(t *testing.T) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	g, err := New("g1", "u1", Details{Name: "Marathon laufen"}, now)
	require.NoError(t, err)

	tests := []struct {
		in        int
		progress  int
		status    Status
		completed bool
	}{
		{-10, 0, StatusActive, false},
		{40, 40, StatusActive, false},
		{150, 100, StatusCompleted, true},
		{100, 100, StatusCompleted, false},
		{80, 80, StatusActive, false},
		{100, 100, StatusCompleted, true},
	}

	for _, tt := range tests {
		got := g.SetProgress(tt.in, now)
		assert.Equal(t, tt.completed, got, "in=%d", tt.in)
		assert.Equal(t, tt.progress, g.Progress, "in=%d", tt.in)
		assert.Equal(t, tt.status, g.Status, "in=%d", tt.in)
	}
}

func TestNew_RequiresName(t *testing.T) {
	_, err := New("g1", "u1", Details{Name: "  "}, time.Now())
	assert.True(t, shared.IsValidation(err))
}

func TestClone_DeepCopiesDeadline(t *testing.T) {
	deadline := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	g, err := New("g1", "u1", Details{Name: "Sparen", TimeBound: &deadline}, time.Now())
	require.NoError(t, err)

	cp := g.Clone()
	*cp.TimeBound = cp.TimeBound.AddDate(1, 0, 0)
	assert.Equal(t, deadline, *g.TimeBound)
}
