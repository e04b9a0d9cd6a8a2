package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	late := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), StartOfDay(late, nil))
	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), StartOfDay(late, berlin),
		"23:30 UTC is already the next day at +02:00")
}

func TestToday(t *testing.T) {
	c := FixedClock{At: time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2024-01-01", FormatDate(Today(c, time.UTC)))
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2024-05-10", "2024-05-10", 0},
		{"2024-05-10", "2024-05-11", 1},
		{"2024-05-11", "2024-05-10", -1},
		{"2024-02-28", "2024-03-01", 2},
		{"2023-12-31", "2024-01-01", 1},
	}
	for _, tt := range tests {
		a, err := ParseDate(tt.a)
		require.NoError(t, err)
		b, err := ParseDate(tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, DaysBetween(a, b), tt.a+" -> "+tt.b)
	}
}

func TestSameDay(t *testing.T) {
	a, _ := ParseDate("2024-05-10")
	assert.True(t, SameDay(a, a))
	assert.False(t, SameDay(a, a.AddDate(0, 0, 1)))
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("10.05.2024")
	assert.Error(t, err)
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
