package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

func TestRegistry_Catalogue(t *testing.T) {
	r := DefaultRegistry()

	rewards := map[AchievementID]int{
		FirstPlanCreated:   20,
		FirstPlanCompleted: 30,
		FirstHabitCreated:  15,
		HabitStreak7Days:   50,
		HabitStreak30Days:  150,
		FirstGoalCreated:   20,
		FirstGoalCompleted: 75,
		FiveGoalsCompleted: 100,
		FirstCoachChat:     10,
		Level5Reached:      200,
		MultiCategoryPlan:  40,
	}

	assert.Equal(t, len(rewards), r.Len())
	for id, reward := range rewards {
		def, err := r.Get(id)
		require.NoError(t, err, id)
		assert.Equal(t, reward, def.PointReward, id)
		assert.NotEmpty(t, def.Name, id)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := DefaultRegistry().Get("NOPE")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestRegistry_AllIsStableCopy(t *testing.T) {
	r := DefaultRegistry()
	first := r.All()
	first[0].Name = "mutated"

	second := r.All()
	assert.Equal(t, FirstPlanCreated, second[0].ID)
	assert.Equal(t, "Pläne-Pionier", second[0].Name)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]AchievementDefinition{
		{ID: "A", PointReward: 1},
		{ID: "A", PointReward: 2},
	})
	assert.True(t, shared.IsValidation(err))

	_, err = NewRegistry([]AchievementDefinition{{ID: "B", PointReward: -1}})
	assert.True(t, shared.IsValidation(err))
}

func TestDefinition_Earn(t *testing.T) {
	def, err := DefaultRegistry().Get(FirstGoalCreated)
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	earned := def.Earn(at)
	assert.Equal(t, FirstGoalCreated, earned.AchievementID)
	assert.Equal(t, 20, earned.PointReward)
	assert.Equal(t, at, earned.EarnedAt)
}

func TestQuestStatuses(t *testing.T) {
	statuses := QuestStatuses(map[AchievementID]EarnedAchievement{
		FirstGoalCreated: {AchievementID: FirstGoalCreated},
	})
	require.Len(t, statuses, 2)

	byID := map[string]bool{}
	for _, s := range statuses {
		byID[s.ID] = s.Completed
	}
	assert.False(t, byID["FOREST_OF_HABIT"])
	assert.True(t, byID["MOUNTAIN_OF_GOALS"])
}
