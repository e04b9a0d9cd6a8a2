package progression

// Quest is a story wrapper around an achievement: it is complete as soon as
// its trigger achievement has been earned.
type Quest struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	TriggerAchievement AchievementID `json:"trigger_achievement"`
	Reward             string        `json:"reward"`
}

// QuestStatus pairs a quest with its completion flag.
type QuestStatus struct {
	Quest
	Completed bool `json:"completed"`
}

var quests = []Quest{
	{
		ID:    "FOREST_OF_HABIT",
		Title: "Die Wälder der Gewohnheit",
		Description: "Ein neuer Pfad will getreten werden. Nur durch Beständigkeit wird aus einem Trampelpfad ein fester Weg. " +
			"Etabliere eine neue Gewohnheit und verfolge sie sieben Tage lang, um das Artefakt zu finden.",
		TriggerAchievement: HabitStreak7Days,
		Reward:             "Amulett des Anfangs",
	},
	{
		ID:    "MOUNTAIN_OF_GOALS",
		Title: "Der Berg der Ziele",
		Description: "Ein unbezwingbar scheinender Gipfel liegt vor dir. Formuliere einen klaren Plan, um ihn zu erklimmen. " +
			"Erstelle dein erstes SMART-Ziel, um den ersten Basislager-Schlüssel zu erhalten.",
		TriggerAchievement: FirstGoalCreated,
		Reward:             "Schlüssel des Basislagers",
	},
}

// Quests returns all quests in display order.
func Quests() []Quest {
	cp := make([]Quest, len(quests))
	copy(cp, quests)
	return cp
}

// QuestStatuses evaluates every quest against the earned set.
func QuestStatuses(earned map[AchievementID]EarnedAchievement) []QuestStatus {
	out := make([]QuestStatus, 0, len(quests))
	for _, q := range quests {
		_, done := earned[q.TriggerAchievement]
		out = append(out, QuestStatus{Quest: q, Completed: done})
	}
	return out
}
