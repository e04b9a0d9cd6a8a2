package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

func TestConversation_UserTurns(t *testing.T) {
	c := Conversation{
		{Role: RoleUser, Text: "Hallo"},
		{Role: RoleModel, Text: "Hallo! Wie kann ich helfen?"},
		{Role: RoleUser, Text: "Ich will mehr lesen."},
	}
	assert.Equal(t, 2, c.UserTurns())
	assert.NoError(t, c.Validate())
}

func TestConversation_Validate(t *testing.T) {
	assert.ErrorIs(t, Conversation{}.Validate(), shared.ErrEmptyConversation)
	assert.ErrorIs(t, Conversation{{Role: RoleModel, Text: "x"}}.Validate(), shared.ErrEmptyConversation)
	assert.True(t, shared.IsValidation(Conversation{{Role: RoleUser, Text: "  "}}.Validate()))
	assert.True(t, shared.IsValidation(Conversation{{Role: "system", Text: "a"}, {Role: RoleUser, Text: "b"}}.Validate()))
}

func TestConversation_AppendDoesNotAlias(t *testing.T) {
	base := make(Conversation, 1, 4)
	base[0] = Message{Role: RoleUser, Text: "a"}

	one := base.Append(Message{Role: RoleModel, Text: "b"})
	two := base.Append(Message{Role: RoleModel, Text: "c"})

	assert.Equal(t, "b", one[1].Text)
	assert.Equal(t, "c", two[1].Text)
}

func TestBuildPrompt(t *testing.T) {
	r := Reflection{Values: "Ehrlichkeit", LifeGoals: "Weltreise"}

	assert.Equal(t, "Was nun?", BuildPrompt(ContextFree, "  Was nun? ", r))

	values := BuildPrompt(ContextValues, "", r)
	assert.Contains(t, values, "Kernwerte")
	assert.Contains(t, values, `"Ehrlichkeit"`)
	assert.NotContains(t, values, "Weltreise")

	goals := BuildPrompt(ContextLifeGoals, "", r)
	assert.Contains(t, goals, "Lebensziele")
	assert.Contains(t, goals, `"Weltreise"`)
	assert.Contains(t, goals, `"Ehrlichkeit"`)

	bare := BuildPrompt(ContextValues, "", Reflection{})
	assert.NotContains(t, bare, "Gedanken")
}
