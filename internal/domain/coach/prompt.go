package coach

import (
	"fmt"
	"strings"
)

// DefaultPersona is the coach's system instruction.
const DefaultPersona = "Du bist ein einfühlsamer Life-Coach für persönliche Entwicklung. " +
	"Antworte auf Deutsch, stelle klärende Fragen und gib konkrete, umsetzbare Vorschläge. " +
	"Halte dich kurz und ermutige die Person, eigene Antworten zu finden."

// PromptContext selects a prepared reflection prompt.
type PromptContext string

const (
	// ContextFree sends the user's question unchanged.
	ContextFree PromptContext = ""
	// ContextValues asks for help identifying core values.
	ContextValues PromptContext = "values"
	// ContextLifeGoals asks for help formulating long-term life goals.
	ContextLifeGoals PromptContext = "lifegoals"
)

// IsValid checks that the context is known.
func (p PromptContext) IsValid() bool {
	switch p {
	case ContextFree, ContextValues, ContextLifeGoals:
		return true
	}
	return false
}

const (
	valuesPrompt = "Hilf mir, meine Kernwerte zu identifizieren. Stelle mir klärende Fragen, " +
		"gib Beispiele oder schlage Reflexionsfragen vor, um meine wichtigsten Werte herauszufinden."
	lifeGoalsPrompt = "Hilf mir, meine langfristigen Lebensziele basierend auf meinen Werten zu formulieren. " +
		"Wie kann ich vorgehen? Welche Fragen sollte ich mir stellen?"
)

// Reflection holds the user's notes from the values and life-goals view.
type Reflection struct {
	Values    string `json:"values,omitempty"`
	LifeGoals string `json:"life_goals,omitempty"`
}

// BuildPrompt returns the user message for a reflection context.
// For ContextFree the question is returned trimmed.
func BuildPrompt(ctx PromptContext, question string, r Reflection) string {
	var b strings.Builder
	switch ctx {
	case ContextValues:
		b.WriteString(valuesPrompt)
		if v := strings.TrimSpace(r.Values); v != "" {
			fmt.Fprintf(&b, "\n\nMeine bisherigen Gedanken zu meinen Werten:\n%q", v)
		}
	case ContextLifeGoals:
		b.WriteString(lifeGoalsPrompt)
		if g := strings.TrimSpace(r.LifeGoals); g != "" {
			fmt.Fprintf(&b, "\n\nMeine bisherigen Gedanken zu meinen Lebenszielen:\n%q", g)
		}
		if v := strings.TrimSpace(r.Values); v != "" {
			fmt.Fprintf(&b, "\n\nMeine zugrundeliegenden Werte sind:\n%q", v)
		}
	default:
		b.WriteString(strings.TrimSpace(question))
	}
	return b.String()
}
