// Package training contains the exercise catalogue and training plans.
package training

import (
	"context"
)

// Category groups exercises.
type Category string

const (
	CategoryStrength  Category = "Kraft"
	CategoryStretch   Category = "Dehnung"
	CategoryEndurance Category = "Ausdauer"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryStrength, CategoryStretch, CategoryEndurance}

// IsValid checks that the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryStrength, CategoryStretch, CategoryEndurance:
		return true
	}
	return false
}

// Exercise is a shared, read-only catalogue entry.
type Exercise struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

// DefaultExercises seeds an empty catalogue.
var DefaultExercises = []Exercise{
	{ID: "ex1", Name: "Liegestütze", Category: CategoryStrength, Description: "Klassische Liegestütze."},
	{ID: "ex2", Name: "Kniebeugen", Category: CategoryStrength, Description: "Grundübung für Beine."},
	{ID: "ex3", Name: "Plank", Category: CategoryStrength, Description: "Stärkt den Rumpf."},
	{ID: "ex4", Name: "Oberschenkeldehnung", Category: CategoryStretch, Description: "Dehnt vordere Oberschenkel."},
	{ID: "ex5", Name: "Wadendehnung", Category: CategoryStretch, Description: "Dehnt Waden."},
	{ID: "ex6", Name: "Joggen", Category: CategoryEndurance, Description: "Ausdauertraining."},
	{ID: "ex7", Name: "Hampelmänner", Category: CategoryEndurance, Description: "Ganzkörperübung zur Erwärmung."},
	{ID: "ex8", Name: "Katze-Kuh", Category: CategoryStretch, Description: "Mobilisiert die Wirbelsäule."},
	{ID: "ex9", Name: "Ausfallschritte", Category: CategoryStrength, Description: "Stärkt Bein- und Gesäßmuskulatur."},
}

// ExerciseCatalog gives read access to exercises.
type ExerciseCatalog interface {
	// ListExercises returns the whole catalogue, seeding it if empty.
	ListExercises(ctx context.Context) ([]Exercise, error)
}

// IndexExercises maps exercises by id.
func IndexExercises(exercises []Exercise) map[string]Exercise {
	out := make(map[string]Exercise, len(exercises))
	for _, e := range exercises {
		out[e.ID] = e
	}
	return out
}
