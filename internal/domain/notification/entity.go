// Package notification contains the user-facing messages produced by the
// progression engine. The UI layer renders them as toasts or modals.
package notification

import (
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies a notification.
type Kind string

const (
	// KindLevelUp - the user reached a higher level.
	// "Glückwunsch! Du bist jetzt Level 3 (Fortgeschrittener)!"
	KindLevelUp Kind = "level_up"

	// KindAchievement - a new achievement was unlocked.
	// "\"Zielsetzer\" (20 P.) freigeschaltet!"
	KindAchievement Kind = "achievement"

	// KindPoints - points were awarded outside of an achievement.
	KindPoints Kind = "points"

	// KindStorageError - a change could not be saved and was reverted.
	KindStorageError Kind = "storage_error"

	// KindInfo - anything else worth showing.
	KindInfo Kind = "info"
)

// IsValid checks that the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindLevelUp, KindAchievement, KindPoints, KindStorageError, KindInfo:
		return true
	}
	return false
}

// Severity maps a kind to the modal style used by the UI.
func (k Kind) Severity() string {
	switch k {
	case KindStorageError:
		return "error"
	case KindInfo:
		return "info"
	default:
		return "success"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification is a message for the UI.
type Notification struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// String renders the notification on one line (CLI output).
func (n Notification) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.Kind, n.Title, n.Message)
}

// LevelUp builds the level-up notification.
func LevelUp(level int, name string) Notification {
	return Notification{
		Kind:    KindLevelUp,
		Title:   "Level Aufstieg!",
		Message: fmt.Sprintf("Glückwunsch! Du bist jetzt Level %d (%s)!", level, name),
	}
}

// AchievementUnlocked builds the achievement notification.
func AchievementUnlocked(name string, reward int) Notification {
	return Notification{
		Kind:    KindAchievement,
		Title:   "Neues Abzeichen!",
		Message: fmt.Sprintf("%q (%d P.) freigeschaltet!", name, reward),
	}
}

// PointsAwarded builds a plain points notification.
func PointsAwarded(delta int, reason string) Notification {
	msg := fmt.Sprintf("%+d P.", delta)
	if reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, reason)
	}
	return Notification{
		Kind:    KindPoints,
		Title:   "Punkte",
		Message: msg,
	}
}

// Celebrate builds a success message for a completed goal or training.
func Celebrate(title, message string) Notification {
	return Notification{Kind: KindPoints, Title: title, Message: message}
}

// StorageError builds the notification shown after a rolled-back change.
// The message states that the change was not kept.
func StorageError(what string) Notification {
	return Notification{
		Kind:    KindStorageError,
		Title:   "Speicherfehler",
		Message: fmt.Sprintf("%s konnte nicht gespeichert werden. Die Änderung wurde verworfen.", what),
	}
}

// Info builds an informational notification.
func Info(title, message string) Notification {
	return Notification{Kind: KindInfo, Title: title, Message: message}
}
