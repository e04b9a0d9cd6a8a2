// Package command contains write operations (CQRS - Commands).
//
// Every command validates its input, changes entities through their
// repositories and hands the consequences to the user's progression engine.
package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
	"github.com/selfdev-app/selfdev/pkg/timeutil"
)

// Env carries the collaborators every handler needs besides its repositories.
type Env struct {
	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Clock     timeutil.Clock

	// Location decides which calendar day "today" is for habit toggles.
	Location *time.Location

	// NewID generates entity ids. Defaults to random UUIDs.
	NewID func() string
}

func (e Env) withDefaults() Env {
	if e.Publisher == nil {
		e.Publisher = shared.NopPublisher{}
	}
	if e.Logger == nil {
		e.Logger = logger.Nop()
	}
	if e.Clock == nil {
		e.Clock = timeutil.SystemClock{}
	}
	if e.Location == nil {
		e.Location = time.UTC
	}
	if e.NewID == nil {
		e.NewID = uuid.NewString
	}
	return e
}

func (e Env) today() time.Time {
	return timeutil.Today(e.Clock, e.Location)
}

func (e Env) publish(ev shared.Event) {
	if err := e.Publisher.Publish(ev); err != nil {
		e.Logger.Warn("failed to publish event", logger.String("event", string(ev.EventType())), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return shared.UserID(fl.Field().String()).IsValid()
	})
	return v
}

// validateCommand runs struct tags and converts failures to validation errors.
func validateCommand(domain, op string, cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.Validation(domain, op, err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeField(fe))
	}
	return shared.Validation(domain, op, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "userid":
		return field + " is not a valid user id"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "ne":
		return fmt.Sprintf("%s must not be %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}
