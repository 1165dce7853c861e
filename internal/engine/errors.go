package engine

import (
	"fmt"

	"orgforge/internal/domain"
)

// InvalidTransitionError reports a status change not permitted from the
// step's current state. Callers receive both sides of the rejected move.
type InvalidTransitionError struct {
	Step      domain.StepKey
	Current   domain.StepStatus
	Requested domain.StepStatus
	Reason    string
}

func (e InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition for step %s: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("invalid transition for step %s: %s -> %s", e.Step, e.Current, e.Requested)
}

// ValidationError reports a failed compatibility check during submit. The
// step status is left untouched.
type ValidationError struct {
	Step    domain.StepKey
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for step %s: %s", e.Step, e.Message)
}

// ConflictError reports an aggregate-level conflict, e.g. creating a second
// project for a company that already has an active cycle.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }
