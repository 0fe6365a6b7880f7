package shared

import "errors"

var (
	// ErrNotFound indicates an unknown claim, employee or team id.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or out-of-range payload.
	ErrValidation = errors.New("validation failed")
	// ErrPeriodLocked indicates a mutation attempted on a frozen week.
	ErrPeriodLocked = errors.New("period locked")
	// ErrImmutableState indicates an edit or delete on a non-editable stage.
	ErrImmutableState = errors.New("claim immutable in current stage")
	// ErrInvalidTransition indicates an advance with no forward edge or
	// insufficient authority. Domain packages wrap it with the offending stage.
	ErrInvalidTransition = errors.New("transition invalid")
	// ErrConcurrentModification indicates an optimistic-lock conflict; the
	// caller should re-read and retry.
	ErrConcurrentModification = errors.New("claim modified concurrently")
	// ErrForbidden indicates the actor lacks authority for the operation.
	ErrForbidden = errors.New("forbidden")
)
