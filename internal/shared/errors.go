package shared

import "errors"

var (
	// ErrNotFound indicates an unknown tenant, period or record.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a lost period transition race or a duplicate active period.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates the target is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)
