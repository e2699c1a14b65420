package shared

import "errors"

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a retryable lost-update conflict.
	ErrConflict = errors.New("concurrent update conflict")
)
