package storage

import "errors"

// Common storage errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrStatusConflict means the row exists but its status did not allow
	// the update
	ErrStatusConflict = errors.New("status conflict")
)
