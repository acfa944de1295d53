package domain

import "errors"

var (
	// ErrNoPreRevertState is returned when there is nothing to undo
	ErrNoPreRevertState = errors.New("no pre-revert state available")
	// ErrRestoreExpired is returned when the undo window has passed
	ErrRestoreExpired = errors.New("restore period has expired")
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
)
