package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrNotTerminal is returned when a non-terminal ride is appended to history.
	ErrNotTerminal = errors.New("ride is not in a terminal state")
)
