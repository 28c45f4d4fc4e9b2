package store

import "errors"

var (
	// ErrTaskNotFound is returned when a task ID does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal is returned when a terminal write targets a task
	// that is already completed or failed with a different payload.
	// Terminal states are immutable; a conflicting write is a bug in the
	// caller, not something to paper over.
	ErrTaskTerminal = errors.New("task already in terminal state")

	// ErrTaskNotProcessing is returned when a terminal write targets a
	// task that was never claimed.
	ErrTaskNotProcessing = errors.New("task is not processing")
)
