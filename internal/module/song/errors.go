package song

import "errors"

var (
	// ErrTaskNotFound is returned when no task matches the given id.
	// Task state is process-local, so a restart loses in-flight tasks.
	ErrTaskNotFound = errors.New("task not found")
)
