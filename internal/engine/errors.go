package engine

import (
	"fmt"

	"fieldtasker/internal/domain"
)

// LockConflictError is returned when a transition is attempted on a locked
// task by a user who does not hold the lock.
type LockConflictError struct {
	TaskID string
	HeldBy string
}

func (e LockConflictError) Error() string {
	return fmt.Sprintf("task %s is locked by another user", e.TaskID)
}

// InvalidTransitionError is returned when the requested (from, to) pair is
// absent from the transition table.
type InvalidTransitionError struct {
	From domain.TaskStatus
	To   domain.TaskStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}

// PersistenceError wraps a storage failure during the atomic save of a task
// and its history entry. No partial state is visible when it is returned.
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persist transition: %v", e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }
