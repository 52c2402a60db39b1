package domain

import "fmt"

// TaskStatus labels the lifecycle state of a task. The set is closed: any
// other value is rejected before it reaches storage.
type TaskStatus string

const (
	StatusReady               TaskStatus = "READY"
	StatusLockedForMapping    TaskStatus = "LOCKED_FOR_MAPPING"
	StatusMapped              TaskStatus = "MAPPED"
	StatusLockedForValidation TaskStatus = "LOCKED_FOR_VALIDATION"
	StatusValidated           TaskStatus = "VALIDATED"
	StatusInvalidated         TaskStatus = "INVALIDATED"
	StatusBad                 TaskStatus = "BAD"
	StatusSplit               TaskStatus = "SPLIT"
)

// AllStatuses lists every lifecycle state, in the order they are reached.
var AllStatuses = []TaskStatus{
	StatusReady,
	StatusLockedForMapping,
	StatusMapped,
	StatusLockedForValidation,
	StatusValidated,
	StatusInvalidated,
	StatusBad,
	StatusSplit,
}

// ParseTaskStatus validates a raw status value against the closed set.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", raw)
}

// TaskAction categorises a history entry.
type TaskAction string

const (
	ActionReleasedForMapping  TaskAction = "RELEASED_FOR_MAPPING"
	ActionLockedForMapping    TaskAction = "LOCKED_FOR_MAPPING"
	ActionMarkedMapped        TaskAction = "MARKED_MAPPED"
	ActionLockedForValidation TaskAction = "LOCKED_FOR_VALIDATION"
	ActionValidated           TaskAction = "VALIDATED"
	ActionMarkedInvalid       TaskAction = "MARKED_INVALID"
	ActionMarkedBad           TaskAction = "MARKED_BAD"
	ActionSplitNeeded         TaskAction = "SPLIT_NEEDED"
	ActionComment             TaskAction = "COMMENT"
)

// ActionForStatusChange maps the status a transition lands on to the history
// action recorded for it.
func ActionForStatusChange(newStatus TaskStatus) TaskAction {
	switch newStatus {
	case StatusReady:
		return ActionReleasedForMapping
	case StatusLockedForMapping:
		return ActionLockedForMapping
	case StatusMapped:
		return ActionMarkedMapped
	case StatusLockedForValidation:
		return ActionLockedForValidation
	case StatusValidated:
		return ActionValidated
	case StatusInvalidated:
		return ActionMarkedInvalid
	case StatusBad:
		return ActionMarkedBad
	case StatusSplit:
		return ActionSplitNeeded
	default:
		return ActionComment
	}
}
