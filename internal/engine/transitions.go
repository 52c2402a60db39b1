package engine

import (
	"fmt"

	"fieldtasker/internal/domain"
)

// TransitionTable is the closed set of legal (current, next) status pairs.
// It is total: every lifecycle state has an entry, possibly empty. The engine
// consults it before any mutation, so the legal graph lives in one auditable
// place instead of scattered conditionals.
type TransitionTable map[domain.TaskStatus][]domain.TaskStatus

// DefaultTransitions returns the standard mapping/validation lifecycle graph.
// Every state can be reset to READY or BAD by privileged callers; the
// remaining edges are the normal mapper/validator flow.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		domain.StatusReady: {
			domain.StatusLockedForMapping,
			domain.StatusBad,
		},
		domain.StatusLockedForMapping: {
			domain.StatusMapped,
			domain.StatusReady,
			domain.StatusSplit,
			domain.StatusBad,
		},
		domain.StatusMapped: {
			domain.StatusLockedForValidation,
			domain.StatusLockedForMapping,
			domain.StatusReady,
			domain.StatusBad,
		},
		domain.StatusLockedForValidation: {
			domain.StatusValidated,
			domain.StatusInvalidated,
			domain.StatusMapped,
			domain.StatusReady,
			domain.StatusBad,
		},
		domain.StatusValidated: {
			domain.StatusReady,
			domain.StatusBad,
		},
		domain.StatusInvalidated: {
			domain.StatusLockedForMapping,
			domain.StatusReady,
			domain.StatusBad,
		},
		domain.StatusBad: {
			domain.StatusReady,
		},
		domain.StatusSplit: {
			domain.StatusReady,
		},
	}
}

// Allowed reports whether the (from, to) edge is in the table.
func (t TransitionTable) Allowed(from, to domain.TaskStatus) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate checks the table is total over the closed state set and references
// no unknown states.
func (t TransitionTable) Validate() error {
	known := make(map[domain.TaskStatus]bool, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		known[s] = true
		if _, ok := t[s]; !ok {
			return fmt.Errorf("transition table missing state %s", s)
		}
	}
	for from, targets := range t {
		if !known[from] {
			return fmt.Errorf("transition table has unknown state %s", from)
		}
		for _, to := range targets {
			if !known[to] {
				return fmt.Errorf("transition %s -> %s targets unknown state", from, to)
			}
		}
	}
	return nil
}
