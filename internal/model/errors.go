package model

import (
	"fmt"
	"strings"
)

// NotFoundError reports a missing project, task or milestone.
type NotFoundError struct {
	Kind string // "project", "task", "milestone"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// DependencyViolationError reports an operation blocked by unmet
// dependencies, missing approval, or incoming references.
type DependencyViolationError struct {
	Op       string // "achieve", "delete"
	EntityID string
	Unmet    []string
}

func (e *DependencyViolationError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Op, e.EntityID, strings.Join(e.Unmet, "; "))
}

// CyclicDependencyError reports a dependency cycle. Cycle lists the ids
// along the loop, starting and ending with the same id.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// ConcurrentModificationError reports a schedule write-back that lost a race
// against another writer of the same project.
type ConcurrentModificationError struct {
	ProjectID string
	Expected  int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("project %s was modified concurrently (expected schedule version %d)", e.ProjectID, e.Expected)
}

// TransitionError reports a milestone status change the state machine forbids.
type TransitionError struct {
	From MilestoneStatus
	To   MilestoneStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid milestone transition %s -> %s", e.From, e.To)
}
