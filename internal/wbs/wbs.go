// Package wbs assigns human-readable task numbers and hierarchical
// work-breakdown-structure codes.
//
// Both are drawn from per-project counters that only grow, so a number or
// code freed by a deleted task is never handed out again. The counters are
// floored by what the existing tasks already use, which keeps projects
// created before the counters existed consistent.
package wbs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/planline/internal/model"
)

// DefaultChildCode is returned for a child task whose parent is missing or
// has no WBS code.
const DefaultChildCode = "1.1"

// TaskNumberScope is the counter behind task numbers.
const TaskNumberScope = "task"

const taskNumberPrefix = "TSK-"

// ChildScope is the counter behind the WBS codes of parentID's children.
// The empty parent names the root level.
func ChildScope(parentID string) string {
	return "wbs:" + parentID
}

// Source is the part of the store the generator reads and, when assigning,
// advances.
type Source interface {
	GetTask(ctx context.Context, orgID, id string) (*model.Task, error)
	ListTasks(ctx context.Context, orgID, projectID string) ([]*model.Task, error)
	Sequence(ctx context.Context, orgID, projectID, scope string) (int, error)
	NextSequence(ctx context.Context, orgID, projectID, scope string, floor int) (int, error)
}

// Generator computes identifiers for new tasks. The Next methods preview the
// value without reserving it; the Assign methods reserve it and must run in
// the same transaction that inserts the task.
type Generator struct {
	src Source
}

func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Code is a generated WBS position.
type Code struct {
	WBSCode string
	Level   int
	// Degraded is set when the parent could not supply a code and
	// DefaultChildCode was used instead.
	Degraded bool
}

// FormatTaskNumber renders n as TSK-001. Numbers wider than three digits are
// not truncated.
func FormatTaskNumber(n int) string {
	return fmt.Sprintf("%s%03d", taskNumberPrefix, n)
}

// counter yields the next value of a scope given the floor taken from the
// existing tasks.
type counter func(ctx context.Context, orgID, projectID, scope string, floor int) (int, error)

func (g *Generator) peek(ctx context.Context, orgID, projectID, scope string, floor int) (int, error) {
	cur, err := g.src.Sequence(ctx, orgID, projectID, scope)
	if err != nil {
		return 0, fmt.Errorf("read %s counter: %w", scope, err)
	}
	return max(cur, floor) + 1, nil
}

func (g *Generator) reserve(ctx context.Context, orgID, projectID, scope string, floor int) (int, error) {
	n, err := g.src.NextSequence(ctx, orgID, projectID, scope, floor)
	if err != nil {
		return 0, fmt.Errorf("advance %s counter: %w", scope, err)
	}
	return n, nil
}

// NextTaskNumber previews the number the next task in the project gets.
func (g *Generator) NextTaskNumber(ctx context.Context, orgID, projectID string) (string, error) {
	return g.taskNumber(ctx, orgID, projectID, g.peek)
}

// AssignTaskNumber reserves the next task number.
func (g *Generator) AssignTaskNumber(ctx context.Context, orgID, projectID string) (string, error) {
	return g.taskNumber(ctx, orgID, projectID, g.reserve)
}

func (g *Generator) taskNumber(ctx context.Context, orgID, projectID string, next counter) (string, error) {
	tasks, err := g.src.ListTasks(ctx, orgID, projectID)
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	floor := len(tasks)
	for _, t := range tasks {
		if n, ok := parseTaskNumber(t.TaskNumber); ok {
			floor = max(floor, n)
		}
	}
	n, err := next(ctx, orgID, projectID, TaskNumberScope, floor)
	if err != nil {
		return "", err
	}
	return FormatTaskNumber(n), nil
}

// NextWBSCode previews the WBS code and level of a new task under parentID
// (empty for a root task).
func (g *Generator) NextWBSCode(ctx context.Context, orgID, projectID, parentID string) (Code, error) {
	return g.wbsCode(ctx, orgID, projectID, parentID, g.peek)
}

// AssignWBSCode reserves the WBS code of a new task under parentID. A
// degraded code reserves nothing.
func (g *Generator) AssignWBSCode(ctx context.Context, orgID, projectID, parentID string) (Code, error) {
	return g.wbsCode(ctx, orgID, projectID, parentID, g.reserve)
}

func (g *Generator) wbsCode(ctx context.Context, orgID, projectID, parentID string, next counter) (Code, error) {
	tasks, err := g.src.ListTasks(ctx, orgID, projectID)
	if err != nil {
		return Code{}, fmt.Errorf("list tasks: %w", err)
	}

	var parent *model.Task
	prefix := ""
	if parentID != "" {
		parent, err = g.src.GetTask(ctx, orgID, parentID)
		if err != nil {
			var nf *model.NotFoundError
			if errors.As(err, &nf) {
				return Code{WBSCode: DefaultChildCode, Level: 1, Degraded: true}, nil
			}
			return Code{}, fmt.Errorf("get parent task: %w", err)
		}
		if parent.WBSCode == "" {
			return Code{WBSCode: DefaultChildCode, Level: parent.Level + 1, Degraded: true}, nil
		}
		prefix = parent.WBSCode + "."
	}

	n, err := next(ctx, orgID, projectID, ChildScope(parentID), childFloor(tasks, parentID, prefix))
	if err != nil {
		return Code{}, err
	}
	code := Code{WBSCode: prefix + strconv.Itoa(n)}
	if parent != nil {
		code.Level = parent.Level + 1
	}
	return code, nil
}

// childFloor is the highest child position already taken under parentID:
// the child count, or the largest last segment among the children's codes.
func childFloor(tasks []*model.Task, parentID, prefix string) int {
	count, highest := 0, 0
	for _, t := range tasks {
		if t.ParentID != parentID {
			continue
		}
		count++
		if rest, ok := strings.CutPrefix(t.WBSCode, prefix); ok && !strings.Contains(rest, ".") {
			if n, err := strconv.Atoi(rest); err == nil {
				highest = max(highest, n)
			}
		}
	}
	return max(count, highest)
}

func parseTaskNumber(s string) (int, bool) {
	digits, ok := strings.CutPrefix(s, taskNumberPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	return n, err == nil
}
