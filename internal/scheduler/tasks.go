package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/idgen"
	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
	"github.com/alfredjeanlab/planline/internal/wbs"
)

// TaskInput holds the parameters for creating a task. Dependencies accept
// either the typed edge form or a legacy list of ids.
type TaskInput struct {
	Title           string               `json:"title"`
	ParentID        string               `json:"parent_id,omitempty"`
	Status          model.TaskStatus     `json:"status,omitempty"`
	PercentComplete *int                 `json:"percent_complete,omitempty"`
	EstimatedHours  *float64             `json:"estimated_hours,omitempty"`
	PlannedStart    *time.Time           `json:"planned_start,omitempty"`
	PlannedEnd      *time.Time           `json:"planned_end,omitempty"`
	Dependencies    model.DependencyList `json:"dependencies,omitempty"`
	CreatedBy       string               `json:"created_by,omitempty"`
}

// NextTaskNumber returns the number the next task in the project would get.
func (s *Service) NextTaskNumber(ctx context.Context, orgID, projectID string) (string, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return "", err
	}
	return wbs.NewGenerator(s.store).NextTaskNumber(ctx, orgID, projectID)
}

// NextWBSCode returns the WBS code the next child of parentID (or the next
// root task when parentID is empty) would get.
func (s *Service) NextWBSCode(ctx context.Context, orgID, projectID, parentID string) (string, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return "", err
	}
	code, err := wbs.NewGenerator(s.store).NextWBSCode(ctx, orgID, projectID, parentID)
	if err != nil {
		return "", err
	}
	if code.Degraded {
		slog.Warn("parent task has no usable wbs code, using default", "project_id", projectID, "parent_id", parentID)
	}
	return code.WBSCode, nil
}

// ListTasks returns the project's tasks in creation order.
func (s *Service) ListTasks(ctx context.Context, orgID, projectID string) ([]*model.Task, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, orgID, projectID)
}

// GetTask returns a single task.
func (s *Service) GetTask(ctx context.Context, orgID, taskID string) (*model.Task, error) {
	return s.store.GetTask(ctx, orgID, taskID)
}

// CreateTask assigns the next task number and WBS code, persists the task
// and recomputes the project schedule and progress. Numbers are reserved in
// the same transaction as the insert, so a failed create gives them back.
func (s *Service) CreateTask(ctx context.Context, orgID, projectID string, in TaskInput) (*model.Task, error) {
	status := in.Status
	if status == "" {
		status = model.TaskTodo
		if in.PercentComplete != nil {
			status = model.StatusForPercent(*in.PercentComplete)
		}
	}

	id, err := idgen.New(idgen.Task)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := s.now()
	task := &model.Task{
		ID:              id,
		OrgID:           orgID,
		ProjectID:       projectID,
		ParentID:        in.ParentID,
		Title:           in.Title,
		Status:          status,
		PercentComplete: in.PercentComplete,
		EstimatedHours:  in.EstimatedHours,
		PlannedStart:    in.PlannedStart,
		PlannedEnd:      in.PlannedEnd,
		Dependencies:    in.Dependencies,
		CreatedAt:       now,
		CreatedBy:       in.CreatedBy,
		UpdatedAt:       now,
	}
	if err := model.ValidateTask(task); err != nil {
		return nil, err
	}

	var (
		project  *model.Project
		sched    *cpm.Schedule
		progress bool
	)
	err = s.withProject(ctx, orgID, projectID, func(tx store.Store, p *model.Project) error {
		gen := wbs.NewGenerator(tx)
		number, err := gen.AssignTaskNumber(ctx, orgID, projectID)
		if err != nil {
			return err
		}
		code, err := gen.AssignWBSCode(ctx, orgID, projectID, in.ParentID)
		if err != nil {
			return err
		}
		if code.Degraded {
			slog.Warn("parent task has no usable wbs code, using default",
				"project_id", projectID, "parent_id", in.ParentID, "task_id", task.ID)
		}
		task.TaskNumber = number
		task.WBSCode = code.WBSCode
		task.Level = code.Level

		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, orgID, projectID)
		if err != nil {
			return err
		}
		if sched, err = s.schedule(ctx, tx, p, tasks); err != nil {
			return err
		}
		if t, ok := sched.Get(task.ID); ok {
			task.EarlyStart, task.EarlyFinish = t.EarlyStart, t.EarlyFinish
			task.LateStart, task.LateFinish = t.LateStart, t.LateFinish
			task.Slack, task.IsCriticalPath = t.Slack, t.Critical
		}
		progress, err = s.rollup(ctx, tx, p)
		project = p
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, orgID, projectID, events.TopicTaskCreated, task.ID, task.CreatedBy, events.TaskCreated{Task: task})
	s.publishSchedule(ctx, project, sched, task.CreatedBy)
	if progress {
		s.publishProgress(ctx, project, task.CreatedBy)
	}
	return task, nil
}

// taskMutation loads a task inside the project transaction, applies fn and
// persists the result. When reschedule is set, the critical path is
// recomputed with the mutated task; an invalid graph rolls the whole
// transaction back.
func (s *Service) taskMutation(ctx context.Context, orgID, taskID, actor string, reschedule bool, fn func(t *model.Task) (map[string]any, error)) (*model.Task, error) {
	existing, err := s.store.GetTask(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}

	var (
		task     *model.Task
		changes  map[string]any
		project  *model.Project
		sched    *cpm.Schedule
		progress bool
	)
	err = s.withProject(ctx, orgID, existing.ProjectID, func(tx store.Store, p *model.Project) error {
		project = p
		var err error
		if task, err = tx.GetTask(ctx, orgID, taskID); err != nil {
			return err
		}
		if changes, err = fn(task); err != nil {
			return err
		}
		task.UpdatedAt = s.now()
		if err := model.ValidateTask(task); err != nil {
			return err
		}

		if reschedule {
			tasks, err := tx.ListTasks(ctx, orgID, p.ID)
			if err != nil {
				return err
			}
			for i, t := range tasks {
				if t.ID == task.ID {
					tasks[i] = task
				}
			}
			if err := tx.UpdateTask(ctx, task); err != nil {
				return err
			}
			if sched, err = s.schedule(ctx, tx, p, tasks); err != nil {
				return err
			}
		} else if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}

		progress, err = s.rollup(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, orgID, project.ID, events.TopicTaskUpdated, task.ID, actor, events.TaskUpdated{Task: task, Changes: changes})
	if sched != nil {
		s.publishSchedule(ctx, project, sched, actor)
	}
	if progress {
		s.publishProgress(ctx, project, actor)
	}
	return task, nil
}

// UpdateTaskStatus sets the task's status and rolls progress up.
func (s *Service) UpdateTaskStatus(ctx context.Context, orgID, taskID string, status model.TaskStatus, actor string) (*model.Task, error) {
	return s.taskMutation(ctx, orgID, taskID, actor, false, func(t *model.Task) (map[string]any, error) {
		t.Status = status
		return map[string]any{"status": status}, nil
	})
}

// SetTaskProgress records a completion percentage and derives the status
// from it. A cancelled task keeps its status.
func (s *Service) SetTaskProgress(ctx context.Context, orgID, taskID string, pct int, actor string) (*model.Task, error) {
	return s.taskMutation(ctx, orgID, taskID, actor, false, func(t *model.Task) (map[string]any, error) {
		t.PercentComplete = &pct
		changes := map[string]any{"percent_complete": pct}
		if t.Status != model.TaskCancelled {
			if next := model.StatusForPercent(pct); next != t.Status {
				t.Status = next
				changes["status"] = next
			}
		}
		return changes, nil
	})
}

// UpdateTaskDependencies replaces the task's dependency list and recomputes
// the schedule. A list that would create a cycle or reference a task outside
// the project is rejected.
func (s *Service) UpdateTaskDependencies(ctx context.Context, orgID, taskID string, deps model.DependencyList, actor string) (*model.Task, error) {
	return s.taskMutation(ctx, orgID, taskID, actor, true, func(t *model.Task) (map[string]any, error) {
		t.Dependencies = deps
		return map[string]any{"dependencies": deps}, nil
	})
}

// DeleteTask removes a task and every reference to it: other tasks drop
// their edges to it and milestones drop it from their task dependencies.
func (s *Service) DeleteTask(ctx context.Context, orgID, taskID, actor string) error {
	existing, err := s.store.GetTask(ctx, orgID, taskID)
	if err != nil {
		return err
	}

	var (
		project  *model.Project
		sched    *cpm.Schedule
		progress bool
	)
	err = s.withProject(ctx, orgID, existing.ProjectID, func(tx store.Store, p *model.Project) error {
		project = p
		if err := tx.DeleteTask(ctx, orgID, taskID); err != nil {
			return err
		}

		tasks, err := tx.ListTasks(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if !t.DependsOn(taskID) {
				continue
			}
			t.Dependencies = t.Dependencies.Without(taskID)
			if err := tx.UpdateTask(ctx, t); err != nil {
				return fmt.Errorf("drop dependency from %s: %w", t.ID, err)
			}
		}

		milestones, err := tx.ListMilestones(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			i := slices.Index(m.TaskDependencies, taskID)
			if i < 0 {
				continue
			}
			m.TaskDependencies = slices.Delete(m.TaskDependencies, i, i+1)
			if err := tx.UpdateMilestone(ctx, m); err != nil {
				return fmt.Errorf("drop task dependency from %s: %w", m.ID, err)
			}
		}

		if sched, err = s.schedule(ctx, tx, p, tasks); err != nil {
			return err
		}
		progress, err = s.rollup(ctx, tx, p)
		return err
	})
	if err != nil {
		return err
	}

	s.recordAndPublish(ctx, orgID, project.ID, events.TopicTaskDeleted, taskID, actor, events.TaskDeleted{TaskID: taskID, ProjectID: project.ID})
	s.publishSchedule(ctx, project, sched, actor)
	if progress {
		s.publishProgress(ctx, project, actor)
	}
	return nil
}
