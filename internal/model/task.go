package model

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further work is expected on the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// StatusForPercent returns the status implied by a programmatic progress update.
func StatusForPercent(pct int) TaskStatus {
	switch {
	case pct <= 0:
		return TaskTodo
	case pct >= 100:
		return TaskCompleted
	default:
		return TaskInProgress
	}
}

// Task is a schedulable unit of work inside a project.
type Task struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	ParentID  string `json:"parent_id,omitempty"`

	TaskNumber string `json:"task_number"`
	WBSCode    string `json:"wbs_code"`
	Level      int    `json:"level"`

	Title           string         `json:"title"`
	Status          TaskStatus     `json:"status"`
	PercentComplete *int           `json:"percent_complete,omitempty"`
	EstimatedHours  *float64       `json:"estimated_hours,omitempty"`
	PlannedStart    *time.Time     `json:"planned_start,omitempty"`
	PlannedEnd      *time.Time     `json:"planned_end,omitempty"`
	Dependencies    DependencyList `json:"dependencies,omitempty"`

	// Computed by the CPM pass; never set by callers.
	EarlyStart     float64 `json:"early_start"`
	EarlyFinish    float64 `json:"early_finish"`
	LateStart      float64 `json:"late_start"`
	LateFinish     float64 `json:"late_finish"`
	Slack          float64 `json:"slack"`
	IsCriticalPath bool    `json:"is_critical_path"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the effort used by the CPM pass. Missing effort is a
// zero-duration task.
func (t *Task) Duration() float64 {
	if t.EstimatedHours == nil {
		return 0
	}
	return *t.EstimatedHours
}

// EffectivePercent returns the completion percentage used by progress rollup.
// A completed task always counts as 100; otherwise a missing percentage is 0.
func (t *Task) EffectivePercent() int {
	if t.Status == TaskCompleted {
		return 100
	}
	if t.PercentComplete != nil {
		return *t.PercentComplete
	}
	return 0
}

// DependsOn reports whether the task has an edge to target.
func (t *Task) DependsOn(target string) bool {
	for _, d := range t.Dependencies {
		if d.Target == target {
			return true
		}
	}
	return false
}

// ScheduleFields is the computed CPM state written back for one task.
type ScheduleFields struct {
	TaskID         string  `json:"task_id"`
	EarlyStart     float64 `json:"early_start"`
	EarlyFinish    float64 `json:"early_finish"`
	LateStart      float64 `json:"late_start"`
	LateFinish     float64 `json:"late_finish"`
	Slack          float64 `json:"slack"`
	IsCriticalPath bool    `json:"is_critical_path"`
}

// Apply copies the computed fields onto t.
func (f ScheduleFields) Apply(t *Task) {
	t.EarlyStart = f.EarlyStart
	t.EarlyFinish = f.EarlyFinish
	t.LateStart = f.LateStart
	t.LateFinish = f.LateFinish
	t.Slack = f.Slack
	t.IsCriticalPath = f.IsCriticalPath
}
