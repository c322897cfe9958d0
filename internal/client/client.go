// Package client provides a transport-agnostic interface for the planline
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
)

// PlanClient is the interface the pl CLI commands use to talk to the
// planline server.
type PlanClient interface {
	// Projects
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetSchedule(ctx context.Context, projectID string) (*scheduler.ScheduleView, error)
	Recompute(ctx context.Context, projectID string) (*scheduler.ScheduleView, error)
	RecomputeAsync(ctx context.Context, projectID string) error
	RecomputeProgress(ctx context.Context, projectID string) (int, error)
	NextNumber(ctx context.Context, projectID, parentID string) (*NextNumber, error)
	GetEvents(ctx context.Context, projectID string) ([]*model.Event, error)

	// Tasks
	CreateTask(ctx context.Context, projectID string, req *CreateTaskRequest) (*model.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) (*model.Task, error)
	SetTaskProgress(ctx context.Context, id string, pct int) (*model.Task, error)
	UpdateTaskDependencies(ctx context.Context, id string, deps model.DependencyList) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error

	// Milestones
	CreateMilestone(ctx context.Context, projectID string, req *CreateMilestoneRequest) (*model.Milestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]*model.Milestone, error)
	GetMilestone(ctx context.Context, id string) (*model.Milestone, error)
	UpdateMilestoneDependencies(ctx context.Context, id string, milestoneDeps, taskDeps []string) (*model.Milestone, error)
	AchieveMilestone(ctx context.Context, id string) (*model.Milestone, error)
	SetMilestoneApproval(ctx context.Context, id string, decision model.ApprovalStatus) (*model.Milestone, error)
	CancelMilestone(ctx context.Context, id string) (*model.Milestone, error)
	DeleteMilestone(ctx context.Context, id string) error

	// Sweep and events
	Sweep(ctx context.Context) (*scheduler.SweepResult, error)
	StreamEvents(ctx context.Context, projectID string, topics []string, fn func(StreamEvent) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CreateProjectRequest holds parameters for creating a project.
type CreateProjectRequest struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CreateTaskRequest holds parameters for creating a task.
type CreateTaskRequest struct {
	Title           string               `json:"title"`
	ParentID        string               `json:"parent_id,omitempty"`
	Status          string               `json:"status,omitempty"`
	PercentComplete *int                 `json:"percent_complete,omitempty"`
	EstimatedHours  *float64             `json:"estimated_hours,omitempty"`
	PlannedStart    *time.Time           `json:"planned_start,omitempty"`
	PlannedEnd      *time.Time           `json:"planned_end,omitempty"`
	Dependencies    model.DependencyList `json:"dependencies,omitempty"`
}

// CreateMilestoneRequest holds parameters for creating a milestone.
type CreateMilestoneRequest struct {
	Name                  string     `json:"name"`
	Type                  string     `json:"type,omitempty"`
	PlannedDate           time.Time  `json:"planned_date"`
	BaselineDate          *time.Time `json:"baseline_date,omitempty"`
	IsGate                bool       `json:"is_gate,omitempty"`
	GateCategory          string     `json:"gate_category,omitempty"`
	ApprovalRequired      bool       `json:"approval_required,omitempty"`
	Approvers             []string   `json:"approvers,omitempty"`
	MilestoneDependencies []string   `json:"milestone_dependencies,omitempty"`
	TaskDependencies      []string   `json:"task_dependencies,omitempty"`
	ProgressWeight        int        `json:"progress_weight,omitempty"`
	ReminderDays          *int       `json:"reminder_days,omitempty"`
}

// NextNumber is the numbering the next task in a project would get.
type NextNumber struct {
	TaskNumber string `json:"task_number"`
	WBSCode    string `json:"wbs_code"`
}
