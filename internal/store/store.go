package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/planline/internal/model"
)

// ErrDuplicate is wrapped by CreateTask when the task number or WBS code is
// already taken in the project.
var ErrDuplicate = errors.New("duplicate key")

// Store defines the persistence interface for projects, tasks and milestones.
//
// Get and Delete methods return *model.NotFoundError when the record does not
// exist in the given organization.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, orgID, id string) (*model.Project, error)
	ListProjects(ctx context.Context, orgID string) ([]*model.Project, error)
	ListOrgIDs(ctx context.Context) ([]string, error)

	// Tasks
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, orgID, id string) (*model.Task, error)
	ListTasks(ctx context.Context, orgID, projectID string) ([]*model.Task, error) // ordered by creation
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, orgID, id string) error

	// Milestones
	CreateMilestone(ctx context.Context, m *model.Milestone) error
	GetMilestone(ctx context.Context, orgID, id string) (*model.Milestone, error)
	ListMilestones(ctx context.Context, orgID, projectID string) ([]*model.Milestone, error) // ordered by planned date
	UpdateMilestone(ctx context.Context, m *model.Milestone) error
	DeleteMilestone(ctx context.Context, orgID, id string) error

	// Schedule write-back. SaveSchedule applies the computed CPM fields and
	// bumps the project's schedule version if it still equals expectedVersion;
	// otherwise it returns *model.ConcurrentModificationError. It returns the
	// new version.
	SaveSchedule(ctx context.Context, orgID, projectID string, expectedVersion int64, fields []model.ScheduleFields, completionHours float64) (int64, error)
	UpdateProjectProgress(ctx context.Context, orgID, projectID string, progress int) error

	// Numbering counters, one per (project, scope). NextSequence raises the
	// counter to max(current, floor)+1 and returns the new value; Sequence
	// returns the current value, or 0 for a counter never issued.
	Sequence(ctx context.Context, orgID, projectID, scope string) (int, error)
	NextSequence(ctx context.Context, orgID, projectID, scope string, floor int) (int, error)

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, orgID, projectID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
