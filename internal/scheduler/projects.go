package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/idgen"
	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// ProjectInput holds the parameters for creating a project.
type ProjectInput struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// ScheduledTask is a task together with its computed timing.
type ScheduledTask struct {
	cpm.Timing
	TaskNumber string           `json:"task_number"`
	WBSCode    string           `json:"wbs_code"`
	Title      string           `json:"title"`
	Status     model.TaskStatus `json:"status"`
}

// ScheduleView is the critical-path view of a project.
type ScheduleView struct {
	ProjectID    string          `json:"project_id"`
	Version      int64           `json:"schedule_version"`
	Completion   float64         `json:"completion"`
	Progress     int             `json:"progress"`
	CriticalPath []string        `json:"critical_path"`
	Tasks        []ScheduledTask `json:"tasks"`
}

func newScheduleView(p *model.Project, tasks []*model.Task, sched *cpm.Schedule) *ScheduleView {
	byID := make(map[string]*model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	v := &ScheduleView{
		ProjectID:    p.ID,
		Version:      p.ScheduleVersion,
		Completion:   sched.Completion,
		Progress:     p.Progress,
		CriticalPath: sched.CriticalPath(),
		Tasks:        make([]ScheduledTask, 0, len(sched.Tasks)),
	}
	if v.CriticalPath == nil {
		v.CriticalPath = []string{}
	}
	for _, timing := range sched.Tasks {
		st := ScheduledTask{Timing: timing}
		if t, ok := byID[timing.ID]; ok {
			st.TaskNumber = t.TaskNumber
			st.WBSCode = t.WBSCode
			st.Title = t.Title
			st.Status = t.Status
		}
		v.Tasks = append(v.Tasks, st)
	}
	return v
}

// CreateProject validates and persists a new project.
func (s *Service) CreateProject(ctx context.Context, orgID string, in ProjectInput) (*model.Project, error) {
	id, err := idgen.New(idgen.Project)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	now := s.now()
	p := &model.Project{
		ID:        id,
		OrgID:     orgID,
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: now,
		CreatedBy: in.CreatedBy,
		UpdatedAt: now,
	}
	if err := model.ValidateProject(p); err != nil {
		return nil, err
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject returns a project.
func (s *Service) GetProject(ctx context.Context, orgID, projectID string) (*model.Project, error) {
	return s.store.GetProject(ctx, orgID, projectID)
}

// RecomputeCriticalPath re-runs the CPM engine over every task of the
// project and writes the computed timing back.
func (s *Service) RecomputeCriticalPath(ctx context.Context, orgID, projectID string) (*cpm.Schedule, error) {
	var (
		project *model.Project
		sched   *cpm.Schedule
	)
	err := s.withProject(ctx, orgID, projectID, func(tx store.Store, p *model.Project) error {
		tasks, err := tx.ListTasks(ctx, orgID, projectID)
		if err != nil {
			return err
		}
		sched, err = s.schedule(ctx, tx, p, tasks)
		project = p
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishSchedule(ctx, project, sched, "")
	return sched, nil
}

// RecomputeProjectProgress rolls task and milestone completion up into the
// project's progress and returns it.
func (s *Service) RecomputeProjectProgress(ctx context.Context, orgID, projectID string) (int, error) {
	var (
		project *model.Project
		changed bool
	)
	err := s.withProject(ctx, orgID, projectID, func(tx store.Store, p *model.Project) error {
		var err error
		changed, err = s.rollup(ctx, tx, p)
		project = p
		return err
	})
	if err != nil {
		return 0, err
	}
	if changed {
		s.publishProgress(ctx, project, "")
	}
	return project.Progress, nil
}

// GetSchedule returns the critical-path view of the project's current tasks.
// It does not write anything.
func (s *Service) GetSchedule(ctx context.Context, orgID, projectID string) (*ScheduleView, error) {
	p, err := s.store.GetProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	sched, err := cpm.Compute(cpm.NodesFromTasks(tasks))
	if err != nil {
		return nil, err
	}
	return newScheduleView(p, tasks, sched), nil
}

// RecomputeSchedule is RecomputeCriticalPath returning the full view.
func (s *Service) RecomputeSchedule(ctx context.Context, orgID, projectID string) (*ScheduleView, error) {
	if _, err := s.RecomputeCriticalPath(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, orgID, projectID)
}
