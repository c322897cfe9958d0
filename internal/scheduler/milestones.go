package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/idgen"
	"github.com/alfredjeanlab/planline/internal/metrics"
	"github.com/alfredjeanlab/planline/internal/milestone"
	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// MilestoneInput holds the parameters for creating a milestone.
type MilestoneInput struct {
	Name                  string     `json:"name"`
	Type                  string     `json:"type,omitempty"`
	PlannedDate           time.Time  `json:"planned_date"`
	BaselineDate          *time.Time `json:"baseline_date,omitempty"`
	IsGate                bool       `json:"is_gate"`
	GateCategory          string     `json:"gate_category,omitempty"`
	ApprovalRequired      bool       `json:"approval_required"`
	Approvers             []string   `json:"approvers,omitempty"`
	MilestoneDependencies []string   `json:"milestone_dependencies,omitempty"`
	TaskDependencies      []string   `json:"task_dependencies,omitempty"`
	ProgressWeight        int        `json:"progress_weight"`
	ReminderDays          *int       `json:"reminder_days,omitempty"`
	CreatedBy             string     `json:"created_by,omitempty"`
}

// Transition is one status change applied by a sweep.
type Transition struct {
	ProjectID   string                `json:"project_id"`
	MilestoneID string                `json:"milestone_id"`
	From        model.MilestoneStatus `json:"from"`
	To          model.MilestoneStatus `json:"to"`
}

// SweepResult summarizes a sweep over one organization.
type SweepResult struct {
	OrgID       string       `json:"org_id"`
	Projects    int          `json:"projects"`
	Evaluated   int          `json:"evaluated"`
	Transitions []Transition `json:"transitions"`
}

// ListMilestones returns the project's milestones ordered by planned date.
func (s *Service) ListMilestones(ctx context.Context, orgID, projectID string) ([]*model.Milestone, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMilestones(ctx, orgID, projectID)
}

// GetMilestone returns a single milestone.
func (s *Service) GetMilestone(ctx context.Context, orgID, milestoneID string) (*model.Milestone, error) {
	return s.store.GetMilestone(ctx, orgID, milestoneID)
}

// CreateMilestone validates a new milestone against its project and the
// existing dependency graph, persists it and rolls progress up.
func (s *Service) CreateMilestone(ctx context.Context, orgID, projectID string, in MilestoneInput) (*model.Milestone, error) {
	id, err := idgen.New(idgen.Milestone)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	reminder := s.defaultReminderDays
	if in.ReminderDays != nil {
		reminder = *in.ReminderDays
	}
	now := s.now()
	m := &model.Milestone{
		ID:                    id,
		OrgID:                 orgID,
		ProjectID:             projectID,
		Name:                  in.Name,
		Type:                  in.Type,
		PlannedDate:           in.PlannedDate,
		BaselineDate:          in.BaselineDate,
		Status:                model.MilestonePlanned,
		IsGate:                in.IsGate,
		GateCategory:          in.GateCategory,
		ApprovalRequired:      in.ApprovalRequired,
		Approvers:             in.Approvers,
		ApprovalStatus:        model.ApprovalPending,
		MilestoneDependencies: in.MilestoneDependencies,
		TaskDependencies:      in.TaskDependencies,
		ProgressWeight:        in.ProgressWeight,
		ReminderDays:          reminder,
		CreatedAt:             now,
		CreatedBy:             in.CreatedBy,
		UpdatedAt:             now,
	}

	var (
		project  *model.Project
		progress bool
	)
	err = s.withProject(ctx, orgID, projectID, func(tx store.Store, p *model.Project) error {
		project = p
		if err := model.ValidateMilestone(m, p); err != nil {
			return err
		}
		if err := s.checkMilestoneGraph(ctx, tx, p, m); err != nil {
			return err
		}
		if err := tx.CreateMilestone(ctx, m); err != nil {
			return fmt.Errorf("failed to create milestone: %w", err)
		}
		var err error
		progress, err = s.rollup(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, orgID, projectID, events.TopicMilestoneCreated, m.ID, m.CreatedBy, events.MilestoneCreated{Milestone: m})
	if progress {
		s.publishProgress(ctx, project, m.CreatedBy)
	}
	return m, nil
}

// checkMilestoneGraph verifies the project's milestone graph stays acyclic
// and fully resolved with m added or replaced.
func (s *Service) checkMilestoneGraph(ctx context.Context, tx store.Store, p *model.Project, m *model.Milestone) error {
	all, err := tx.ListMilestones(ctx, p.OrgID, p.ID)
	if err != nil {
		return err
	}
	replaced := false
	for i, other := range all {
		if other.ID == m.ID {
			all[i] = m
			replaced = true
		}
	}
	if !replaced {
		all = append(all, m)
	}
	tasks, err := tx.ListTasks(ctx, p.OrgID, p.ID)
	if err != nil {
		return err
	}
	return milestone.CheckGraph(all, tasks)
}

// milestoneMutation loads a milestone inside its project transaction,
// applies fn and persists it. fn receives the project's milestones and tasks
// for guard checks.
func (s *Service) milestoneMutation(ctx context.Context, orgID, milestoneID string, rollup bool,
	fn func(tx store.Store, p *model.Project, m *model.Milestone) error,
) (*model.Milestone, *model.Project, bool, error) {
	existing, err := s.store.GetMilestone(ctx, orgID, milestoneID)
	if err != nil {
		return nil, nil, false, err
	}

	var (
		m        *model.Milestone
		project  *model.Project
		progress bool
	)
	err = s.withProject(ctx, orgID, existing.ProjectID, func(tx store.Store, p *model.Project) error {
		project = p
		var err error
		if m, err = tx.GetMilestone(ctx, orgID, milestoneID); err != nil {
			return err
		}
		if err := fn(tx, p, m); err != nil {
			return err
		}
		if err := tx.UpdateMilestone(ctx, m); err != nil {
			return err
		}
		if rollup {
			progress, err = s.rollup(ctx, tx, p)
		}
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	return m, project, progress, nil
}

// AchieveMilestone marks a milestone achieved once every milestone and task
// it depends on is done and any required approval is granted.
func (s *Service) AchieveMilestone(ctx context.Context, orgID, milestoneID, actor string) (*model.Milestone, error) {
	m, project, progress, err := s.milestoneMutation(ctx, orgID, milestoneID, true, func(tx store.Store, p *model.Project, m *model.Milestone) error {
		deps, err := tx.ListMilestones(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		return milestone.Achieve(m, deps, tasks, actor, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, orgID, project.ID, events.TopicMilestoneAchieved, m.ID, actor, events.MilestoneAchieved{Milestone: m, AchievedBy: actor})
	if progress {
		s.publishProgress(ctx, project, actor)
	}
	return m, nil
}

// SetMilestoneApproval records an approval decision on a gate.
func (s *Service) SetMilestoneApproval(ctx context.Context, orgID, milestoneID, actor string, decision model.ApprovalStatus) (*model.Milestone, error) {
	m, project, _, err := s.milestoneMutation(ctx, orgID, milestoneID, false, func(_ store.Store, _ *model.Project, m *model.Milestone) error {
		return milestone.ApplyApproval(m, actor, decision, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(ctx, orgID, project.ID, events.TopicMilestoneApproval, m.ID, actor, events.MilestoneApproval{Milestone: m, Decision: decision, Actor: actor})
	return m, nil
}

// CancelMilestone moves a milestone to cancelled, removing it from the
// progress rollup.
func (s *Service) CancelMilestone(ctx context.Context, orgID, milestoneID, actor string) (*model.Milestone, error) {
	m, project, progress, err := s.milestoneMutation(ctx, orgID, milestoneID, true, func(_ store.Store, _ *model.Project, m *model.Milestone) error {
		return milestone.Cancel(m, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(ctx, orgID, project.ID, events.TopicMilestoneCancelled, m.ID, actor, events.MilestoneCancelled{Milestone: m})
	if progress {
		s.publishProgress(ctx, project, actor)
	}
	return m, nil
}

// UpdateMilestoneDependencies replaces a milestone's dependency lists.
// References to unknown records or a resulting cycle are rejected.
func (s *Service) UpdateMilestoneDependencies(ctx context.Context, orgID, milestoneID string, milestoneDeps, taskDeps []string, actor string) (*model.Milestone, error) {
	m, project, _, err := s.milestoneMutation(ctx, orgID, milestoneID, false, func(tx store.Store, p *model.Project, m *model.Milestone) error {
		m.MilestoneDependencies = milestoneDeps
		m.TaskDependencies = taskDeps
		if err := model.ValidateMilestone(m, p); err != nil {
			return err
		}
		return s.checkMilestoneGraph(ctx, tx, p, m)
	})
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(ctx, orgID, project.ID, events.TopicMilestoneUpdated, m.ID, actor, events.MilestoneUpdated{
		Milestone: m,
		Changes:   map[string]any{"milestone_dependencies": milestoneDeps, "task_dependencies": taskDeps},
	})
	return m, nil
}

// DeleteMilestone removes a milestone that no other milestone depends on.
func (s *Service) DeleteMilestone(ctx context.Context, orgID, milestoneID, actor string) error {
	existing, err := s.store.GetMilestone(ctx, orgID, milestoneID)
	if err != nil {
		return err
	}

	var (
		project  *model.Project
		progress bool
	)
	err = s.withProject(ctx, orgID, existing.ProjectID, func(tx store.Store, p *model.Project) error {
		project = p
		all, err := tx.ListMilestones(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		if err := milestone.CheckDelete(milestoneID, all); err != nil {
			return err
		}
		if err := tx.DeleteMilestone(ctx, orgID, milestoneID); err != nil {
			return err
		}
		progress, err = s.rollup(ctx, tx, p)
		return err
	})
	if err != nil {
		return err
	}

	s.recordAndPublish(ctx, orgID, project.ID, events.TopicMilestoneDeleted, milestoneID, actor, events.MilestoneDeleted{MilestoneID: milestoneID, ProjectID: project.ID})
	if progress {
		s.publishProgress(ctx, project, actor)
	}
	return nil
}

// SweepMilestoneStatuses evaluates every open milestone of the organization
// against the current date, moving planned milestones inside their reminder
// window to at_risk and overdue ones to missed. Projects are swept
// concurrently; a failing project does not stop the others.
func (s *Service) SweepMilestoneStatuses(ctx context.Context, orgID string) (*SweepResult, error) {
	projects, err := s.store.ListProjects(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	res := &SweepResult{OrgID: orgID, Projects: len(projects), Transitions: []Transition{}}
	mapper := iter.Mapper[*model.Project, []Transition]{MaxGoroutines: s.sweepWorkers}
	perProject := mapper.Map(projects, func(p **model.Project) []Transition {
		evaluated, transitions, err := s.sweepProject(ctx, orgID, (*p).ID)
		mu.Lock()
		defer mu.Unlock()
		res.Evaluated += evaluated
		if err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", (*p).ID, err))
		}
		return transitions
	})
	for _, ts := range perProject {
		res.Transitions = append(res.Transitions, ts...)
	}
	sort.Slice(res.Transitions, func(i, j int) bool {
		a, b := res.Transitions[i], res.Transitions[j]
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		return a.MilestoneID < b.MilestoneID
	})
	return res, errors.Join(errs...)
}

func (s *Service) sweepProject(ctx context.Context, orgID, projectID string) (int, []Transition, error) {
	var (
		evaluated int
		changed   []*model.Milestone
		out       []Transition
	)
	err := s.withProject(ctx, orgID, projectID, func(tx store.Store, p *model.Project) error {
		milestones, err := tx.ListMilestones(ctx, orgID, p.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, m := range milestones {
			if m.Status.IsTerminal() {
				continue
			}
			evaluated++
			next, ok := milestone.Evaluate(m, now)
			if !ok {
				continue
			}
			out = append(out, Transition{ProjectID: p.ID, MilestoneID: m.ID, From: m.Status, To: next})
			m.Status = next
			m.UpdatedAt = now
			if err := tx.UpdateMilestone(ctx, m); err != nil {
				return err
			}
			changed = append(changed, m)
		}
		return nil
	})
	if err != nil {
		return evaluated, nil, err
	}

	for i, m := range changed {
		t := out[i]
		topic := events.TopicMilestoneAtRisk
		if t.To == model.MilestoneMissed {
			topic = events.TopicMilestoneMissed
		}
		metrics.IncrementSweepTransition(string(t.To))
		s.recordAndPublish(ctx, orgID, projectID, topic, m.ID, "", events.MilestoneStatusChanged{Milestone: m, From: t.From})
	}
	return evaluated, out, nil
}

// SweepAll runs SweepMilestoneStatuses for every organization that owns a
// project.
func (s *Service) SweepAll(ctx context.Context) ([]*SweepResult, error) {
	orgs, err := s.store.ListOrgIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	var (
		results []*SweepResult
		errs    []error
	)
	for _, org := range orgs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.SweepMilestoneStatuses(ctx, org)
		if err != nil {
			errs = append(errs, fmt.Errorf("org %s: %w", org, err))
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}
