package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version        string    `json:"version"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	OrgCount       int       `json:"org_count"`
	ProjectCount   int       `json:"project_count"`
	TaskCount      int       `json:"task_count"`
	MilestoneCount int       `json:"milestone_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// plan is one project with everything that hangs off it.
type plan struct {
	project    *model.Project
	tasks      []*model.Task
	milestones []*model.Milestone
}

// ExportJSONL writes every organization's projects, tasks and milestones
// from the store as JSONL to w. Each project is followed by its tasks in
// creation order and then its milestones in planned-date order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	orgIDs, err := s.ListOrgIDs(ctx)
	if err != nil {
		return fmt.Errorf("list orgs: %w", err)
	}

	var (
		plans []plan
		h     = header{Version: "1", Type: "header", Timestamp: time.Now().UTC(), OrgCount: len(orgIDs)}
	)
	for _, orgID := range orgIDs {
		projects, err := s.ListProjects(ctx, orgID)
		if err != nil {
			return fmt.Errorf("list projects for %s: %w", orgID, err)
		}
		for _, p := range projects {
			tasks, err := s.ListTasks(ctx, orgID, p.ID)
			if err != nil {
				return fmt.Errorf("list tasks for %s: %w", p.ID, err)
			}
			milestones, err := s.ListMilestones(ctx, orgID, p.ID)
			if err != nil {
				return fmt.Errorf("list milestones for %s: %w", p.ID, err)
			}
			plans = append(plans, plan{project: p, tasks: tasks, milestones: milestones})
			h.TaskCount += len(tasks)
			h.MilestoneCount += len(milestones)
		}
	}
	h.ProjectCount = len(plans)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, pl := range plans {
		if err := enc.Encode(record{Type: "project", Data: pl.project}); err != nil {
			return fmt.Errorf("encode project %s: %w", pl.project.ID, err)
		}
		for _, t := range pl.tasks {
			if err := enc.Encode(record{Type: "task", Data: t}); err != nil {
				return fmt.Errorf("encode task %s: %w", t.ID, err)
			}
		}
		for _, m := range pl.milestones {
			if err := enc.Encode(record{Type: "milestone", Data: m}); err != nil {
				return fmt.Errorf("encode milestone %s: %w", m.ID, err)
			}
		}
	}

	return nil
}
