package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
	"github.com/alfredjeanlab/planline/internal/ui"
)

const dateLayout = "2006-01-02"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func fmtPercent(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", *p)
}

func fmtHours(h *float64) string {
	if h == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *h)
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func printProject(w io.Writer, p *model.Project) {
	fmt.Fprintf(w, "ID:          %s\n", p.ID)
	fmt.Fprintf(w, "Name:        %s\n", p.Name)
	fmt.Fprintf(w, "Dates:       %s .. %s\n", p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout))
	fmt.Fprintf(w, "Progress:    %d%%\n", p.Progress)
	fmt.Fprintf(w, "Completion:  %gh (schedule v%d)\n", p.CompletionHours, p.ScheduleVersion)
	if p.CreatedBy != "" {
		fmt.Fprintf(w, "Created By:  %s\n", p.CreatedBy)
	}
}

func printTask(w io.Writer, t *model.Task) {
	fmt.Fprintf(w, "ID:          %s\n", t.ID)
	fmt.Fprintf(w, "Number:      %s (WBS %s, level %d)\n", t.TaskNumber, t.WBSCode, t.Level)
	fmt.Fprintf(w, "Title:       %s\n", t.Title)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(string(t.Status)))
	fmt.Fprintf(w, "Progress:    %s\n", fmtPercent(t.PercentComplete))
	fmt.Fprintf(w, "Estimate:    %sh\n", fmtHours(t.EstimatedHours))
	if t.ParentID != "" {
		fmt.Fprintf(w, "Parent:      %s\n", t.ParentID)
	}
	if len(t.Dependencies) > 0 {
		deps := make([]string, len(t.Dependencies))
		for i, d := range t.Dependencies {
			deps[i] = formatDep(d)
		}
		fmt.Fprintf(w, "Depends On:  %s\n", strings.Join(deps, ", "))
	}
	fmt.Fprintf(w, "Schedule:    ES %g  EF %g  LS %g  LF %g  slack %g\n",
		t.EarlyStart, t.EarlyFinish, t.LateStart, t.LateFinish, t.Slack)
	if t.IsCriticalPath {
		fmt.Fprintf(w, "Critical:    %s\n", ui.RenderCritical("yes"))
	}
}

func printTaskList(w io.Writer, tasks []*model.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tWBS\tSTATUS\tDONE\tHOURS\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.TaskNumber, t.WBSCode, t.Status,
			fmtPercent(t.PercentComplete), fmtHours(t.EstimatedHours), truncate(t.Title, 50))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d tasks\n", len(tasks))
	return nil
}

func printSchedule(w io.Writer, v *scheduler.ScheduleView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tWBS\tDUR\tES\tEF\tLS\tLF\tSLACK\tTITLE")
	for _, t := range v.Tasks {
		title := truncate(t.Title, 50)
		if t.Critical {
			title = ui.RenderCritical(title + " *")
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%g\t%g\t%g\t%s\n",
			t.TaskNumber, t.WBSCode, t.Duration, t.EarlyStart, t.EarlyFinish, t.LateStart, t.LateFinish, t.Slack, title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncompletion %gh, progress %d%%, schedule v%d\n", v.Completion, v.Progress, v.Version)
	fmt.Fprintf(w, "critical path: %s\n", strings.Join(v.CriticalPath, " -> "))
	return nil
}

// printOfflineSchedule renders a schedule computed from a plan file.
func printOfflineSchedule(w io.Writer, s *cpm.Schedule, title func(id string) string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDUR\tES\tEF\tLS\tLF\tSLACK\tTITLE")
	for _, t := range s.Tasks {
		name := truncate(title(t.ID), 50)
		if t.Critical {
			name = ui.RenderCritical(name + " *")
		}
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%g\t%g\t%g\t%s\n",
			t.ID, t.Duration, t.EarlyStart, t.EarlyFinish, t.LateStart, t.LateFinish, t.Slack, name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncompletion %gh\n", s.Completion)
	fmt.Fprintf(w, "critical path: %s\n", strings.Join(s.CriticalPath(), " -> "))
	return nil
}

func printMilestone(w io.Writer, m *model.Milestone) {
	fmt.Fprintf(w, "ID:          %s\n", m.ID)
	fmt.Fprintf(w, "Name:        %s\n", m.Name)
	fmt.Fprintf(w, "Status:      %s\n", ui.RenderStatus(string(m.Status)))
	fmt.Fprintf(w, "Planned:     %s\n", m.PlannedDate.Format(dateLayout))
	if m.BaselineDate != nil {
		fmt.Fprintf(w, "Baseline:    %s\n", fmtDate(m.BaselineDate))
	}
	if m.ActualDate != nil {
		fmt.Fprintf(w, "Actual:      %s\n", fmtDate(m.ActualDate))
	}
	if m.IsGate {
		fmt.Fprintf(w, "Gate:        %s\n", m.GateCategory)
	}
	if m.ApprovalRequired {
		fmt.Fprintf(w, "Approval:    %s (approvers: %s)\n", m.ApprovalStatus, strings.Join(m.Approvers, ", "))
	}
	if len(m.MilestoneDependencies) > 0 {
		fmt.Fprintf(w, "After:       %s\n", strings.Join(m.MilestoneDependencies, ", "))
	}
	if len(m.TaskDependencies) > 0 {
		fmt.Fprintf(w, "Needs Tasks: %s\n", strings.Join(m.TaskDependencies, ", "))
	}
}

func printMilestoneList(w io.Writer, ms []*model.Milestone) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLANNED\tGATE\tNAME\tSTATUS")
	for _, m := range ms {
		gate := ""
		if m.IsGate {
			gate = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.PlannedDate.Format(dateLayout), gate, truncate(m.Name, 40), ui.RenderStatus(string(m.Status)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d milestones\n", len(ms))
	return nil
}

func printSweep(w io.Writer, r *scheduler.SweepResult) {
	fmt.Fprintf(w, "swept %d projects, %d milestones evaluated\n", r.Projects, r.Evaluated)
	for _, t := range r.Transitions {
		fmt.Fprintf(w, "  %s  %s -> %s  (%s)\n", t.MilestoneID, t.From, ui.RenderStatus(string(t.To)), t.ProjectID)
	}
}

func printEvent(w io.Writer, e *model.Event) {
	fmt.Fprintf(w, "%s  %-30s %-16s %s\n",
		e.CreatedAt.Format(time.RFC3339), ui.RenderAccent(e.Topic), e.EntityID, e.Actor)
}
