// Package milestone implements the milestone lifecycle: the transition table,
// the achievement gate, the approval sub-state and the periodic risk sweep.
package milestone

import (
	"fmt"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/model"
)

// transitions lists the allowed target states for each source state.
// achieved and cancelled are terminal.
var transitions = map[model.MilestoneStatus][]model.MilestoneStatus{
	model.MilestonePlanned: {model.MilestoneAtRisk, model.MilestoneMissed, model.MilestoneAchieved, model.MilestoneCancelled},
	model.MilestoneAtRisk:  {model.MilestoneMissed, model.MilestoneAchieved, model.MilestoneCancelled},
	model.MilestoneMissed:  {model.MilestoneAchieved, model.MilestoneCancelled},
}

// CanTransition reports whether a milestone may move from one status to
// another.
func CanTransition(from, to model.MilestoneStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckAchievable verifies the achievement gate for m. deps and tasks are the
// records found for m's milestone and task dependencies; any id without a
// record counts as unmet. All unmet conditions are reported together in a
// *model.DependencyViolationError.
func CheckAchievable(m *model.Milestone, deps []*model.Milestone, tasks []*model.Task) error {
	if !CanTransition(m.Status, model.MilestoneAchieved) {
		return &model.TransitionError{From: m.Status, To: model.MilestoneAchieved}
	}

	byMilestone := make(map[string]*model.Milestone, len(deps))
	for _, d := range deps {
		byMilestone[d.ID] = d
	}
	byTask := make(map[string]*model.Task, len(tasks))
	for _, t := range tasks {
		byTask[t.ID] = t
	}

	var unmet []string
	for _, id := range m.MilestoneDependencies {
		d, ok := byMilestone[id]
		switch {
		case !ok:
			unmet = append(unmet, fmt.Sprintf("milestone %s does not exist", id))
		case d.Status != model.MilestoneAchieved:
			unmet = append(unmet, fmt.Sprintf("milestone %s is %s", id, d.Status))
		}
	}
	for _, id := range m.TaskDependencies {
		t, ok := byTask[id]
		switch {
		case !ok:
			unmet = append(unmet, fmt.Sprintf("task %s does not exist", id))
		case t.Status != model.TaskCompleted:
			unmet = append(unmet, fmt.Sprintf("task %s is %s", id, t.Status))
		}
	}
	if m.ApprovalRequired && m.ApprovalStatus != model.ApprovalApproved {
		unmet = append(unmet, fmt.Sprintf("approval is %s", m.ApprovalStatus))
	}

	if len(unmet) > 0 {
		return &model.DependencyViolationError{Op: "achieve", EntityID: m.ID, Unmet: unmet}
	}
	return nil
}

// Achieve checks the gate and marks m achieved at now.
func Achieve(m *model.Milestone, deps []*model.Milestone, tasks []*model.Task, actor string, now time.Time) error {
	if err := CheckAchievable(m, deps, tasks); err != nil {
		return err
	}
	m.Status = model.MilestoneAchieved
	m.ActualDate = &now
	m.AchievedBy = actor
	m.UpdatedAt = now
	return nil
}

// Cancel moves m to cancelled.
func Cancel(m *model.Milestone, now time.Time) error {
	if !CanTransition(m.Status, model.MilestoneCancelled) {
		return &model.TransitionError{From: m.Status, To: model.MilestoneCancelled}
	}
	m.Status = model.MilestoneCancelled
	m.UpdatedAt = now
	return nil
}

// ApplyApproval records an approval decision by actor. A pending milestone
// may be approved or rejected; a rejected one may be approved on review.
// When m lists approvers, actor must be one of them.
func ApplyApproval(m *model.Milestone, actor string, decision model.ApprovalStatus, now time.Time) error {
	if decision != model.ApprovalApproved && decision != model.ApprovalRejected {
		return &model.ValidationError{Errors: []model.FieldError{{
			Field: "approval_status", Message: fmt.Sprintf("decision must be approved or rejected, got %q", decision),
		}}}
	}
	if m.Status.IsTerminal() {
		return &model.ValidationError{Errors: []model.FieldError{{
			Field: "status", Message: fmt.Sprintf("milestone is %s", m.Status),
		}}}
	}
	switch m.ApprovalStatus {
	case model.ApprovalPending:
	case model.ApprovalRejected:
		if decision != model.ApprovalApproved {
			return &model.ValidationError{Errors: []model.FieldError{{
				Field: "approval_status", Message: "milestone is already rejected",
			}}}
		}
	default:
		return &model.ValidationError{Errors: []model.FieldError{{
			Field: "approval_status", Message: fmt.Sprintf("approval is already %s", m.ApprovalStatus),
		}}}
	}
	if len(m.Approvers) > 0 && !m.IsApprover(actor) {
		return &model.DependencyViolationError{
			Op:       "approve",
			EntityID: m.ID,
			Unmet:    []string{fmt.Sprintf("%s is not an approver", actor)},
		}
	}

	m.ApprovalStatus = decision
	m.ApprovedBy = actor
	m.ApprovedAt = &now
	m.UpdatedAt = now
	return nil
}

// Evaluate applies the sweep rule to m and returns the new status and
// whether it changed. Dates compare by UTC calendar day: a milestone is
// overdue once its planned day has passed, and imminent when the planned day
// is at most ReminderDays away.
func Evaluate(m *model.Milestone, now time.Time) (model.MilestoneStatus, bool) {
	if m.Status != model.MilestonePlanned && m.Status != model.MilestoneAtRisk {
		return m.Status, false
	}
	days := daysBetween(now, m.PlannedDate)
	if days < 0 {
		return model.MilestoneMissed, true
	}
	if m.Status == model.MilestonePlanned && days <= m.ReminderDays {
		return model.MilestoneAtRisk, true
	}
	return m.Status, false
}

// daysBetween returns the number of calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.UTC().Year(), a.UTC().Month(), a.UTC().Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.UTC().Year(), b.UTC().Month(), b.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Dependents returns the ids of milestones in all that depend on id.
func Dependents(id string, all []*model.Milestone) []string {
	var out []string
	for _, m := range all {
		for _, d := range m.MilestoneDependencies {
			if d == id {
				out = append(out, m.ID)
				break
			}
		}
	}
	return out
}

// CheckDelete returns a *model.DependencyViolationError when any milestone
// in all still depends on id.
func CheckDelete(id string, all []*model.Milestone) error {
	deps := Dependents(id, all)
	if len(deps) == 0 {
		return nil
	}
	unmet := make([]string, len(deps))
	for i, d := range deps {
		unmet[i] = fmt.Sprintf("milestone %s depends on it", d)
	}
	return &model.DependencyViolationError{Op: "delete", EntityID: id, Unmet: unmet}
}

// CheckGraph verifies that the combined milestone and task dependency graph
// is acyclic and that every reference resolves.
func CheckGraph(milestones []*model.Milestone, tasks []*model.Task) error {
	knownMilestones := make(map[string]bool, len(milestones))
	knownTasks := make(map[string]bool, len(tasks))
	order := make([]string, 0, len(milestones)+len(tasks))
	edges := make(map[string][]string, len(milestones)+len(tasks))
	for _, m := range milestones {
		knownMilestones[m.ID] = true
		order = append(order, m.ID)
	}
	for _, t := range tasks {
		knownTasks[t.ID] = true
		order = append(order, t.ID)
		edges[t.ID] = t.Dependencies.Targets()
	}
	for _, m := range milestones {
		for _, id := range m.MilestoneDependencies {
			if !knownMilestones[id] {
				return &model.NotFoundError{Kind: "milestone", ID: id}
			}
		}
		for _, id := range m.TaskDependencies {
			if !knownTasks[id] {
				return &model.NotFoundError{Kind: "task", ID: id}
			}
		}
		edges[m.ID] = append(append([]string(nil), m.MilestoneDependencies...), m.TaskDependencies...)
	}

	if cycle := cpm.DetectCycle(order, edges); cycle != nil {
		return &model.CyclicDependencyError{Cycle: cycle}
	}
	return nil
}
