package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateProject checks a Project for constraint violations.
func ValidateProject(p *Project) error {
	var ve ValidationError

	if strings.TrimSpace(p.Name) == "" {
		ve.add("name", "is required")
	}
	if p.StartDate.IsZero() {
		ve.add("start_date", "is required")
	}
	if p.EndDate.IsZero() {
		ve.add("end_date", "is required")
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		ve.add("end_date", "must not be before start_date")
	}

	return ve.orNil()
}

// ValidateTask checks a Task for constraint violations.
func ValidateTask(t *Task) error {
	var ve ValidationError

	title := strings.TrimSpace(t.Title)
	if title == "" {
		ve.add("title", "is required")
	} else if len([]rune(title)) > 500 {
		ve.add("title", "must be 500 characters or fewer")
	}

	if !t.Status.IsValid() {
		ve.add("status", fmt.Sprintf("invalid value %q", t.Status))
	}

	if t.PercentComplete != nil && (*t.PercentComplete < 0 || *t.PercentComplete > 100) {
		ve.add("percent_complete", fmt.Sprintf("must be between 0 and 100, got %d", *t.PercentComplete))
	}

	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		ve.add("estimated_hours", fmt.Sprintf("must not be negative, got %g", *t.EstimatedHours))
	}

	if t.PlannedStart != nil && t.PlannedEnd != nil && t.PlannedEnd.Before(*t.PlannedStart) {
		ve.add("planned_end", "must not be before planned_start")
	}

	seen := make(map[string]bool, len(t.Dependencies))
	for _, d := range t.Dependencies {
		switch {
		case d.Target == "":
			ve.add("dependencies", "target is required")
		case d.Target == t.ID && t.ID != "":
			ve.add("dependencies", "a task cannot depend on itself")
		case seen[d.Target]:
			ve.add("dependencies", fmt.Sprintf("duplicate dependency on %s", d.Target))
		}
		if !d.Relation.IsValid() {
			ve.add("dependencies", fmt.Sprintf("unknown relation %q", d.Relation))
		}
		seen[d.Target] = true
	}

	return ve.orNil()
}

// ValidateMilestone checks a Milestone against its owning project. The
// progress weight is clamped in place before validation.
func ValidateMilestone(m *Milestone, p *Project) error {
	var ve ValidationError

	m.ProgressWeight = ClampWeight(m.ProgressWeight)

	if strings.TrimSpace(m.Name) == "" {
		ve.add("name", "is required")
	}
	if !m.Status.IsValid() {
		ve.add("status", fmt.Sprintf("invalid value %q", m.Status))
	}
	if !m.ApprovalStatus.IsValid() {
		ve.add("approval_status", fmt.Sprintf("invalid value %q", m.ApprovalStatus))
	}
	if m.ReminderDays < 0 {
		ve.add("reminder_days", "must not be negative")
	}

	if m.PlannedDate.IsZero() {
		ve.add("planned_date", "is required")
	} else if p != nil && !p.Contains(m.PlannedDate) {
		ve.add("planned_date", fmt.Sprintf("must fall within the project window %s..%s",
			p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02")))
	}

	for _, id := range m.MilestoneDependencies {
		if id == m.ID && id != "" {
			ve.add("milestone_dependencies", "a milestone cannot depend on itself")
		}
	}

	return ve.orNil()
}
