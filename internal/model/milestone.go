package model

import "time"

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestonePlanned   MilestoneStatus = "planned"
	MilestoneAtRisk    MilestoneStatus = "at_risk"
	MilestoneAchieved  MilestoneStatus = "achieved"
	MilestoneMissed    MilestoneStatus = "missed"
	MilestoneCancelled MilestoneStatus = "cancelled"
)

// String returns the string representation of the status.
func (s MilestoneStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestonePlanned, MilestoneAtRisk, MilestoneAchieved, MilestoneMissed, MilestoneCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneAchieved || s == MilestoneCancelled
}

// ApprovalStatus is the approval sub-state of a milestone. It is independent
// of MilestoneStatus.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// String returns the string representation of the approval status.
func (s ApprovalStatus) String() string {
	return string(s)
}

// IsValid checks whether the approval status is a known value.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// Milestone is a dated checkpoint in a project, optionally acting as a gate.
type Milestone struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"` // free-form tag, e.g. "phase_end"

	PlannedDate  time.Time       `json:"planned_date"`
	BaselineDate *time.Time      `json:"baseline_date,omitempty"`
	ActualDate   *time.Time      `json:"actual_date,omitempty"`
	Status       MilestoneStatus `json:"status"`

	IsGate           bool           `json:"is_gate"`
	GateCategory     string         `json:"gate_category,omitempty"`
	ApprovalRequired bool           `json:"approval_required"`
	Approvers        []string       `json:"approvers,omitempty"`
	ApprovalStatus   ApprovalStatus `json:"approval_status"`
	ApprovedBy       string         `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`

	MilestoneDependencies []string `json:"milestone_dependencies,omitempty"`
	TaskDependencies      []string `json:"task_dependencies,omitempty"`

	ProgressWeight int `json:"progress_weight"`
	ReminderDays   int `json:"reminder_days"`

	AchievedBy string    `json:"achieved_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ClampWeight forces a progress weight into [0,100].
func ClampWeight(w int) int {
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}

// IsApprover reports whether actor is listed as an approver.
func (m *Milestone) IsApprover(actor string) bool {
	for _, a := range m.Approvers {
		if a == actor {
			return true
		}
	}
	return false
}
