package model

import "time"

// Project is the aggregate that owns tasks and milestones. The scheduler
// only writes Progress, CompletionHours and ScheduleVersion.
type Project struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	Progress        int     `json:"progress"`
	CompletionHours float64 `json:"completion_hours"`
	ScheduleVersion int64   `json:"schedule_version"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether t falls inside the project window (inclusive).
func (p *Project) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}
