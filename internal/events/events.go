package events

import (
	"context"

	"github.com/alfredjeanlab/planline/internal/model"
)

// Event topic constants
const (
	TopicTaskCreated = "planline.task.created"
	TopicTaskUpdated = "planline.task.updated"
	TopicTaskDeleted = "planline.task.deleted"

	TopicScheduleRecomputed = "planline.schedule.recomputed"
	TopicProjectProgress    = "planline.project.progress"

	TopicMilestoneCreated   = "planline.milestone.created"
	TopicMilestoneUpdated   = "planline.milestone.updated"
	TopicMilestoneAchieved  = "planline.milestone.achieved"
	TopicMilestoneAtRisk    = "planline.milestone.at_risk"
	TopicMilestoneMissed    = "planline.milestone.missed"
	TopicMilestoneCancelled = "planline.milestone.cancelled"
	TopicMilestoneApproval  = "planline.milestone.approval"
	TopicMilestoneDeleted   = "planline.milestone.deleted"

	// Inbound: other services ask for a background recompute.
	TopicRecomputeRequested = "planline.recompute.requested"
)

// Event types

type TaskCreated struct {
	Task *model.Task `json:"task"`
}

type TaskUpdated struct {
	Task    *model.Task    `json:"task"`
	Changes map[string]any `json:"changes"` // field name -> new value
}

type TaskDeleted struct {
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id"`
}

type ScheduleRecomputed struct {
	ProjectID    string   `json:"project_id"`
	Completion   float64  `json:"completion"`
	CriticalPath []string `json:"critical_path"`
	Version      int64    `json:"schedule_version"`
}

type ProjectProgress struct {
	ProjectID string `json:"project_id"`
	Progress  int    `json:"progress"`
}

type MilestoneCreated struct {
	Milestone *model.Milestone `json:"milestone"`
}

type MilestoneUpdated struct {
	Milestone *model.Milestone `json:"milestone"`
	Changes   map[string]any   `json:"changes"`
}

type MilestoneAchieved struct {
	Milestone  *model.Milestone `json:"milestone"`
	AchievedBy string           `json:"achieved_by,omitempty"`
}

// MilestoneStatusChanged is published on the at_risk and missed topics by
// the sweep.
type MilestoneStatusChanged struct {
	Milestone *model.Milestone      `json:"milestone"`
	From      model.MilestoneStatus `json:"from"`
}

type MilestoneCancelled struct {
	Milestone *model.Milestone `json:"milestone"`
}

type MilestoneApproval struct {
	Milestone *model.Milestone     `json:"milestone"`
	Decision  model.ApprovalStatus `json:"decision"`
	Actor     string               `json:"actor"`
}

type MilestoneDeleted struct {
	MilestoneID string `json:"milestone_id"`
	ProjectID   string `json:"project_id"`
}

type RecomputeRequested struct {
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives raw JSON payloads from the bus. The cancel function
// returned by Subscribe unsubscribes and closes the channel.
type Subscriber interface {
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher discards every event. serve uses it when PLANLINE_NATS_URL
// is unset.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
