// Package scheduler orchestrates mutations of a project's plan: every change
// to tasks or milestones runs under the project lock, re-runs the critical
// path and progress rollup over the whole project, and writes the results
// back in a single transaction before events are emitted.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/lock"
	"github.com/alfredjeanlab/planline/internal/metrics"
	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/progress"
	"github.com/alfredjeanlab/planline/internal/store"
)

// Service implements the scheduling operations on top of a store.Store.
type Service struct {
	store     store.Store
	publisher events.Publisher
	locker    lock.Locker
	observers []func(*model.Event)
	now       func() time.Time

	defaultReminderDays int
	sweepWorkers        int
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the default in-process project lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventObserver registers fn to receive every event after it is
// recorded. fn must not block.
func WithEventObserver(fn func(*model.Event)) Option {
	return func(s *Service) { s.observers = append(s.observers, fn) }
}

// WithDefaultReminderDays sets the reminder window applied to milestones
// created without one.
func WithDefaultReminderDays(days int) Option {
	return func(s *Service) { s.defaultReminderDays = days }
}

// WithSweepWorkers bounds how many projects one sweep evaluates at once.
func WithSweepWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepWorkers = n
		}
	}
}

// New returns a Service backed by st. A nil publisher disables events.
func New(st store.Store, p events.Publisher, opts ...Option) *Service {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	s := &Service{
		store:               st,
		publisher:           p,
		locker:              lock.NewLocal(),
		now:                 func() time.Time { return time.Now().UTC() },
		defaultReminderDays: 7,
		sweepWorkers:        4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withProject runs fn under the project lock inside a store transaction.
// The project is loaded inside the transaction and handed to fn.
func (s *Service) withProject(ctx context.Context, orgID, projectID string, fn func(tx store.Store, p *model.Project) error) error {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, lock.ProjectKey(orgID, projectID))
	metrics.RecordLockWait(time.Since(start))
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.RunInTransaction(ctx, func(tx store.Store) error {
		p, err := tx.GetProject(ctx, orgID, projectID)
		if err != nil {
			return err
		}
		return fn(tx, p)
	})
}

// schedule runs the CPM engine over tasks and writes the result back,
// bumping the project's schedule version. The computed fields are also
// applied to tasks in place.
func (s *Service) schedule(ctx context.Context, tx store.Store, p *model.Project, tasks []*model.Task) (*cpm.Schedule, error) {
	start := time.Now()
	sched, err := cpm.Compute(cpm.NodesFromTasks(tasks))
	if err != nil {
		metrics.RecordRecompute("invalid", len(tasks), time.Since(start))
		return nil, err
	}

	version, err := tx.SaveSchedule(ctx, p.OrgID, p.ID, p.ScheduleVersion, sched.Fields(), sched.Completion)
	if err != nil {
		var cm *model.ConcurrentModificationError
		if errors.As(err, &cm) {
			metrics.RecordRecompute("conflict", len(tasks), time.Since(start))
		} else {
			metrics.RecordRecompute("error", len(tasks), time.Since(start))
		}
		return nil, err
	}
	metrics.RecordRecompute("ok", len(tasks), time.Since(start))

	p.ScheduleVersion = version
	p.CompletionHours = sched.Completion
	for _, f := range sched.Fields() {
		for _, t := range tasks {
			if t.ID == f.TaskID {
				f.Apply(t)
				break
			}
		}
	}
	return sched, nil
}

// rollup recomputes the project's progress from its current milestones and
// tasks and persists it when it changed.
func (s *Service) rollup(ctx context.Context, tx store.Store, p *model.Project) (bool, error) {
	milestones, err := tx.ListMilestones(ctx, p.OrgID, p.ID)
	if err != nil {
		return false, err
	}
	tasks, err := tx.ListTasks(ctx, p.OrgID, p.ID)
	if err != nil {
		return false, err
	}
	pct := progress.Project(milestones, tasks)
	if pct == p.Progress {
		return false, nil
	}
	if err := tx.UpdateProjectProgress(ctx, p.OrgID, p.ID, pct); err != nil {
		return false, err
	}
	p.Progress = pct
	return true, nil
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// Both operations are best-effort; failures are logged but do not block the caller.
func (s *Service) recordAndPublish(ctx context.Context, orgID, projectID, topic, entityID, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "entity_id", entityID, "error", err)
		return
	}
	record := &model.Event{
		OrgID:     orgID,
		Topic:     topic,
		ProjectID: projectID,
		EntityID:  entityID,
		Actor:     actor,
		Payload:   payload,
	}
	if err := s.store.RecordEvent(ctx, record); err != nil {
		slog.Warn("failed to record event", "topic", topic, "entity_id", entityID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "entity_id", entityID, "error", err)
	}
	for _, fn := range s.observers {
		fn(record)
	}
}

// ListEvents returns the events recorded for a project, oldest first.
func (s *Service) ListEvents(ctx context.Context, orgID, projectID string) ([]*model.Event, error) {
	if _, err := s.store.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, orgID, projectID)
}

func (s *Service) publishSchedule(ctx context.Context, p *model.Project, sched *cpm.Schedule, actor string) {
	s.recordAndPublish(ctx, p.OrgID, p.ID, events.TopicScheduleRecomputed, p.ID, actor, events.ScheduleRecomputed{
		ProjectID:    p.ID,
		Completion:   sched.Completion,
		CriticalPath: sched.CriticalPath(),
		Version:      p.ScheduleVersion,
	})
}

func (s *Service) publishProgress(ctx context.Context, p *model.Project, actor string) {
	s.recordAndPublish(ctx, p.OrgID, p.ID, events.TopicProjectProgress, p.ID, actor, events.ProjectProgress{
		ProjectID: p.ID,
		Progress:  p.Progress,
	})
}
