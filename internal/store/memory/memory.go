// Package memory provides an in-process implementation of store.Store used
// by the dev server and by tests. Each transaction deep-copies the whole
// dataset under one global mutex, so it is not a production store.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// Store is a mutex-guarded in-memory store. Every value handed in or out is
// copied, so callers can never mutate stored records behind the store's back.
type Store struct {
	mu sync.Mutex
	d  *data
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{d: newData()}
}

type data struct {
	projects   map[string]*model.Project
	tasks      map[string]*model.Task
	milestones map[string]*model.Milestone
	events     []*model.Event

	taskSeq     map[string]int64
	counters    map[counterKey]int
	seq         int64
	nextEventID int64

	now func() time.Time
}

func newData() *data {
	return &data{
		projects:   make(map[string]*model.Project),
		tasks:      make(map[string]*model.Task),
		milestones: make(map[string]*model.Milestone),
		taskSeq:    make(map[string]int64),
		counters:   make(map[counterKey]int),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// clone returns a deep copy of d, used as the working set of a transaction.
func (d *data) clone() *data {
	c := &data{
		projects:    make(map[string]*model.Project, len(d.projects)),
		tasks:       make(map[string]*model.Task, len(d.tasks)),
		milestones:  make(map[string]*model.Milestone, len(d.milestones)),
		events:      make([]*model.Event, len(d.events)),
		taskSeq:     make(map[string]int64, len(d.taskSeq)),
		counters:    maps.Clone(d.counters),
		seq:         d.seq,
		nextEventID: d.nextEventID,
		now:         d.now,
	}
	for id, p := range d.projects {
		c.projects[id] = copyProject(p)
	}
	for id, t := range d.tasks {
		c.tasks[id] = copyTask(t)
	}
	for id, m := range d.milestones {
		c.milestones[id] = copyMilestone(m)
	}
	for i, e := range d.events {
		c.events[i] = copyEvent(e)
	}
	for id, n := range d.taskSeq {
		c.taskSeq[id] = n
	}
	return c
}

// Projects

func (d *data) CreateProject(_ context.Context, p *model.Project) error {
	if _, ok := d.projects[p.ID]; ok {
		return fmt.Errorf("create project %s: %w", p.ID, store.ErrDuplicate)
	}
	d.projects[p.ID] = copyProject(p)
	return nil
}

func (d *data) GetProject(_ context.Context, orgID, id string) (*model.Project, error) {
	p, ok := d.projects[id]
	if !ok || p.OrgID != orgID {
		return nil, &model.NotFoundError{Kind: "project", ID: id}
	}
	return copyProject(p), nil
}

func (d *data) ListProjects(_ context.Context, orgID string) ([]*model.Project, error) {
	var out []*model.Project
	for _, p := range d.projects {
		if p.OrgID == orgID {
			out = append(out, copyProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) ListOrgIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range d.projects {
		if !seen[p.OrgID] {
			seen[p.OrgID] = true
			ids = append(ids, p.OrgID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *data) UpdateProjectProgress(_ context.Context, orgID, projectID string, progress int) error {
	p, ok := d.projects[projectID]
	if !ok || p.OrgID != orgID {
		return &model.NotFoundError{Kind: "project", ID: projectID}
	}
	p.Progress = progress
	p.UpdatedAt = d.now()
	return nil
}

func (d *data) SaveSchedule(_ context.Context, orgID, projectID string, expected int64, fields []model.ScheduleFields, completion float64) (int64, error) {
	p, ok := d.projects[projectID]
	if !ok || p.OrgID != orgID {
		return 0, &model.NotFoundError{Kind: "project", ID: projectID}
	}
	if p.ScheduleVersion != expected {
		return 0, &model.ConcurrentModificationError{ProjectID: projectID, Expected: expected}
	}
	now := d.now()
	for _, f := range fields {
		t, ok := d.tasks[f.TaskID]
		if !ok || t.OrgID != orgID {
			continue
		}
		f.Apply(t)
		t.UpdatedAt = now
	}
	p.ScheduleVersion++
	p.CompletionHours = completion
	p.UpdatedAt = now
	return p.ScheduleVersion, nil
}

type counterKey struct {
	projectID string
	scope     string
}

func (d *data) Sequence(_ context.Context, orgID, projectID, scope string) (int, error) {
	if p, ok := d.projects[projectID]; !ok || p.OrgID != orgID {
		return 0, &model.NotFoundError{Kind: "project", ID: projectID}
	}
	return d.counters[counterKey{projectID, scope}], nil
}

func (d *data) NextSequence(_ context.Context, orgID, projectID, scope string, floor int) (int, error) {
	if p, ok := d.projects[projectID]; !ok || p.OrgID != orgID {
		return 0, &model.NotFoundError{Kind: "project", ID: projectID}
	}
	k := counterKey{projectID, scope}
	n := max(d.counters[k], floor) + 1
	d.counters[k] = n
	return n, nil
}

// Tasks

func (d *data) CreateTask(_ context.Context, t *model.Task) error {
	if _, ok := d.tasks[t.ID]; ok {
		return fmt.Errorf("create task %s: %w", t.ID, store.ErrDuplicate)
	}
	for _, other := range d.tasks {
		if other.ProjectID != t.ProjectID {
			continue
		}
		if other.TaskNumber == t.TaskNumber {
			return fmt.Errorf("create task %s: %w (task number %s)", t.ID, store.ErrDuplicate, t.TaskNumber)
		}
		if other.WBSCode == t.WBSCode {
			return fmt.Errorf("create task %s: %w (wbs code %s)", t.ID, store.ErrDuplicate, t.WBSCode)
		}
	}
	d.seq++
	d.taskSeq[t.ID] = d.seq
	d.tasks[t.ID] = copyTask(t)
	return nil
}

func (d *data) GetTask(_ context.Context, orgID, id string) (*model.Task, error) {
	t, ok := d.tasks[id]
	if !ok || t.OrgID != orgID {
		return nil, &model.NotFoundError{Kind: "task", ID: id}
	}
	return copyTask(t), nil
}

func (d *data) ListTasks(_ context.Context, orgID, projectID string) ([]*model.Task, error) {
	var out []*model.Task
	for _, t := range d.tasks {
		if t.OrgID == orgID && t.ProjectID == projectID {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return d.taskSeq[out[i].ID] < d.taskSeq[out[j].ID]
	})
	return out, nil
}

// UpdateTask writes the caller-editable fields, matching the Postgres store:
// identity and computed CPM fields are left alone.
func (d *data) UpdateTask(_ context.Context, t *model.Task) error {
	cur, ok := d.tasks[t.ID]
	if !ok || cur.OrgID != t.OrgID {
		return &model.NotFoundError{Kind: "task", ID: t.ID}
	}
	in := copyTask(t)
	cur.Title = in.Title
	cur.Status = in.Status
	cur.PercentComplete = in.PercentComplete
	cur.EstimatedHours = in.EstimatedHours
	cur.PlannedStart = in.PlannedStart
	cur.PlannedEnd = in.PlannedEnd
	cur.Dependencies = in.Dependencies
	cur.UpdatedAt = d.now()
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

func (d *data) DeleteTask(_ context.Context, orgID, id string) error {
	t, ok := d.tasks[id]
	if !ok || t.OrgID != orgID {
		return &model.NotFoundError{Kind: "task", ID: id}
	}
	delete(d.tasks, id)
	delete(d.taskSeq, id)
	return nil
}

// Milestones

func (d *data) CreateMilestone(_ context.Context, m *model.Milestone) error {
	if _, ok := d.milestones[m.ID]; ok {
		return fmt.Errorf("create milestone %s: %w", m.ID, store.ErrDuplicate)
	}
	d.milestones[m.ID] = copyMilestone(m)
	return nil
}

func (d *data) GetMilestone(_ context.Context, orgID, id string) (*model.Milestone, error) {
	m, ok := d.milestones[id]
	if !ok || m.OrgID != orgID {
		return nil, &model.NotFoundError{Kind: "milestone", ID: id}
	}
	return copyMilestone(m), nil
}

func (d *data) ListMilestones(_ context.Context, orgID, projectID string) ([]*model.Milestone, error) {
	var out []*model.Milestone
	for _, m := range d.milestones {
		if m.OrgID == orgID && m.ProjectID == projectID {
			out = append(out, copyMilestone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlannedDate.Equal(out[j].PlannedDate) {
			return out[i].PlannedDate.Before(out[j].PlannedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) UpdateMilestone(_ context.Context, m *model.Milestone) error {
	cur, ok := d.milestones[m.ID]
	if !ok || cur.OrgID != m.OrgID {
		return &model.NotFoundError{Kind: "milestone", ID: m.ID}
	}
	next := copyMilestone(m)
	next.ProjectID = cur.ProjectID
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.UpdatedAt = d.now()
	d.milestones[m.ID] = next
	m.UpdatedAt = next.UpdatedAt
	return nil
}

func (d *data) DeleteMilestone(_ context.Context, orgID, id string) error {
	m, ok := d.milestones[id]
	if !ok || m.OrgID != orgID {
		return &model.NotFoundError{Kind: "milestone", ID: id}
	}
	delete(d.milestones, id)
	return nil
}

// Events

func (d *data) RecordEvent(_ context.Context, e *model.Event) error {
	d.nextEventID++
	e.ID = d.nextEventID
	e.CreatedAt = d.now()
	d.events = append(d.events, copyEvent(e))
	return nil
}

func (d *data) ListEvents(_ context.Context, orgID, projectID string) ([]*model.Event, error) {
	var out []*model.Event
	for _, e := range d.events {
		if e.OrgID == orgID && e.ProjectID == projectID {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

// Copy helpers.

func copyProject(p *model.Project) *model.Project {
	c := *p
	return &c
}

func copyTask(t *model.Task) *model.Task {
	c := *t
	if t.PercentComplete != nil {
		v := *t.PercentComplete
		c.PercentComplete = &v
	}
	if t.EstimatedHours != nil {
		v := *t.EstimatedHours
		c.EstimatedHours = &v
	}
	c.PlannedStart = copyTime(t.PlannedStart)
	c.PlannedEnd = copyTime(t.PlannedEnd)
	c.Dependencies = slices.Clone(t.Dependencies)
	return &c
}

func copyMilestone(m *model.Milestone) *model.Milestone {
	c := *m
	c.BaselineDate = copyTime(m.BaselineDate)
	c.ActualDate = copyTime(m.ActualDate)
	c.ApprovedAt = copyTime(m.ApprovedAt)
	c.Approvers = slices.Clone(m.Approvers)
	c.MilestoneDependencies = slices.Clone(m.MilestoneDependencies)
	c.TaskDependencies = slices.Clone(m.TaskDependencies)
	return &c
}

func copyEvent(e *model.Event) *model.Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
