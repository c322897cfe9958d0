package memory

import (
	"context"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateProject(ctx, p)
}

func (s *Store) GetProject(ctx context.Context, orgID, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetProject(ctx, orgID, id)
}

func (s *Store) ListProjects(ctx context.Context, orgID string) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListProjects(ctx, orgID)
}

func (s *Store) ListOrgIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListOrgIDs(ctx)
}

func (s *Store) UpdateProjectProgress(ctx context.Context, orgID, projectID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateProjectProgress(ctx, orgID, projectID, progress)
}

func (s *Store) SaveSchedule(ctx context.Context, orgID, projectID string, expected int64, fields []model.ScheduleFields, completion float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.SaveSchedule(ctx, orgID, projectID, expected, fields, completion)
}

func (s *Store) Sequence(ctx context.Context, orgID, projectID, scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Sequence(ctx, orgID, projectID, scope)
}

func (s *Store) NextSequence(ctx context.Context, orgID, projectID, scope string, floor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.NextSequence(ctx, orgID, projectID, scope, floor)
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateTask(ctx, t)
}

func (s *Store) GetTask(ctx context.Context, orgID, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetTask(ctx, orgID, id)
}

func (s *Store) ListTasks(ctx context.Context, orgID, projectID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListTasks(ctx, orgID, projectID)
}

func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateTask(ctx, t)
}

func (s *Store) DeleteTask(ctx context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteTask(ctx, orgID, id)
}

func (s *Store) CreateMilestone(ctx context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.CreateMilestone(ctx, m)
}

func (s *Store) GetMilestone(ctx context.Context, orgID, id string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.GetMilestone(ctx, orgID, id)
}

func (s *Store) ListMilestones(ctx context.Context, orgID, projectID string) ([]*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListMilestones(ctx, orgID, projectID)
}

func (s *Store) UpdateMilestone(ctx context.Context, m *model.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.UpdateMilestone(ctx, m)
}

func (s *Store) DeleteMilestone(ctx context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.DeleteMilestone(ctx, orgID, id)
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.RecordEvent(ctx, e)
}

func (s *Store) ListEvents(ctx context.Context, orgID, projectID string) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.ListEvents(ctx, orgID, projectID)
}

// RunInTransaction runs fn against a private copy of the data while holding
// the store lock. The copy replaces the live data only if fn succeeds, so a
// failed transaction leaves no partial writes. The copy spans every
// organization, which is why this store is for development and tests only.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(&txStore{data: work}); err != nil {
		return err
	}
	s.d = work
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// txStore operates on a transaction's working copy without locking.
type txStore struct {
	*data
}

var _ store.Store = (*txStore)(nil)

// RunInTransaction reuses the enclosing transaction.
func (t *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

// Close is a no-op; the parent store owns the data.
func (t *txStore) Close() error { return nil }
