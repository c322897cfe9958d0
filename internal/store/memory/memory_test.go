package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

func seedProject(t *testing.T, s *Store) *model.Project {
	t.Helper()
	p := &model.Project{
		ID: "prj-1", OrgID: "acme", Name: "Bridge",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func newTask(id, number, wbs string) *model.Task {
	return &model.Task{ID: id, OrgID: "acme", ProjectID: "prj-1", TaskNumber: number, WBSCode: wbs, Title: id, Status: model.TaskTodo}
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	if err := s.CreateProject(ctx, &model.Project{ID: "prj-2", OrgID: "globex", Name: "Dam"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetProject(ctx, "globex", "prj-1"); err == nil {
		t.Fatal("project must not be visible to another org")
	}
	var nf *model.NotFoundError
	if _, err := s.GetProject(ctx, "acme", "missing"); !errors.As(err, &nf) || nf.Kind != "project" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	orgs, err := s.ListOrgIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orgs) != 2 || orgs[0] != "acme" || orgs[1] != "globex" {
		t.Fatalf("ListOrgIDs = %v", orgs)
	}

	if err := s.CreateProject(ctx, &model.Project{ID: "prj-1", OrgID: "acme"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := s.UpdateProjectProgress(ctx, "acme", "prj-1", 42); err != nil {
		t.Fatal(err)
	}
	p, _ := s.GetProject(ctx, "acme", "prj-1")
	if p.Progress != 42 {
		t.Errorf("Progress = %d, want 42", p.Progress)
	}
}

func TestCreateTask_Duplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	if err := s.CreateTask(ctx, newTask("tsk-1", "TSK-001", "1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		task *model.Task
	}{
		{"same id", newTask("tsk-1", "TSK-009", "9")},
		{"same number", newTask("tsk-2", "TSK-001", "2")},
		{"same wbs code", newTask("tsk-3", "TSK-003", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CreateTask(ctx, tt.task); !errors.Is(err, store.ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}
		})
	}

	other := newTask("tsk-4", "TSK-001", "1")
	other.ProjectID = "prj-other"
	if err := s.CreateTask(ctx, other); err != nil {
		t.Fatalf("codes are unique per project only: %v", err)
	}
}

func TestListTasks_CreationOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	for _, id := range []string{"tsk-c", "tsk-a", "tsk-b"} {
		if err := s.CreateTask(ctx, newTask(id, "TSK-"+id, id)); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := s.ListTasks(ctx, "acme", "prj-1")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, task := range tasks {
		got = append(got, task.ID)
	}
	want := []string{"tsk-c", "tsk-a", "tsk-b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListTasks order = %v, want %v", got, want)
		}
	}
}

func TestTasks_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	task := newTask("tsk-1", "TSK-001", "1")
	task.Dependencies = model.EdgesFromIDs([]string{"tsk-0"})
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	task.Title = "mutated"
	task.Dependencies[0].Target = "mutated"

	got, _ := s.GetTask(ctx, "acme", "tsk-1")
	if got.Title != "tsk-1" || got.Dependencies[0].Target != "tsk-0" {
		t.Fatalf("stored task was mutated through caller pointer: %+v", got)
	}

	got.Dependencies[0].Target = "again"
	again, _ := s.GetTask(ctx, "acme", "tsk-1")
	if again.Dependencies[0].Target != "tsk-0" {
		t.Fatal("stored task was mutated through returned pointer")
	}
}

func TestUpdateTask_LeavesComputedFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)
	if err := s.CreateTask(ctx, newTask("tsk-1", "TSK-001", "1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveSchedule(ctx, "acme", "prj-1", 0, []model.ScheduleFields{{TaskID: "tsk-1", EarlyFinish: 5, LateFinish: 5, IsCriticalPath: true}}, 5); err != nil {
		t.Fatal(err)
	}

	upd := newTask("tsk-1", "TSK-999", "9")
	upd.Status = model.TaskInProgress
	if err := s.UpdateTask(ctx, upd); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetTask(ctx, "acme", "tsk-1")
	if got.Status != model.TaskInProgress {
		t.Errorf("Status = %s", got.Status)
	}
	if got.TaskNumber != "TSK-001" || got.WBSCode != "1" {
		t.Errorf("identity changed: %s %s", got.TaskNumber, got.WBSCode)
	}
	if got.EarlyFinish != 5 || !got.IsCriticalPath {
		t.Errorf("computed fields lost: %+v", got)
	}

	var nf *model.NotFoundError
	if err := s.UpdateTask(ctx, newTask("ghost", "", "")); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSaveSchedule_Version(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	v, err := s.SaveSchedule(ctx, "acme", "prj-1", 0, nil, 9)
	if err != nil || v != 1 {
		t.Fatalf("SaveSchedule = %d, %v", v, err)
	}

	_, err = s.SaveSchedule(ctx, "acme", "prj-1", 0, nil, 9)
	var cm *model.ConcurrentModificationError
	if !errors.As(err, &cm) || cm.Expected != 0 {
		t.Fatalf("expected ConcurrentModificationError, got %v", err)
	}

	p, _ := s.GetProject(ctx, "acme", "prj-1")
	if p.ScheduleVersion != 1 || p.CompletionHours != 9 {
		t.Errorf("project = %+v", p)
	}
}

func TestListMilestones_PlannedOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)

	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	for _, m := range []*model.Milestone{
		{ID: "ms-late", OrgID: "acme", ProjectID: "prj-1", PlannedDate: day(20)},
		{ID: "ms-early", OrgID: "acme", ProjectID: "prj-1", PlannedDate: day(5)},
	} {
		if err := s.CreateMilestone(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	ms, err := s.ListMilestones(ctx, "acme", "prj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].ID != "ms-early" {
		t.Fatalf("ListMilestones order wrong: %v", ms)
	}

	if err := s.DeleteMilestone(ctx, "acme", "ms-early"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMilestone(ctx, "acme", "ms-early"); err == nil {
		t.Fatal("milestone still present after delete")
	}
}

func TestRunInTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedProject(t, s)
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateTask(ctx, newTask("tsk-1", "TSK-001", "1")); err != nil {
			return err
		}
		if _, err := tx.GetTask(ctx, "acme", "tsk-1"); err != nil {
			t.Errorf("write not visible inside transaction: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetTask(ctx, "acme", "tsk-1"); err == nil {
		t.Fatal("rolled-back write leaked")
	}

	err = s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.CreateTask(ctx, newTask("tsk-2", "TSK-002", "2"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTask(ctx, "acme", "tsk-2"); err != nil {
		t.Fatalf("committed write missing: %v", err)
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, topic := range []string{"a", "b"} {
		e := &model.Event{OrgID: "acme", ProjectID: "prj-1", Topic: topic}
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.ID == 0 || e.CreatedAt.IsZero() {
			t.Fatalf("event not stamped: %+v", e)
		}
	}
	evts, _ := s.ListEvents(ctx, "acme", "prj-1")
	if len(evts) != 2 || evts[0].Topic != "a" || evts[1].ID != 2 {
		t.Fatalf("ListEvents = %+v", evts)
	}
}

func TestSequence(t *testing.T) {
	s := New()
	seedProject(t, s)
	ctx := context.Background()

	if n, err := s.Sequence(ctx, "acme", "prj-1", "task"); err != nil || n != 0 {
		t.Fatalf("fresh counter = %d, %v", n, err)
	}
	for _, tc := range []struct {
		floor, want int
	}{
		{0, 1},
		{0, 2},
		{5, 6}, // floor above the counter wins
		{3, 7}, // floor below is ignored
	} {
		if n, err := s.NextSequence(ctx, "acme", "prj-1", "task", tc.floor); err != nil || n != tc.want {
			t.Fatalf("NextSequence(floor %d) = %d, %v; want %d", tc.floor, n, err, tc.want)
		}
	}
	if n, _ := s.Sequence(ctx, "acme", "prj-1", "wbs:"); n != 0 {
		t.Errorf("scopes are independent, wbs: = %d", n)
	}

	// A failed transaction gives its reservation back.
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.NextSequence(ctx, "acme", "prj-1", "task", 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction = %v", err)
	}
	if n, _ := s.Sequence(ctx, "acme", "prj-1", "task"); n != 7 {
		t.Errorf("counter after rollback = %d, want 7", n)
	}

	var nf *model.NotFoundError
	if _, err := s.NextSequence(ctx, "globex", "prj-1", "task", 0); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError across orgs, got %v", err)
	}
}
