package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRecomputer counts calls per project. When block is set, the first
// call waits until its context is cancelled.
type fakeRecomputer struct {
	mu        sync.Mutex
	calls     map[string]int
	cancelled int
	block     bool
	started   chan struct{}
	done      chan struct{}
}

func newFakeRecomputer(block bool) *fakeRecomputer {
	return &fakeRecomputer{
		calls:   make(map[string]int),
		block:   block,
		started: make(chan struct{}, 16),
		done:    make(chan struct{}, 16),
	}
}

func (f *fakeRecomputer) RecomputeCriticalPath(ctx context.Context, _, projectID string) (*cpm.Schedule, error) {
	f.mu.Lock()
	f.calls[projectID]++
	first := f.calls[projectID] == 1
	f.mu.Unlock()
	f.started <- struct{}{}

	if f.block && first {
		<-ctx.Done()
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
		f.done <- struct{}{}
		return nil, ctx.Err()
	}
	f.done <- struct{}{}
	return &cpm.Schedule{}, nil
}

func (f *fakeRecomputer) RecomputeProjectProgress(context.Context, string, string) (int, error) {
	return 0, nil
}

func (f *fakeRecomputer) callCount(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[projectID]
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestQueue_Coalesces(t *testing.T) {
	rec := newFakeRecomputer(false)
	q := NewQueue(rec, 2, discardLogger())

	// Not running yet: identical requests collapse into one pending job.
	for range 5 {
		if !q.Enqueue(testOrg, "prj-1") {
			t.Fatal("Enqueue rejected")
		}
	}
	q.Enqueue(testOrg, "prj-2")

	ctx, cancel := context.WithCancel(context.Background())
	doneRun := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(doneRun)
	}()

	waitSignal(t, rec.done, "first recompute")
	waitSignal(t, rec.done, "second recompute")
	cancel()
	<-doneRun

	if got := rec.callCount("prj-1"); got != 1 {
		t.Errorf("prj-1 recomputed %d times, want 1", got)
	}
	if got := rec.callCount("prj-2"); got != 1 {
		t.Errorf("prj-2 recomputed %d times, want 1", got)
	}
}

func TestQueue_SupersedesRunningJob(t *testing.T) {
	rec := newFakeRecomputer(true)
	q := NewQueue(rec, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneRun := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(doneRun)
	}()

	q.Enqueue(testOrg, "prj-1")
	waitSignal(t, rec.started, "first run to start")

	q.Enqueue(testOrg, "prj-1")
	waitSignal(t, rec.done, "first run to finish")
	waitSignal(t, rec.done, "second run to finish")
	cancel()
	<-doneRun

	if got := rec.callCount("prj-1"); got != 2 {
		t.Errorf("prj-1 recomputed %d times, want 2", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.cancelled != 1 {
		t.Errorf("cancelled runs = %d, want 1", rec.cancelled)
	}
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(newFakeRecomputer(false), 1, discardLogger())
	for i := range queueCapacity {
		if !q.Enqueue(testOrg, fmt.Sprintf("prj-%d", i)) {
			t.Fatalf("Enqueue %d rejected before capacity", i)
		}
	}
	if q.Enqueue(testOrg, "prj-overflow") {
		t.Fatal("Enqueue accepted past capacity")
	}
}

// chanSubscriber delivers payloads from a test channel.
type chanSubscriber struct {
	ch chan []byte
}

func (s *chanSubscriber) Subscribe(string) (<-chan []byte, func(), error) {
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestQueue_Consume(t *testing.T) {
	rec := newFakeRecomputer(false)
	q := NewQueue(rec, 1, discardLogger())
	sub := &chanSubscriber{ch: make(chan []byte, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	go func() { _ = q.Consume(ctx, sub) }()

	sub.ch <- []byte(`not json`)
	sub.ch <- []byte(`{"org_id":"acme"}`)
	payload, _ := json.Marshal(events.RecomputeRequested{OrgID: testOrg, ProjectID: "prj-9"})
	sub.ch <- payload

	waitSignal(t, rec.done, "recompute from subscription")
	if got := rec.callCount("prj-9"); got != 1 {
		t.Errorf("prj-9 recomputed %d times, want 1", got)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	m := f.milestone(t, p.ID, MilestoneInput{Name: "overdue", PlannedDate: date(2026, 2, 1)})

	sw := NewSweeper(f.svc, time.Hour, discardLogger())
	sw.Start()
	defer sw.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := f.store.GetMilestone(context.Background(), testOrg, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == model.MilestoneMissed {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status after initial sweep = %s, want missed", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
