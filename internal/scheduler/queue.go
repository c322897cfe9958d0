package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/events"
	"github.com/alfredjeanlab/planline/internal/metrics"
)

// queueCapacity bounds the number of distinct projects waiting for a
// background recompute.
const queueCapacity = 1024

// Recomputer is the part of Service the queue drives.
type Recomputer interface {
	RecomputeCriticalPath(ctx context.Context, orgID, projectID string) (*cpm.Schedule, error)
	RecomputeProjectProgress(ctx context.Context, orgID, projectID string) (int, error)
}

type projectKey struct {
	orgID, projectID string
}

type runningJob struct {
	seq    uint64
	cancel context.CancelFunc
}

// Queue runs background recomputes on a bounded worker pool. Requests for a
// project that is already waiting are coalesced; a request for a project
// that is being recomputed cancels the running job and queues a fresh one.
type Queue struct {
	svc     Recomputer
	workers int
	logger  *slog.Logger

	ch chan projectKey

	mu      sync.Mutex
	pending map[projectKey]bool
	running map[projectKey]runningJob
	seq     uint64
}

// NewQueue returns a queue that runs at most workers recomputes at a time.
func NewQueue(svc Recomputer, workers int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		svc:     svc,
		workers: workers,
		logger:  logger,
		ch:      make(chan projectKey, queueCapacity),
		pending: make(map[projectKey]bool),
		running: make(map[projectKey]runningJob),
	}
}

// Enqueue requests a recompute of the project. It reports false when the
// queue is full.
func (q *Queue) Enqueue(orgID, projectID string) bool {
	k := projectKey{orgID: orgID, projectID: projectID}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending[k] {
		metrics.IncrementQueued("coalesced")
		return true
	}
	select {
	case q.ch <- k:
	default:
		metrics.IncrementQueued("dropped")
		q.logger.Warn("recompute queue full, dropping request", "org_id", orgID, "project_id", projectID)
		return false
	}
	q.pending[k] = true
	if job, ok := q.running[k]; ok {
		job.cancel()
		metrics.IncrementQueued("superseded")
		return true
	}
	metrics.IncrementQueued("queued")
	return true
}

// Run processes requests until ctx is cancelled, then waits for running
// jobs to finish.
func (q *Queue) Run(ctx context.Context) {
	p := pool.New().WithMaxGoroutines(q.workers)
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case k := <-q.ch:
			p.Go(func() { q.process(ctx, k) })
		}
	}
}

// Consume feeds recompute requests received on sub into the queue until ctx
// is cancelled.
func (q *Queue) Consume(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicRecomputeRequested)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var req events.RecomputeRequested
			if err := json.Unmarshal(data, &req); err != nil || req.OrgID == "" || req.ProjectID == "" {
				q.logger.Warn("ignoring malformed recompute request", "payload", string(data), "error", err)
				continue
			}
			q.Enqueue(req.OrgID, req.ProjectID)
		}
	}
}

func (q *Queue) process(ctx context.Context, k projectKey) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	delete(q.pending, k)
	q.seq++
	seq := q.seq
	q.running[k] = runningJob{seq: seq, cancel: cancel}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		if job, ok := q.running[k]; ok && job.seq == seq {
			delete(q.running, k)
		}
		q.mu.Unlock()
	}()

	var catcher panics.Catcher
	catcher.Try(func() {
		q.recompute(runCtx, k)
	})
	if r := catcher.Recovered(); r != nil {
		q.logger.Error("recompute panicked", "org_id", k.orgID, "project_id", k.projectID, "error", r.AsError())
	}
}

func (q *Queue) recompute(ctx context.Context, k projectKey) {
	if _, err := q.svc.RecomputeCriticalPath(ctx, k.orgID, k.projectID); err != nil {
		if errors.Is(err, context.Canceled) {
			q.logger.Debug("recompute superseded", "org_id", k.orgID, "project_id", k.projectID)
			return
		}
		q.logger.Error("background recompute failed", "org_id", k.orgID, "project_id", k.projectID, "error", err)
		return
	}
	if _, err := q.svc.RecomputeProjectProgress(ctx, k.orgID, k.projectID); err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Error("background progress rollup failed", "org_id", k.orgID, "project_id", k.projectID, "error", err)
	}
}
