package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/planline/internal/store/memory"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func TestSchedulerStartStop(t *testing.T) {
	st := seedStore(t, "acme")
	dest := &mockDestination{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sched := NewScheduler(st, []Destination{dest}, 50*time.Millisecond, logger)
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	// Initial, at least one tick, and the final snapshot on Stop.
	if writes := dest.writes.Load(); writes < 3 {
		t.Fatalf("expected at least 3 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}

	lines := nonEmptyLines(string(data))
	// 1 header + project + 2 tasks + milestone = 5
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	dest := &mockDestination{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sched := NewScheduler(memory.New(), []Destination{dest}, time.Minute, logger)
	// Stop without Start should not panic or write.
	sched.Stop()
	if dest.writes.Load() != 0 {
		t.Fatalf("expected no writes, got %d", dest.writes.Load())
	}
}

func TestSchedulerSyncOnce_DestinationError(t *testing.T) {
	boom := errors.New("bucket gone")
	failing := &mockDestination{err: boom}
	healthy := &mockDestination{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sched := NewScheduler(memory.New(), []Destination{failing, healthy}, time.Minute, logger)
	err := sched.SyncOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("SyncOnce error = %v, want %v", err, boom)
	}
	if healthy.writes.Load() != 1 {
		t.Fatalf("healthy destination writes = %d, want 1", healthy.writes.Load())
	}
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	dest1 := &mockDestination{}
	dest2 := &mockDestination{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sched := NewScheduler(memory.New(), []Destination{dest1, dest2}, time.Second, logger)
	sched.Start()

	// Wait for the initial sync.
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if dest1.writes.Load() < 1 {
		t.Fatal("dest1 expected at least 1 write")
	}
	if dest2.writes.Load() < 1 {
		t.Fatal("dest2 expected at least 1 write")
	}
}

func TestS3Destination_Write(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	var puts atomic.Int64
	var gotPath, gotSum atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts.Add(1)
		}
		gotPath.Store(r.URL.Path)
		gotSum.Store(r.Header.Get("X-Amz-Meta-Sha256"))
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	dest, err := NewS3Destination(ctx, "backups", "planline/backup.jsonl", "us-east-1", srv.URL)
	if err != nil {
		t.Fatalf("NewS3Destination: %v", err)
	}

	first := []byte(`{"type":"header"}` + "\n")
	for range 2 {
		if err := dest.Write(ctx, first); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if n := puts.Load(); n != 1 {
		t.Errorf("PUTs after identical snapshots = %d, want 1", n)
	}
	// Custom endpoints use path-style addressing.
	if gotPath.Load() != "/backups/planline/backup.jsonl" {
		t.Errorf("path = %v, want /backups/planline/backup.jsonl", gotPath.Load())
	}
	sum := sha256.Sum256(first)
	if gotSum.Load() != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 metadata = %v", gotSum.Load())
	}

	if err := dest.Write(ctx, []byte(`{"type":"header","task_count":1}`+"\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := puts.Load(); n != 2 {
		t.Errorf("PUTs after a changed snapshot = %d, want 2", n)
	}
}

func TestS3Destination_Failure(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_MAX_ATTEMPTS", "1")

	var puts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		puts.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()
	dest, err := NewS3Destination(ctx, "backups", "planline/backup.jsonl", "us-east-1", srv.URL)
	if err != nil {
		t.Fatalf("NewS3Destination: %v", err)
	}
	data := []byte("{}\n")
	if err := dest.Write(ctx, data); err == nil {
		t.Fatal("expected error from a 403 response")
	}
	// A failed upload is retried on the next write even with the same data.
	before := puts.Load()
	_ = dest.Write(ctx, data)
	if puts.Load() == before {
		t.Error("failed snapshot was not uploaded again")
	}
}

func TestNewS3Destination_RequiresBucket(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), "", "k", "us-east-1", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
