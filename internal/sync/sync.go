// Package sync periodically exports every plan in the store as JSONL and
// ships the snapshot to one or more backup destinations.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/alfredjeanlab/planline/internal/metrics"
	"github.com/alfredjeanlab/planline/internal/store"
)

// Destination receives a full JSONL snapshot.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports a snapshot on a fixed interval, once at Start and once
// more at Stop.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Go(func() { s.loop(ctx) })
}

// Stop waits for an in-flight sync and then writes a final snapshot. It is
// a no-op if Start was never called.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logIfFailed(s.SyncOnce(ctx), "final sync failed")
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.logIfFailed(s.SyncOnce(ctx), "sync failed")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) logIfFailed(err error, msg string) {
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(msg, "err", err)
	}
}

// SyncOnce exports one snapshot and writes it to all destinations in
// parallel. Every destination is attempted; failures are joined.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	start := time.Now()
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()
	metrics.SnapshotBytes.Set(float64(len(data)))

	p := pool.New().WithErrors().WithContext(ctx)
	for i, dest := range s.destinations {
		p.Go(func(ctx context.Context) error {
			err := dest.Write(ctx, data)
			metrics.RecordSnapshotWrite(fmt.Sprint(i), err)
			if err != nil {
				return fmt.Errorf("destination %d: %w", i, err)
			}
			return nil
		})
	}
	err := p.Wait()

	s.logger.Info("sync completed",
		"destinations", len(s.destinations),
		"bytes", len(data),
		"duration", time.Since(start),
		"failed", err != nil,
	)
	return err
}
