package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
)

// Sweeper runs SweepAll periodically.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     *conc.WaitGroup
}

// NewSweeper creates a sweeper that runs at the given interval.
func NewSweeper(svc *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
		wg:       conc.NewWaitGroup(),
	}
}

// Start begins periodic sweeps. It runs an initial sweep immediately, then
// on each tick.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Go(func() { s.run(ctx) })
}

// Stop cancels the sweeper and waits for the current sweep (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	results, err := s.svc.SweepAll(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("milestone sweep failed", "err", err)
	}
	var evaluated, transitions int
	for _, r := range results {
		evaluated += r.Evaluated
		transitions += len(r.Transitions)
	}
	s.logger.Info("milestone sweep completed", "orgs", len(results), "evaluated", evaluated, "transitions", transitions)
}
