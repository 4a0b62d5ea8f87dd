package worker

import (
	"context"
	"sync"
	"time"

	"scheduler_server/pkg/logger"
)

// PendingPurger removes pending bookings created before cutoff.
// out.CalendarStore implements it.
type PendingPurger interface {
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingSweeper removes pending records left behind when a booking was
// interrupted between the local insert and the remote confirmation.
type PendingSweeper struct {
	store    PendingPurger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPendingSweeper(store PendingPurger, ttl, interval time.Duration) *PendingSweeper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PendingSweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *PendingSweeper) Start() {
	logger.Info("[PendingSweeper] Starting with interval %v, ttl %v", s.interval, s.ttl)
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *PendingSweeper) Stop() {
	logger.Info("[PendingSweeper] Stopping...")
	s.cancel()
	s.wg.Wait()
}

func (s *PendingSweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[PendingSweeper] Stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
			_, _ = s.SweepOnce(ctx)
			cancel()
		}
	}
}

// SweepOnce deletes pending records older than the ttl.
func (s *PendingSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl)
	n, err := s.store.DeletePendingBefore(ctx, cutoff)
	if err != nil {
		logger.WithError(err).Error("[PendingSweeper] Failed to sweep pending bookings")
		return 0, err
	}
	if n > 0 {
		logger.WithField("removed", n).Info("[PendingSweeper] Removed %d stale pending bookings", n)
	}
	return n, nil
}

// SetClock replaces the time source (for testing).
func (s *PendingSweeper) SetClock(now func() time.Time) {
	s.now = now
}
