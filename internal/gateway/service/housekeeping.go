package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/store"
)

// HousekeepingService periodically removes abandoned access requests
// so the ledger does not grow without bound. The hot path enforces
// expiry itself and never depends on this sweep.
type HousekeepingService struct {
	Ledger    store.Ledger
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHousekeepingService(ledger store.Ledger, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = time.Hour
	}

	return &HousekeepingService{
		Ledger:    ledger,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background sweep. Non-blocking; call Stop to shut
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval, "retention", s.Retention)
}

// Stop blocks until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.Ledger.DeleteExpiredBefore(ctx, time.Now().Add(-s.Retention))
	if err != nil {
		s.Logger.Error("housekeeping sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.Logger.Info("housekeeping removed stale access requests", "count", removed)
	}
}
