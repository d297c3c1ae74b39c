// Package jobs holds periodic background work of the server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"trendscribe/internal/metrics"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/store"
)

// StaleProjectMonitor reports projects left in generating for longer than a
// threshold. It never changes project records.
type StaleProjectMonitor struct {
	scheduler  gocron.Scheduler
	store      store.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewStaleProjectMonitor(st store.Store, m *metrics.Metrics, logger *slog.Logger, interval, staleAfter time.Duration) (*StaleProjectMonitor, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &StaleProjectMonitor{
		scheduler:  scheduler,
		store:      st,
		metrics:    m,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

// Start schedules the check and runs it once immediately.
func (s *StaleProjectMonitor) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			checkCtx, cancel := context.WithTimeout(ctx, s.interval)
			defer cancel()
			if _, err := s.Check(checkCtx); err != nil {
				s.logger.Error("stale project check failed", "err", err)
			}
		}),
		gocron.WithName("stale-projects"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule stale project check: %w", err)
	}
	s.scheduler.Start()
	return nil
}

// Check counts stale projects, updates the gauge and returns the count.
func (s *StaleProjectMonitor) Check(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.store.CountProjectsByStatusBefore(ctx, domain.StatusGenerating, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count stale projects: %w", err)
	}
	s.metrics.SetStaleProjects(n)
	if n > 0 {
		s.logger.Warn("projects stuck in generating", "count", n, "older_than", s.staleAfter.String())
	}
	return n, nil
}

// Shutdown stops the scheduler and waits for a running check.
func (s *StaleProjectMonitor) Shutdown() error {
	return s.scheduler.Shutdown()
}
