package spacetraveling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Revalidator periodically refreshes the initial page in the background, so
// visitors rarely pay for a content API round trip.
type Revalidator struct {
	scheduler gocron.Scheduler
	cache     *PageCache
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRevalidator schedules cache.Refresh every interval.
func NewRevalidator(cache *PageCache, interval, timeout time.Duration, logger *slog.Logger) (*Revalidator, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("spacetraveling: create scheduler: %w", err)
	}
	r := &Revalidator{
		scheduler: s,
		cache:     cache,
		timeout:   timeout,
		logger:    logger,
	}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.run),
		gocron.WithName("revalidate-initial-page"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("spacetraveling: schedule revalidation: %w", err)
	}
	return r, nil
}

func (r *Revalidator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := time.Now()
	if err := r.cache.Refresh(ctx); err != nil {
		r.logger.Warn("revalidation failed", "error", err)
		return
	}
	r.logger.Debug("initial page revalidated", "took", time.Since(start))
}

// Start begins the schedule.
func (r *Revalidator) Start() {
	r.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running refresh.
func (r *Revalidator) Stop() error {
	return r.scheduler.Shutdown()
}
