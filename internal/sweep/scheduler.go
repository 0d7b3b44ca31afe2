package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/birthday-reminder/internal/metrics"
)

// DefaultInterval is how often the Scheduler sweeps when no interval is set.
const DefaultInterval = time.Minute

// Scheduler runs a Sweeper periodically.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the time zone "today" is computed in. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewScheduler creates a Scheduler. A non-positive interval means DefaultInterval.
func NewScheduler(sweeper *Sweeper, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		location: time.Local,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// A failed sweep is logged and the loop carries on. Run returns nil when ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("sweep scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep for the current day, then prunes log
// entries for earlier days. A failed prune is logged and retried next time.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	metrics.SweepRunsTotal.Inc()

	today := s.now().In(s.location)
	report, err := s.sweeper.Run(ctx, today)
	metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())

	if ctx.Err() == nil {
		if _, perr := s.sweeper.Prune(ctx, today); perr != nil {
			s.logger.Error("prune failed", slog.String("error", perr.Error()))
		}
	}

	if err != nil && ctx.Err() == nil {
		metrics.SweepFailuresTotal.Inc()
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	}
	return report, err
}
