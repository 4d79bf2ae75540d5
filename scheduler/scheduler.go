// Package scheduler runs the daily renewal sweep.
//
// A sweep lists every customer whose active assignment renews on the given
// day and renews each one in its own unit of work. One customer's failure is
// logged and recorded; it never stops the sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/billing/clock"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
)

// DefaultSchedule runs the sweep at 00:05 UTC.
const DefaultSchedule = "5 0 * * *"

// Renewer is the part of the billing engine a sweep drives.
type Renewer interface {
	DueRenewals(ctx context.Context, from, to time.Time) ([]id.ID, error)
	RenewPlan(ctx context.Context, customerID id.ID) (*customer.Assignment, error)
	RecordSweep(ctx context.Context, due, renewed, failed int, elapsed time.Duration)
}

// Report summarizes one sweep.
type Report struct {
	Day      time.Time
	Due      int
	Renewed  int
	Failed   map[string]error
	Duration time.Duration
}

// Sweeper renews due customers, on demand or on a cron schedule.
type Sweeper struct {
	renewer  Renewer
	clock    clock.Clock
	logger   *slog.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithClock sets the clock that decides which day a scheduled sweep covers.
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

// WithSchedule sets the cron spec of Start.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// New creates a Sweeper for r.
func New(r Renewer, opts ...Option) *Sweeper {
	s := &Sweeper{
		renewer:  r,
		clock:    clock.System{},
		logger:   slog.Default(),
		schedule: DefaultSchedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce renews every customer due on the day of now. It fails only when
// the due list cannot be read.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (*Report, error) {
	began := time.Now()
	from := clock.StartOfDay(now)
	to := from.Add(24 * time.Hour)

	due, err := s.renewer.DueRenewals(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list due renewals: %w", err)
	}

	report := &Report{Day: from, Due: len(due), Failed: make(map[string]error)}
	for _, customerID := range due {
		if ctx.Err() != nil {
			report.Failed[customerID.String()] = ctx.Err()
			continue
		}
		if _, err := s.renewer.RenewPlan(ctx, customerID); err != nil {
			report.Failed[customerID.String()] = err
			s.logger.Error("renewal failed",
				"customer_id", customerID.String(),
				"error", err,
			)
			continue
		}
		report.Renewed++
	}
	report.Duration = time.Since(began)

	s.renewer.RecordSweep(ctx, report.Due, report.Renewed, len(report.Failed), report.Duration)
	s.logger.Info("renewal sweep finished",
		"day", from.Format(time.DateOnly),
		"due", report.Due,
		"renewed", report.Renewed,
		"failed", len(report.Failed),
		"duration", report.Duration,
	)
	return report, nil
}

// Start schedules RunOnce on the configured cron spec, evaluated in UTC.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx, s.clock.Now()); err != nil {
			s.logger.Error("renewal sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("renewal scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
