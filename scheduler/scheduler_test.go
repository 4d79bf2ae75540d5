package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/scheduler"
)

type fakeRenewer struct {
	mu      sync.Mutex
	due     []id.ID
	failing map[string]bool
	renewed []string
	from    time.Time
	to      time.Time
	sweeps  int
	listErr error
}

func (f *fakeRenewer) DueRenewals(_ context.Context, from, to time.Time) ([]id.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	return f.due, f.listErr
}

func (f *fakeRenewer) RenewPlan(_ context.Context, customerID id.ID) (*customer.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[customerID.String()] {
		return nil, errors.New("renewal date is in the future")
	}
	f.renewed = append(f.renewed, customerID.String())
	return &customer.Assignment{}, nil
}

func (f *fakeRenewer) RecordSweep(context.Context, int, int, int, time.Duration) {
	f.mu.Lock()
	f.sweeps++
	f.mu.Unlock()
}

func quiet() scheduler.Option {
	return scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	a, b, c := id.NewCustomerID(), id.NewCustomerID(), id.NewCustomerID()
	r := &fakeRenewer{
		due:     []id.ID{a, b, c},
		failing: map[string]bool{b.String(): true},
	}
	s := scheduler.New(r, quiet())

	now := time.Date(2024, 2, 10, 15, 30, 0, 0, time.UTC)
	report, err := s.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	if report.Due != 3 || report.Renewed != 2 || len(report.Failed) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if _, ok := report.Failed[b.String()]; !ok {
		t.Errorf("expected %s to be reported as failed", b)
	}
	if len(r.renewed) != 2 || r.renewed[1] != c.String() {
		t.Errorf("sweep did not continue past the failure: %v", r.renewed)
	}

	wantFrom := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	if !r.from.Equal(wantFrom) || !r.to.Equal(wantFrom.Add(24*time.Hour)) {
		t.Errorf("unexpected window [%s, %s)", r.from, r.to)
	}
	if r.sweeps != 1 {
		t.Errorf("expected the sweep to be recorded once, got %d", r.sweeps)
	}
}

func TestRunOnceListFailure(t *testing.T) {
	r := &fakeRenewer{listErr: errors.New("store down")}
	s := scheduler.New(r, quiet())

	if _, err := s.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatal("expected an error when the due list cannot be read")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := scheduler.New(&fakeRenewer{}, quiet(), scheduler.WithSchedule("not a cron spec"))
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected an invalid schedule to be rejected")
	}
}

func TestStartStop(t *testing.T) {
	s := scheduler.New(&fakeRenewer{}, quiet(), scheduler.WithSchedule("@every 1h"))
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
