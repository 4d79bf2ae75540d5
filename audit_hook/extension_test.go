package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/billing"
	audithook "github.com/xraph/billing/audit_hook"
	"github.com/xraph/billing/clock"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/store/memory"
	"github.com/xraph/billing/transaction"
)

type recorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *recorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) actions() map[string]*audithook.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*audithook.AuditEvent, len(r.events))
	for _, evt := range r.events {
		out[evt.Action] = evt
	}
	return out
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestExtensionRecordsEngineEvents(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	e := billing.New(memory.New(),
		billing.WithClock(clock.NewFixed(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))),
		billing.WithLogger(discard),
		billing.WithPlugin(audithook.New(rec, audithook.WithLogger(discard))),
	)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	p := &plan.Plan{
		Name: "Starter",
		Type: plan.TypePackage,
		Package: &plan.PackageTerms{
			Price:                   1000,
			Validity:                plan.ValidityMonthly,
			InterviewsPerQuota:      10,
			AdditionalInterviewRate: 120,
		},
	}
	if err := e.CreatePlan(ctx, p); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	c, err := e.CreateCustomer(ctx, billing.CreateCustomerInput{
		Name:  "Acme",
		Email: "ops@acme.io",
		Phone: "555-123-4567",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	a, err := e.AssignPlan(ctx, c.ID, billing.AssignPlanInput{PlanID: p.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	got := rec.actions()
	for _, action := range []string{
		audithook.ActionPlanCreated,
		audithook.ActionCustomerCreated,
		audithook.ActionPlanAssigned,
	} {
		if got[action] == nil {
			t.Errorf("expected %q to be recorded, got %v", action, got)
		}
	}

	assigned := got[audithook.ActionPlanAssigned]
	if assigned == nil {
		t.FailNow()
	}
	if assigned.ResourceID != a.ID.String() {
		t.Errorf("expected assignment resource %s, got %s", a.ID, assigned.ResourceID)
	}
	if assigned.Metadata["plan_id"] != p.ID.String() {
		t.Errorf("expected plan id in metadata, got %v", assigned.Metadata)
	}
	if assigned.Category != audithook.CategoryBilling || assigned.Outcome != audithook.OutcomeSuccess {
		t.Errorf("unexpected classification %+v", assigned)
	}
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()
	txn := &transaction.Transaction{
		ID:         id.NewTransactionID(),
		CustomerID: id.NewCustomerID(),
		Type:       transaction.TypeTopUp,
		Details:    transaction.Details{Amount: 500},
	}

	tests := []struct {
		name string
		opts []audithook.Option
		want int
	}{
		{"all enabled", nil, 2},
		{"only credits", []audithook.Option{audithook.WithEnabledActions(audithook.ActionBalanceCredited)}, 1},
		{"credits disabled", []audithook.Option{audithook.WithDisabledActions(audithook.ActionBalanceCredited)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			ext := audithook.New(rec, tt.opts...)

			_ = ext.OnBalanceCredited(ctx, txn)
			_ = ext.OnAccountReset(ctx, txn.CustomerID)

			if len(rec.events) != tt.want {
				t.Fatalf("expected %d events, got %d", tt.want, len(rec.events))
			}
		})
	}
}

func TestExtensionSweepOutcome(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	ext := audithook.New(rec)

	_ = ext.OnRenewalSweep(ctx, 3, 3, 0, time.Second)
	_ = ext.OnRenewalSweep(ctx, 3, 2, 1, time.Second)

	if rec.events[0].Outcome != audithook.OutcomeSuccess {
		t.Errorf("expected clean sweep to succeed, got %s", rec.events[0].Outcome)
	}
	if rec.events[1].Outcome != audithook.OutcomePartial || rec.events[1].Severity != audithook.SeverityError {
		t.Errorf("expected failed renewals to be partial, got %+v", rec.events[1])
	}
	if rec.events[1].Metadata["failed"] != 1 {
		t.Errorf("expected failure count in metadata, got %v", rec.events[1].Metadata)
	}
}

func TestExtensionSkipsWholeCharges(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	ext := audithook.New(rec)

	customerID := id.NewCustomerID()
	whole := []*transaction.Transaction{{ID: id.NewTransactionID(), CustomerID: customerID, Details: transaction.Details{Amount: 118}}}
	split := []*transaction.Transaction{
		{ID: id.NewTransactionID(), CustomerID: customerID, Details: transaction.Details{Amount: 50}},
		{ID: id.NewTransactionID(), CustomerID: customerID, Status: transaction.StatusUnbilled, Details: transaction.Details{Amount: 68}},
	}

	_ = ext.OnChargeApplied(ctx, whole)
	_ = ext.OnChargeApplied(ctx, split)

	if len(rec.events) != 1 {
		t.Fatalf("expected only the split charge to be audited, got %d", len(rec.events))
	}
	if rec.events[0].ResourceID != split[1].ID.String() || rec.events[0].Metadata["unbilled"] != int64(68) {
		t.Errorf("unexpected event %+v", rec.events[0])
	}
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), audithook.WithLogger(discard))

	if err := ext.OnAccountReset(context.Background(), id.NewCustomerID()); err != nil {
		t.Fatalf("expected recorder failures to be logged, got %v", err)
	}
}
