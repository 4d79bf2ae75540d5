// Package plugin provides an extensible plugin system for the billing engine.
// Plugins hook into lifecycle events to extend functionality. Every event is
// delivered after the unit of work that produced it has committed, so a
// plugin never observes a change that was later rolled back.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *billing.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Customer and catalog hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated is called when a billing account is opened.
type OnCustomerCreated interface {
	Plugin
	OnCustomerCreated(ctx context.Context, c *customer.Customer) error
}

// OnAccountReset is called after a customer's ledger and plan history were
// wiped.
type OnAccountReset interface {
	Plugin
	OnAccountReset(ctx context.Context, customerID id.ID) error
}

// OnPlanCreated is called when a plan is added to the catalog.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanDeactivated is called when a plan is withdrawn from the catalog.
type OnPlanDeactivated interface {
	Plugin
	OnPlanDeactivated(ctx context.Context, p *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanAssigned is called when a customer receives its first active plan.
type OnPlanAssigned interface {
	Plugin
	OnPlanAssigned(ctx context.Context, customerID id.ID, a *customer.Assignment) error
}

// OnPlanRenewed is called after a renewal, including renewals that executed
// a pending plan change.
type OnPlanRenewed interface {
	Plugin
	OnPlanRenewed(ctx context.Context, customerID id.ID, a *customer.Assignment) error
}

// OnPlanChangeRequested is called when a plan change is scheduled.
type OnPlanChangeRequested interface {
	Plugin
	OnPlanChangeRequested(ctx context.Context, customerID id.ID, req *customer.ChangeRequest) error
}

// OnPlanChanged is called when a pending plan change takes effect.
type OnPlanChanged interface {
	Plugin
	OnPlanChanged(ctx context.Context, customerID id.ID, from plan.Snapshot, to *customer.Assignment) error
}

// OnRenewalSweep is called when a scheduled renewal sweep finishes.
type OnRenewalSweep interface {
	Plugin
	OnRenewalSweep(ctx context.Context, due, renewed, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Usage and ledger hooks
// ──────────────────────────────────────────────────

// OnUsageConsumed is called for every metered interview. charged reports
// whether the interview produced a ledger charge.
type OnUsageConsumed interface {
	Plugin
	OnUsageConsumed(ctx context.Context, customerID id.ID, a *customer.Assignment, charged bool) error
}

// OnChargeApplied is called with the one or two debit entries written for
// a single charge.
type OnChargeApplied interface {
	Plugin
	OnChargeApplied(ctx context.Context, txns []*transaction.Transaction) error
}

// OnBalanceCredited is called for every credit entry.
type OnBalanceCredited interface {
	Plugin
	OnBalanceCredited(ctx context.Context, t *transaction.Transaction) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated is called when unbilled entries are swept into a bill.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when a bill is settled through a payment.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, p *payment.Payment) error
}
