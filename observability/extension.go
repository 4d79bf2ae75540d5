// Package observability provides a metrics extension for the billing engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/plugin"
	"github.com/xraph/billing/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnCustomerCreated     = (*MetricsExtension)(nil)
	_ plugin.OnAccountReset        = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated         = (*MetricsExtension)(nil)
	_ plugin.OnPlanDeactivated     = (*MetricsExtension)(nil)
	_ plugin.OnPlanAssigned        = (*MetricsExtension)(nil)
	_ plugin.OnPlanRenewed         = (*MetricsExtension)(nil)
	_ plugin.OnPlanChangeRequested = (*MetricsExtension)(nil)
	_ plugin.OnPlanChanged         = (*MetricsExtension)(nil)
	_ plugin.OnRenewalSweep        = (*MetricsExtension)(nil)
	_ plugin.OnUsageConsumed       = (*MetricsExtension)(nil)
	_ plugin.OnChargeApplied       = (*MetricsExtension)(nil)
	_ plugin.OnBalanceCredited     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated    = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a billing plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Customer metrics
	CustomerCreated Counter
	AccountReset    Counter

	// Catalog metrics
	PlanCreated     Counter
	PlanDeactivated Counter

	// Plan lifecycle metrics
	PlanAssigned        Counter
	PlanRenewed         Counter
	PlanChangeRequested Counter
	PlanChanged         Counter

	// Renewal sweep metrics
	RenewalSweeps  Counter
	RenewalsDue    Counter
	RenewalsFailed Counter
	RenewalLatency Histogram

	// Usage metrics
	InterviewsConsumed Counter
	InterviewsCharged  Counter

	// Ledger metrics
	ChargesApplied Counter
	ChargesSplit   Counter
	ChargeAmount   Histogram
	CreditsApplied Counter
	CreditAmount   Histogram

	// Invoice metrics
	InvoiceGenerated Counter
	InvoicePaid      Counter
	InvoiceTotal     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Customer metrics
		CustomerCreated: factory.Counter("billing.customer.created"),
		AccountReset:    factory.Counter("billing.customer.reset"),

		// Catalog metrics
		PlanCreated:     factory.Counter("billing.plan.created"),
		PlanDeactivated: factory.Counter("billing.plan.deactivated"),

		// Plan lifecycle metrics
		PlanAssigned:        factory.Counter("billing.plan.assigned"),
		PlanRenewed:         factory.Counter("billing.plan.renewed"),
		PlanChangeRequested: factory.Counter("billing.plan.change_requested"),
		PlanChanged:         factory.Counter("billing.plan.changed"),

		// Renewal sweep metrics
		RenewalSweeps:  factory.Counter("billing.renewal.sweeps"),
		RenewalsDue:    factory.Counter("billing.renewal.due"),
		RenewalsFailed: factory.Counter("billing.renewal.failed"),
		RenewalLatency: factory.Histogram("billing.renewal.sweep.latency_ms"),

		// Usage metrics
		InterviewsConsumed: factory.Counter("billing.usage.interviews"),
		InterviewsCharged:  factory.Counter("billing.usage.interviews.charged"),

		// Ledger metrics
		ChargesApplied: factory.Counter("billing.ledger.charges"),
		ChargesSplit:   factory.Counter("billing.ledger.charges.split"),
		ChargeAmount:   factory.Histogram("billing.ledger.charge.amount"),
		CreditsApplied: factory.Counter("billing.ledger.credits"),
		CreditAmount:   factory.Histogram("billing.ledger.credit.amount"),

		// Invoice metrics
		InvoiceGenerated: factory.Counter("billing.invoice.generated"),
		InvoicePaid:      factory.Counter("billing.invoice.paid"),
		InvoiceTotal:     factory.Histogram("billing.invoice.total_amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Customer and catalog hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (m *MetricsExtension) OnCustomerCreated(_ context.Context, _ *customer.Customer) error {
	m.CustomerCreated.Inc()
	return nil
}

// OnAccountReset implements plugin.OnAccountReset.
func (m *MetricsExtension) OnAccountReset(_ context.Context, _ id.ID) error {
	m.AccountReset.Inc()
	return nil
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanDeactivated implements plugin.OnPlanDeactivated.
func (m *MetricsExtension) OnPlanDeactivated(_ context.Context, _ *plan.Plan) error {
	m.PlanDeactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanAssigned implements plugin.OnPlanAssigned.
func (m *MetricsExtension) OnPlanAssigned(_ context.Context, _ id.ID, _ *customer.Assignment) error {
	m.PlanAssigned.Inc()
	return nil
}

// OnPlanRenewed implements plugin.OnPlanRenewed.
func (m *MetricsExtension) OnPlanRenewed(_ context.Context, _ id.ID, _ *customer.Assignment) error {
	m.PlanRenewed.Inc()
	return nil
}

// OnPlanChangeRequested implements plugin.OnPlanChangeRequested.
func (m *MetricsExtension) OnPlanChangeRequested(_ context.Context, _ id.ID, _ *customer.ChangeRequest) error {
	m.PlanChangeRequested.Inc()
	return nil
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (m *MetricsExtension) OnPlanChanged(_ context.Context, _ id.ID, _ plan.Snapshot, _ *customer.Assignment) error {
	m.PlanChanged.Inc()
	return nil
}

// OnRenewalSweep implements plugin.OnRenewalSweep.
func (m *MetricsExtension) OnRenewalSweep(_ context.Context, due, _, failed int, elapsed time.Duration) error {
	m.RenewalSweeps.Inc()
	m.RenewalsDue.Add(float64(due))
	m.RenewalsFailed.Add(float64(failed))
	m.RenewalLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Usage and ledger hooks
// ──────────────────────────────────────────────────

// OnUsageConsumed implements plugin.OnUsageConsumed.
func (m *MetricsExtension) OnUsageConsumed(_ context.Context, _ id.ID, _ *customer.Assignment, charged bool) error {
	m.InterviewsConsumed.Inc()
	if charged {
		m.InterviewsCharged.Inc()
	}
	return nil
}

// OnChargeApplied implements plugin.OnChargeApplied.
func (m *MetricsExtension) OnChargeApplied(_ context.Context, txns []*transaction.Transaction) error {
	m.ChargesApplied.Inc()
	if len(txns) > 1 {
		m.ChargesSplit.Inc()
	}
	var total int64
	for _, t := range txns {
		total += t.Details.Amount
	}
	m.ChargeAmount.Observe(float64(total))
	return nil
}

// OnBalanceCredited implements plugin.OnBalanceCredited.
func (m *MetricsExtension) OnBalanceCredited(_ context.Context, t *transaction.Transaction) error {
	m.CreditsApplied.Inc()
	m.CreditAmount.Observe(float64(t.Details.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceTotal.Observe(float64(inv.TotalAmount))
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice, _ *payment.Payment) error {
	m.InvoicePaid.Inc()
	return nil
}
