// Package audithook bridges billing lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package carries no audit
// backend dependency. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/plugin"
	"github.com/xraph/billing/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnCustomerCreated     = (*Extension)(nil)
	_ plugin.OnAccountReset        = (*Extension)(nil)
	_ plugin.OnPlanCreated         = (*Extension)(nil)
	_ plugin.OnPlanDeactivated     = (*Extension)(nil)
	_ plugin.OnPlanAssigned        = (*Extension)(nil)
	_ plugin.OnPlanRenewed         = (*Extension)(nil)
	_ plugin.OnPlanChangeRequested = (*Extension)(nil)
	_ plugin.OnPlanChanged         = (*Extension)(nil)
	_ plugin.OnRenewalSweep        = (*Extension)(nil)
	_ plugin.OnChargeApplied       = (*Extension)(nil)
	_ plugin.OnBalanceCredited     = (*Extension)(nil)
	_ plugin.OnInvoiceGenerated    = (*Extension)(nil)
	_ plugin.OnInvoicePaid         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges billing lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Customer and catalog hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (e *Extension) OnCustomerCreated(ctx context.Context, c *customer.Customer) error {
	return e.record(ctx, ActionCustomerCreated, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, c.ID.String(), CategoryAccount, nil,
		"payment_type", string(c.PaymentType),
		"currency", c.Currency,
		"tax_rate", c.TaxRate,
	)
}

// OnAccountReset implements plugin.OnAccountReset.
func (e *Extension) OnAccountReset(ctx context.Context, customerID id.ID) error {
	return e.record(ctx, ActionAccountReset, SeverityWarning, OutcomeSuccess,
		ResourceCustomer, customerID.String(), CategoryAccount, nil,
	)
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryCatalog, nil,
		"name", p.Name,
		"type", string(p.Type),
	)
}

// OnPlanDeactivated implements plugin.OnPlanDeactivated.
func (e *Extension) OnPlanDeactivated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanDeactivated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryCatalog, nil,
		"name", p.Name,
	)
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanAssigned implements plugin.OnPlanAssigned.
func (e *Extension) OnPlanAssigned(ctx context.Context, customerID id.ID, a *customer.Assignment) error {
	return e.record(ctx, ActionPlanAssigned, SeverityInfo, OutcomeSuccess,
		ResourceAssignment, a.ID.String(), CategoryBilling, nil,
		"customer_id", customerID.String(),
		"plan_id", a.Plan.PlanID.String(),
		"pro_rated", a.IsProRated,
		"renewal_date", a.RenewalDate.Format(time.RFC3339),
	)
}

// OnPlanRenewed implements plugin.OnPlanRenewed.
func (e *Extension) OnPlanRenewed(ctx context.Context, customerID id.ID, a *customer.Assignment) error {
	return e.record(ctx, ActionPlanRenewed, SeverityInfo, OutcomeSuccess,
		ResourceAssignment, a.ID.String(), CategoryBilling, nil,
		"customer_id", customerID.String(),
		"plan_id", a.Plan.PlanID.String(),
		"renewal_date", a.RenewalDate.Format(time.RFC3339),
	)
}

// OnPlanChangeRequested implements plugin.OnPlanChangeRequested.
func (e *Extension) OnPlanChangeRequested(ctx context.Context, customerID id.ID, req *customer.ChangeRequest) error {
	return e.record(ctx, ActionPlanChangeRequested, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, customerID.String(), CategoryBilling, nil,
		"plan_id", req.PlanID.String(),
	)
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (e *Extension) OnPlanChanged(ctx context.Context, customerID id.ID, from plan.Snapshot, to *customer.Assignment) error {
	return e.record(ctx, ActionPlanChanged, SeverityInfo, OutcomeSuccess,
		ResourceAssignment, to.ID.String(), CategoryBilling, nil,
		"customer_id", customerID.String(),
		"from_plan_id", from.PlanID.String(),
		"to_plan_id", to.Plan.PlanID.String(),
	)
}

// OnRenewalSweep implements plugin.OnRenewalSweep. Sweeps with failures are
// recorded as partial outcomes.
func (e *Extension) OnRenewalSweep(ctx context.Context, due, renewed, failed int, elapsed time.Duration) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if failed > 0 {
		outcome, severity = OutcomePartial, SeverityError
	}
	return e.record(ctx, ActionRenewalSweep, severity, outcome,
		ResourceScheduler, "", CategoryBilling, nil,
		"due", due,
		"renewed", renewed,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnChargeApplied implements plugin.OnChargeApplied. Only charges that
// exhausted the balance and left an unbilled remainder are audited.
func (e *Extension) OnChargeApplied(ctx context.Context, txns []*transaction.Transaction) error {
	if len(txns) < 2 {
		return nil
	}
	covered, remaining := txns[0], txns[len(txns)-1]
	return e.record(ctx, ActionChargeSplit, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, remaining.ID.String(), CategoryBilling, nil,
		"customer_id", remaining.CustomerID.String(),
		"type", string(remaining.Type),
		"covered", covered.Details.Amount,
		"unbilled", remaining.Details.Amount,
	)
}

// OnBalanceCredited implements plugin.OnBalanceCredited.
func (e *Extension) OnBalanceCredited(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionBalanceCredited, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryBilling, nil,
		"customer_id", t.CustomerID.String(),
		"type", string(t.Type),
		"amount", t.Details.Amount,
		"balance_after", t.BalanceAfter,
	)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (e *Extension) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID.String(),
		"kind", string(inv.Kind),
		"total_amount", inv.TotalAmount,
		"currency", inv.Currency,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, p *payment.Payment) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID.String(),
		"payment_id", p.ID.String(),
		"amount", p.Amount,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
