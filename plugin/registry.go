package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/transaction"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration and cached per
// hook type.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onCustomerCreated     []OnCustomerCreated
	onAccountReset        []OnAccountReset
	onPlanCreated         []OnPlanCreated
	onPlanDeactivated     []OnPlanDeactivated
	onPlanAssigned        []OnPlanAssigned
	onPlanRenewed         []OnPlanRenewed
	onPlanChangeRequested []OnPlanChangeRequested
	onPlanChanged         []OnPlanChanged
	onRenewalSweep        []OnRenewalSweep
	onUsageConsumed       []OnUsageConsumed
	onChargeApplied       []OnChargeApplied
	onBalanceCredited     []OnBalanceCredited
	onInvoiceGenerated    []OnInvoiceGenerated
	onInvoicePaid         []OnInvoicePaid
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run before it is abandoned.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnCustomerCreated); ok {
		r.onCustomerCreated = append(r.onCustomerCreated, v)
		hooks = append(hooks, "OnCustomerCreated")
	}
	if v, ok := p.(OnAccountReset); ok {
		r.onAccountReset = append(r.onAccountReset, v)
		hooks = append(hooks, "OnAccountReset")
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
		hooks = append(hooks, "OnPlanCreated")
	}
	if v, ok := p.(OnPlanDeactivated); ok {
		r.onPlanDeactivated = append(r.onPlanDeactivated, v)
		hooks = append(hooks, "OnPlanDeactivated")
	}
	if v, ok := p.(OnPlanAssigned); ok {
		r.onPlanAssigned = append(r.onPlanAssigned, v)
		hooks = append(hooks, "OnPlanAssigned")
	}
	if v, ok := p.(OnPlanRenewed); ok {
		r.onPlanRenewed = append(r.onPlanRenewed, v)
		hooks = append(hooks, "OnPlanRenewed")
	}
	if v, ok := p.(OnPlanChangeRequested); ok {
		r.onPlanChangeRequested = append(r.onPlanChangeRequested, v)
		hooks = append(hooks, "OnPlanChangeRequested")
	}
	if v, ok := p.(OnPlanChanged); ok {
		r.onPlanChanged = append(r.onPlanChanged, v)
		hooks = append(hooks, "OnPlanChanged")
	}
	if v, ok := p.(OnRenewalSweep); ok {
		r.onRenewalSweep = append(r.onRenewalSweep, v)
		hooks = append(hooks, "OnRenewalSweep")
	}
	if v, ok := p.(OnUsageConsumed); ok {
		r.onUsageConsumed = append(r.onUsageConsumed, v)
		hooks = append(hooks, "OnUsageConsumed")
	}
	if v, ok := p.(OnChargeApplied); ok {
		r.onChargeApplied = append(r.onChargeApplied, v)
		hooks = append(hooks, "OnChargeApplied")
	}
	if v, ok := p.(OnBalanceCredited); ok {
		r.onBalanceCredited = append(r.onBalanceCredited, v)
		hooks = append(hooks, "OnBalanceCredited")
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
		hooks = append(hooks, "OnInvoiceGenerated")
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
		hooks = append(hooks, "OnInvoicePaid")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for every plugin in hooks. Failures are logged and never
// reach the caller.
func dispatch[T Plugin](ctx context.Context, r *Registry, event string, hooks func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := hooks(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+event+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	dispatch(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitCustomerCreated emits a customer created event.
func (r *Registry) EmitCustomerCreated(ctx context.Context, c *customer.Customer) {
	dispatch(ctx, r, "OnCustomerCreated", func(r *Registry) []OnCustomerCreated { return r.onCustomerCreated },
		func(p OnCustomerCreated) error { return p.OnCustomerCreated(ctx, c) })
}

// EmitAccountReset emits an account reset event.
func (r *Registry) EmitAccountReset(ctx context.Context, customerID id.ID) {
	dispatch(ctx, r, "OnAccountReset", func(r *Registry) []OnAccountReset { return r.onAccountReset },
		func(p OnAccountReset) error { return p.OnAccountReset(ctx, customerID) })
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	dispatch(ctx, r, "OnPlanCreated", func(r *Registry) []OnPlanCreated { return r.onPlanCreated },
		func(p OnPlanCreated) error { return p.OnPlanCreated(ctx, pl) })
}

// EmitPlanDeactivated emits a plan deactivated event.
func (r *Registry) EmitPlanDeactivated(ctx context.Context, pl *plan.Plan) {
	dispatch(ctx, r, "OnPlanDeactivated", func(r *Registry) []OnPlanDeactivated { return r.onPlanDeactivated },
		func(p OnPlanDeactivated) error { return p.OnPlanDeactivated(ctx, pl) })
}

// EmitPlanAssigned emits a plan assigned event.
func (r *Registry) EmitPlanAssigned(ctx context.Context, customerID id.ID, a *customer.Assignment) {
	dispatch(ctx, r, "OnPlanAssigned", func(r *Registry) []OnPlanAssigned { return r.onPlanAssigned },
		func(p OnPlanAssigned) error { return p.OnPlanAssigned(ctx, customerID, a) })
}

// EmitPlanRenewed emits a plan renewed event.
func (r *Registry) EmitPlanRenewed(ctx context.Context, customerID id.ID, a *customer.Assignment) {
	dispatch(ctx, r, "OnPlanRenewed", func(r *Registry) []OnPlanRenewed { return r.onPlanRenewed },
		func(p OnPlanRenewed) error { return p.OnPlanRenewed(ctx, customerID, a) })
}

// EmitPlanChangeRequested emits a plan change requested event.
func (r *Registry) EmitPlanChangeRequested(ctx context.Context, customerID id.ID, req *customer.ChangeRequest) {
	dispatch(ctx, r, "OnPlanChangeRequested", func(r *Registry) []OnPlanChangeRequested { return r.onPlanChangeRequested },
		func(p OnPlanChangeRequested) error { return p.OnPlanChangeRequested(ctx, customerID, req) })
}

// EmitPlanChanged emits a plan changed event.
func (r *Registry) EmitPlanChanged(ctx context.Context, customerID id.ID, from plan.Snapshot, to *customer.Assignment) {
	dispatch(ctx, r, "OnPlanChanged", func(r *Registry) []OnPlanChanged { return r.onPlanChanged },
		func(p OnPlanChanged) error { return p.OnPlanChanged(ctx, customerID, from, to) })
}

// EmitRenewalSweep emits a renewal sweep finished event.
func (r *Registry) EmitRenewalSweep(ctx context.Context, due, renewed, failed int, elapsed time.Duration) {
	dispatch(ctx, r, "OnRenewalSweep", func(r *Registry) []OnRenewalSweep { return r.onRenewalSweep },
		func(p OnRenewalSweep) error { return p.OnRenewalSweep(ctx, due, renewed, failed, elapsed) })
}

// EmitUsageConsumed emits a usage consumed event.
func (r *Registry) EmitUsageConsumed(ctx context.Context, customerID id.ID, a *customer.Assignment, charged bool) {
	dispatch(ctx, r, "OnUsageConsumed", func(r *Registry) []OnUsageConsumed { return r.onUsageConsumed },
		func(p OnUsageConsumed) error { return p.OnUsageConsumed(ctx, customerID, a, charged) })
}

// EmitChargeApplied emits a charge applied event.
func (r *Registry) EmitChargeApplied(ctx context.Context, txns []*transaction.Transaction) {
	dispatch(ctx, r, "OnChargeApplied", func(r *Registry) []OnChargeApplied { return r.onChargeApplied },
		func(p OnChargeApplied) error { return p.OnChargeApplied(ctx, txns) })
}

// EmitBalanceCredited emits a balance credited event.
func (r *Registry) EmitBalanceCredited(ctx context.Context, t *transaction.Transaction) {
	dispatch(ctx, r, "OnBalanceCredited", func(r *Registry) []OnBalanceCredited { return r.onBalanceCredited },
		func(p OnBalanceCredited) error { return p.OnBalanceCredited(ctx, t) })
}

// EmitInvoiceGenerated emits an invoice generated event.
func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoiceGenerated", func(r *Registry) []OnInvoiceGenerated { return r.onInvoiceGenerated },
		func(p OnInvoiceGenerated) error { return p.OnInvoiceGenerated(ctx, inv) })
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice, pay *payment.Payment) {
	dispatch(ctx, r, "OnInvoicePaid", func(r *Registry) []OnInvoicePaid { return r.onInvoicePaid },
		func(p OnInvoicePaid) error { return p.OnInvoicePaid(ctx, inv, pay) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
