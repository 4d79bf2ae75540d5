package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/billing/clock"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/lock"
	"github.com/xraph/billing/plugin"
	"github.com/xraph/billing/store"
)

// Engine is the billing engine. All methods are safe for concurrent use;
// operations on the same customer are serialized.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	locker  lock.Locker

	// Configuration
	operationTimeout time.Duration
	defaults         Defaults
}

// Defaults are applied to new customers that do not set these fields.
type Defaults struct {
	Currency    string
	PaymentType customer.PaymentType
	TaxRate     int64
}

// New creates a new Engine.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		clock:            clock.System{},
		locker:           lock.NewLocal(),
		operationTimeout: 30 * time.Second,
		defaults: Defaults{
			Currency:    "INR",
			PaymentType: customer.Prepaid,
			TaxRate:     18,
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLocker replaces the in-process per-customer locker, e.g. with a Redis
// lease when several processes share the store.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithOperationTimeout bounds every unit of work, lock wait included.
// Zero disables the bound.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.operationTimeout = d }
}

// WithDefaults sets the currency, payment type and tax rate of new customers.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		if d.Currency != "" {
			e.defaults.Currency = d.Currency
		}
		if d.PaymentType.Valid() {
			e.defaults.PaymentType = d.PaymentType
		}
		if d.TaxRate > 0 {
			e.defaults.TaxRate = d.TaxRate
		}
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("billing engine started",
		"operation_timeout", e.operationTimeout,
		"currency", e.defaults.Currency,
		"tax_rate", e.defaults.TaxRate,
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// ──────────────────────────────────────────────────
// Unit of work
// ──────────────────────────────────────────────────

// unit is the state shared by every step of one customer operation. Plugin
// notifications are queued and only delivered once the unit commits.
type unit struct {
	ctx    context.Context
	tx     store.Store
	cust   *customer.Customer
	now    time.Time
	events []func(ctx context.Context)
}

func (u *unit) emit(fn func(ctx context.Context)) {
	u.events = append(u.events, fn)
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.operationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.operationTimeout)
}

// mutate runs fn against customerID as one atomic unit of work under the
// customer's lock and persists the customer when fn succeeds.
func (e *Engine) mutate(ctx context.Context, op string, customerID id.ID, fn func(u *unit) error) error {
	bctx, cancel := e.bound(ctx)
	defer cancel()

	unlock, err := e.locker.Lock(bctx, "customer:"+customerID.String())
	if err != nil {
		return fmt.Errorf("billing: %s: %w: %w", op, ErrLockTimeout, err)
	}
	defer unlock()

	var committed *unit
	err = e.store.Atomic(bctx, func(txCtx context.Context, tx store.Store) error {
		c, err := tx.GetCustomer(txCtx, customerID)
		if err != nil {
			return err
		}

		u := &unit{ctx: txCtx, tx: tx, cust: c, now: e.clock.Now()}
		if err := fn(u); err != nil {
			return err
		}

		c.Touch(u.now)
		if err := tx.UpdateCustomer(txCtx, c); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", ErrTransactionFailed, err)
		}
		e.logger.Debug("billing operation aborted",
			"op", op,
			"customer_id", customerID.String(),
			"error", err,
		)
		return fmt.Errorf("billing: %s: %w", op, err)
	}

	for _, fire := range committed.events {
		fire(ctx)
	}
	return nil
}

// RecordSweep reports a finished renewal sweep to plugins.
func (e *Engine) RecordSweep(ctx context.Context, due, renewed, failed int, elapsed time.Duration) {
	e.plugins.EmitRenewalSweep(ctx, due, renewed, failed, elapsed)
}
