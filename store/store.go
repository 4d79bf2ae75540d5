// Package store declares the persistence contract of the billing engine.
package store

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

// Store is the unified storage interface for all billing records.
// Methods are declared explicitly instead of embedding per-record
// interfaces so that names never collide.
type Store interface {
	// Customer methods
	CreateCustomer(ctx context.Context, c *customer.Customer) error
	GetCustomer(ctx context.Context, customerID id.ID) (*customer.Customer, error)
	FindCustomerByContact(ctx context.Context, email, phone string) (*customer.Customer, error)
	ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error)
	// UpdateCustomer persists c when c.Version still matches the stored
	// version and then increments c.Version.
	UpdateCustomer(ctx context.Context, c *customer.Customer) error
	// ListRenewalsDue returns customers whose active assignment renews in
	// [from, to).
	ListRenewalsDue(ctx context.Context, from, to time.Time) ([]id.ID, error)

	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.ID) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error

	// Transaction methods
	CreateTransaction(ctx context.Context, t *transaction.Transaction) error
	ListTransactions(ctx context.Context, customerID id.ID, opts transaction.ListOpts) ([]*transaction.Transaction, error)
	MarkTransactionsBilled(ctx context.Context, customerID id.ID, txnIDs []id.ID, at time.Time) error
	DeleteTransactions(ctx context.Context, customerID id.ID) (int64, error)

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.ID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, customerID id.ID, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invID id.ID, paidAt time.Time) error
	MarkUnpaidInvoicesPaid(ctx context.Context, customerID id.ID, paidAt time.Time) (int64, error)
	DeleteInvoices(ctx context.Context, customerID id.ID) (int64, error)

	// Payment methods
	CreatePayment(ctx context.Context, p *payment.Payment) error
	ListPayments(ctx context.Context, customerID id.ID) ([]*payment.Payment, error)

	// Atomic runs fn as one unit of work. Every write made through tx is
	// committed when fn returns nil and rolled back otherwise. Calling
	// Atomic on a tx joins the enclosing unit.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
