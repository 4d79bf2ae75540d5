// Package memory implements store.Store in process memory. It is meant for
// tests and single-process development: units of work are serialized and
// rolled back by restoring a snapshot taken when the unit began.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/billing"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/store"
	"github.com/xraph/billing/transaction"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type txKey struct{}

type Store struct {
	// txMu serializes units of work and writes made outside of one.
	txMu sync.Mutex
	mu   sync.RWMutex

	data state
}

type state struct {
	customers    map[string]*customer.Customer
	plans        map[string]*plan.Plan
	transactions map[string][]*transaction.Transaction // by customer, oldest first
	invoices     map[string]*invoice.Invoice
	payments     map[string][]*payment.Payment // by customer, oldest first
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func newState() state {
	return state{
		customers:    make(map[string]*customer.Customer),
		plans:        make(map[string]*plan.Plan),
		transactions: make(map[string][]*transaction.Transaction),
		invoices:     make(map[string]*invoice.Invoice),
		payments:     make(map[string][]*payment.Payment),
	}
}

func (s state) clone() state {
	cp := newState()
	for k, c := range s.customers {
		cp.customers[k] = c.Clone()
	}
	for k, p := range s.plans {
		cp.plans[k] = p.Clone()
	}
	for k, txns := range s.transactions {
		list := make([]*transaction.Transaction, len(txns))
		for i, t := range txns {
			t := *t
			list[i] = &t
		}
		cp.transactions[k] = list
	}
	for k, inv := range s.invoices {
		cp.invoices[k] = inv.Clone()
	}
	for k, pays := range s.payments {
		list := make([]*payment.Payment, len(pays))
		for i, p := range pays {
			p := *p
			list[i] = &p
		}
		cp.payments[k] = list
	}
	return cp
}

// ──────────────────────────────────────────────────
// Unit of work
// ──────────────────────────────────────────────────

// Atomic implements store.Store. Nested calls join the enclosing unit.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if inTx(ctx) {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true), s); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under the data lock, and under the unit-of-work lock when
// called outside of Atomic so a rollback never discards it.
func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *Store) read(fn func(d *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.data)
}

// ──────────────────────────────────────────────────
// Customer methods
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.customers[c.ID.String()]; ok {
			return billing.ErrAlreadyExists
		}
		for _, existing := range d.customers {
			if strings.EqualFold(existing.Email, c.Email) || existing.Phone == c.Phone {
				return billing.ErrAlreadyExists
			}
		}
		d.customers[c.ID.String()] = c.Clone()
		return nil
	})
}

func (s *Store) GetCustomer(_ context.Context, customerID id.ID) (*customer.Customer, error) {
	var out *customer.Customer
	err := s.read(func(d *state) error {
		c, ok := d.customers[customerID.String()]
		if !ok {
			return billing.ErrCustomerNotFound
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

func (s *Store) FindCustomerByContact(_ context.Context, email, phone string) (*customer.Customer, error) {
	var out *customer.Customer
	err := s.read(func(d *state) error {
		for _, c := range d.customers {
			if (email != "" && strings.EqualFold(c.Email, email)) || (phone != "" && c.Phone == phone) {
				out = c.Clone()
				return nil
			}
		}
		return billing.ErrCustomerNotFound
	})
	return out, err
}

func (s *Store) ListCustomers(_ context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var out []*customer.Customer
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		for _, c := range d.customers {
			out = append(out, c.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	return s.write(ctx, func(d *state) error {
		existing, ok := d.customers[c.ID.String()]
		if !ok {
			return billing.ErrCustomerNotFound
		}
		if existing.Version != c.Version {
			return billing.ErrConcurrentModification
		}
		c.Version++
		d.customers[c.ID.String()] = c.Clone()
		return nil
	})
}

func (s *Store) ListRenewalsDue(_ context.Context, from, to time.Time) ([]id.ID, error) {
	var out []id.ID
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		for _, c := range d.customers {
			a := c.ActiveAssignment()
			if a == nil {
				continue
			}
			if !a.RenewalDate.Before(from) && a.RenewalDate.Before(to) {
				out = append(out, c.ID)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// ──────────────────────────────────────────────────
// Plan methods
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.plans[p.ID.String()]; ok {
			return billing.ErrAlreadyExists
		}
		d.plans[p.ID.String()] = p.Clone()
		return nil
	})
}

func (s *Store) GetPlan(_ context.Context, planID id.ID) (*plan.Plan, error) {
	var out *plan.Plan
	err := s.read(func(d *state) error {
		p, ok := d.plans[planID.String()]
		if !ok {
			return billing.ErrPlanNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var out []*plan.Plan
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		for _, p := range d.plans {
			if !opts.IncludeInactive && !p.IsActive {
				continue
			}
			out = append(out, p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return page(out, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.plans[p.ID.String()]; !ok {
			return billing.ErrPlanNotFound
		}
		d.plans[p.ID.String()] = p.Clone()
		return nil
	})
}

// ──────────────────────────────────────────────────
// Transaction methods
// ──────────────────────────────────────────────────

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	return s.write(ctx, func(d *state) error {
		cp := *t
		key := t.CustomerID.String()
		d.transactions[key] = append(d.transactions[key], &cp)
		return nil
	})
}

func (s *Store) ListTransactions(_ context.Context, customerID id.ID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		for _, t := range d.transactions[customerID.String()] {
			if opts.Status != "" && t.Status != opts.Status {
				continue
			}
			cp := *t
			out = append(out, &cp)
		}
		return nil
	})
	if !opts.Oldest {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkTransactionsBilled(ctx context.Context, customerID id.ID, txnIDs []id.ID, at time.Time) error {
	want := make(map[string]bool, len(txnIDs))
	for _, tid := range txnIDs {
		want[tid.String()] = true
	}
	return s.write(ctx, func(d *state) error {
		for _, t := range d.transactions[customerID.String()] {
			if want[t.ID.String()] && t.Status == transaction.StatusUnbilled {
				t.Status = transaction.StatusBilled
				t.Touch(at)
			}
		}
		return nil
	})
}

func (s *Store) DeleteTransactions(ctx context.Context, customerID id.ID) (int64, error) {
	var n int64
	err := s.write(ctx, func(d *state) error {
		n = int64(len(d.transactions[customerID.String()]))
		delete(d.transactions, customerID.String())
		return nil
	})
	return n, err
}

// ──────────────────────────────────────────────────
// Invoice methods
// ──────────────────────────────────────────────────

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.write(ctx, func(d *state) error {
		if _, ok := d.invoices[inv.ID.String()]; ok {
			return billing.ErrAlreadyExists
		}
		d.invoices[inv.ID.String()] = inv.Clone()
		return nil
	})
}

func (s *Store) GetInvoice(_ context.Context, invID id.ID) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := s.read(func(d *state) error {
		inv, ok := d.invoices[invID.String()]
		if !ok {
			return billing.ErrInvoiceNotFound
		}
		out = inv.Clone()
		return nil
	})
	return out, err
}

func (s *Store) ListInvoices(_ context.Context, customerID id.ID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		for _, inv := range d.invoices {
			if inv.CustomerID.String() != customerID.String() {
				continue
			}
			if opts.Status != "" && inv.Status != opts.Status {
				continue
			}
			out = append(out, inv.Clone())
		}
		return nil
	})
	// TypeIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() > out[j].ID.String() })
	return page(out, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.ID, paidAt time.Time) error {
	return s.write(ctx, func(d *state) error {
		inv, ok := d.invoices[invID.String()]
		if !ok {
			return billing.ErrInvoiceNotFound
		}
		at := paidAt
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &at
		inv.Touch(paidAt)
		return nil
	})
}

func (s *Store) MarkUnpaidInvoicesPaid(ctx context.Context, customerID id.ID, paidAt time.Time) (int64, error) {
	var n int64
	err := s.write(ctx, func(d *state) error {
		for _, inv := range d.invoices {
			if inv.CustomerID.String() != customerID.String() || inv.Status != invoice.StatusUnpaid {
				continue
			}
			at := paidAt
			inv.Status = invoice.StatusPaid
			inv.PaidAt = &at
			inv.Touch(paidAt)
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteInvoices(ctx context.Context, customerID id.ID) (int64, error) {
	var n int64
	err := s.write(ctx, func(d *state) error {
		for k, inv := range d.invoices {
			if inv.CustomerID.String() == customerID.String() {
				delete(d.invoices, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

// ──────────────────────────────────────────────────
// Payment methods
// ──────────────────────────────────────────────────

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return s.write(ctx, func(d *state) error {
		cp := *p
		key := p.CustomerID.String()
		d.payments[key] = append(d.payments[key], &cp)
		return nil
	})
}

func (s *Store) ListPayments(_ context.Context, customerID id.ID) ([]*payment.Payment, error) {
	var out []*payment.Payment
	_ = s.read(func(d *state) error { //nolint:errcheck // read never fails
		pays := d.payments[customerID.String()]
		for i := len(pays) - 1; i >= 0; i-- {
			cp := *pays[i]
			out = append(out, &cp)
		}
		return nil
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
