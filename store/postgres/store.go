// Package postgres implements store.Store on PostgreSQL via Grove ORM and
// its pgx-backed driver. Units of work map onto database transactions, and
// the customer row is locked with SELECT ... FOR UPDATE inside one.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/billing"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/store"
	"github.com/xraph/billing/transaction"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// querier is the query-builder surface shared by *pgdriver.PgDB and
// *pgdriver.PgTx.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
}

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	q      querier
	inTx   bool
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migrations and rollback failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	pg := pgdriver.Unwrap(db)
	s := &Store{db: db, pg: pg, q: pg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn with a pool of at most maxConns connections and
// verifies connectivity.
func Open(ctx context.Context, dsn string, maxConns int, opts ...Option) (*Store, error) {
	pg := pgdriver.New()

	var driverOpts []driver.Option
	if maxConns > 0 {
		driverOpts = append(driverOpts, driver.WithPoolSize(maxConns))
	}
	if err := pg.Open(ctx, dsn, driverOpts...); err != nil {
		return nil, fmt.Errorf("billing/postgres: open: %w", err)
	}

	db, err := grove.Open(pg)
	if err != nil {
		pg.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("billing/postgres: open: %w", err)
	}

	s := New(db, opts...)
	if err := s.Ping(ctx); err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("billing/postgres: ping: %w", err)
	}
	return s, nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("billing/postgres: create migration executor: %w", err)
	}
	res, err := migrate.NewOrchestrator(executor, Migrations).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("billing/postgres: migration failed: %w", err)
	}
	for _, m := range res.Applied {
		s.logger.Info("applied migration", "name", m.Name, "version", m.Version)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic implements store.Store. Nested calls join the enclosing
// transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("billing/postgres: begin: %w", err)
	}
	txStore := &Store{db: s.db, pg: s.pg, q: tx, inTx: true, logger: s.logger}

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("billing/postgres: commit: %w", err)
	}
	return nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	m, err := toCustomerModel(c)
	if err != nil {
		return fmt.Errorf("billing/postgres: create customer: %w", err)
	}
	if _, err := s.q.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: create customer: %w", err)
	}
	return nil
}

// selectCustomer reads one customer row, locking it when the store runs
// inside a transaction.
func (s *Store) selectCustomer(m *customerModel, customerID id.ID) *pgdriver.SelectQuery {
	q := s.q.NewSelect(m).Where("id = $1", customerID.String())
	if s.inTx {
		q = q.ForUpdate()
	}
	return q
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	m := new(customerModel)
	if err := s.selectCustomer(m, customerID).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("billing/postgres: get customer: %w", err)
	}
	return fromCustomerModel(m)
}

// selectByContact matches email case-insensitively or phone exactly. It
// returns nil when both are empty.
func (s *Store) selectByContact(m *customerModel, email, phone string) *pgdriver.SelectQuery {
	var (
		conds []string
		args  []any
	)
	if email != "" {
		args = append(args, email)
		conds = append(conds, fmt.Sprintf("lower(email) = lower($%d)", len(args)))
	}
	if phone != "" {
		args = append(args, phone)
		conds = append(conds, fmt.Sprintf("phone = $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil
	}
	return s.q.NewSelect(m).Where(strings.Join(conds, " OR "), args...).Limit(1)
}

func (s *Store) FindCustomerByContact(ctx context.Context, email, phone string) (*customer.Customer, error) {
	m := new(customerModel)
	q := s.selectByContact(m, email, phone)
	if q == nil {
		return nil, billing.ErrCustomerNotFound
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("billing/postgres: find customer: %w", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var models []customerModel
	err := s.q.NewSelect(&models).
		OrderExpr("created_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/postgres: list customers: %w", err)
	}

	out := make([]*customer.Customer, 0, len(models))
	for i := range models {
		c, err := fromCustomerModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// updateCustomer writes m only while the row still carries version.
func (s *Store) updateCustomer(m *customerModel, version int64) *pgdriver.UpdateQuery {
	return s.q.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("version = ?", version)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m, err := toCustomerModel(c)
	if err != nil {
		return fmt.Errorf("billing/postgres: update customer: %w", err)
	}
	m.Version = c.Version + 1

	res, err := s.updateCustomer(m, c.Version).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: update customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("billing/postgres: update customer: %w", err)
	}
	if n == 0 {
		count, err := s.q.NewSelect((*customerModel)(nil)).Where("id = $1", m.ID).Count(ctx)
		if err != nil {
			return fmt.Errorf("billing/postgres: update customer: %w", err)
		}
		if count == 0 {
			return billing.ErrCustomerNotFound
		}
		return billing.ErrConcurrentModification
	}
	c.Version++
	return nil
}

func (s *Store) selectRenewalsDue(models *[]customerModel, from, to time.Time) *pgdriver.SelectQuery {
	return s.q.NewSelect(models).
		Column("id").
		Where("renewal_date >= $1 AND renewal_date < $2", from.UTC(), to.UTC()).
		OrderExpr("id ASC")
}

func (s *Store) ListRenewalsDue(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	var models []customerModel
	if err := s.selectRenewalsDue(&models, from, to).Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/postgres: list renewals: %w", err)
	}

	out := make([]id.ID, 0, len(models))
	for i := range models {
		customerID, err := id.ParseCustomerID(models[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, customerID)
	}
	return out, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if _, err := s.q.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.ID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.q.NewSelect(m).Where("id = $1", planID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrPlanNotFound
		}
		return nil, fmt.Errorf("billing/postgres: get plan: %w", err)
	}
	return fromPlanModel(m)
}

func (s *Store) selectPlans(models *[]planModel, opts plan.ListOpts) *pgdriver.SelectQuery {
	q := s.q.NewSelect(models)
	if !opts.IncludeInactive {
		q = q.Where("is_active = $1", true)
	}
	return q.OrderExpr("id ASC").Limit(opts.Limit).Offset(opts.Offset)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	if err := s.selectPlans(&models, opts).Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/postgres: list plans: %w", err)
	}

	out := make([]*plan.Plan, 0, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	res, err := s.q.NewUpdate(toPlanModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/postgres: update plan: %w", err)
	}
	return expectAffected(res, billing.ErrPlanNotFound)
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	if _, err := s.q.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: create transaction: %w", err)
	}
	return nil
}

// selectTransactions orders by the insertion sequence, which breaks ties
// between entries written in the same instant.
func (s *Store) selectTransactions(models *[]transactionModel, customerID id.ID, opts transaction.ListOpts) *pgdriver.SelectQuery {
	q := s.q.NewSelect(models).Where("customer_id = $1", customerID.String())
	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
	}
	if opts.Oldest {
		q = q.OrderExpr("seq ASC")
	} else {
		q = q.OrderExpr("seq DESC")
	}
	return q.Limit(opts.Limit).Offset(opts.Offset)
}

func (s *Store) ListTransactions(ctx context.Context, customerID id.ID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	if err := s.selectTransactions(&models, customerID, opts).Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/postgres: list transactions: %w", err)
	}

	out := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) markBilled(customerID id.ID, txnIDs []id.ID, at time.Time) *pgdriver.UpdateQuery {
	return s.q.NewUpdate((*transactionModel)(nil)).
		Set("status = ?", string(transaction.StatusBilled)).
		Set("updated_at = ?", at.UTC()).
		Where("customer_id = ?", customerID.String()).
		Where("id = ANY(?)", idStrings(txnIDs)).
		Where("status = ?", string(transaction.StatusUnbilled))
}

func (s *Store) MarkTransactionsBilled(ctx context.Context, customerID id.ID, txnIDs []id.ID, at time.Time) error {
	if len(txnIDs) == 0 {
		return nil
	}
	if _, err := s.markBilled(customerID, txnIDs, at).Exec(ctx); err != nil {
		return fmt.Errorf("billing/postgres: mark transactions billed: %w", err)
	}
	return nil
}

func (s *Store) DeleteTransactions(ctx context.Context, customerID id.ID) (int64, error) {
	res, err := s.q.NewDelete((*transactionModel)(nil)).
		Where("customer_id = ?", customerID.String()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("billing/postgres: delete transactions: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.q.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.ID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.q.NewSelect(m).Where("id = $1", invID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billing/postgres: get invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.ID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.q.NewSelect(&models).Where("customer_id = $1", customerID.String())
	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
	}
	err := q.OrderExpr("seq DESC").Limit(opts.Limit).Offset(opts.Offset).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/postgres: list invoices: %w", err)
	}

	out := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.ID, paidAt time.Time) error {
	res, err := s.q.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPaid)).
		Set("paid_at = ?", paidAt.UTC()).
		Set("updated_at = ?", paidAt.UTC()).
		Where("id = ?", invID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/postgres: mark invoice paid: %w", err)
	}
	return expectAffected(res, billing.ErrInvoiceNotFound)
}

func (s *Store) MarkUnpaidInvoicesPaid(ctx context.Context, customerID id.ID, paidAt time.Time) (int64, error) {
	res, err := s.q.NewUpdate((*invoiceModel)(nil)).
		Set("status = ?", string(invoice.StatusPaid)).
		Set("paid_at = ?", paidAt.UTC()).
		Set("updated_at = ?", paidAt.UTC()).
		Where("customer_id = ?", customerID.String()).
		Where("status = ?", string(invoice.StatusUnpaid)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("billing/postgres: mark unpaid invoices paid: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteInvoices(ctx context.Context, customerID id.ID) (int64, error) {
	res, err := s.q.NewDelete((*invoiceModel)(nil)).
		Where("customer_id = ?", customerID.String()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("billing/postgres: delete invoices: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if _, err := s.q.NewInsert(toPaymentModel(p)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/postgres: create payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, customerID id.ID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.q.NewSelect(&models).
		Where("customer_id = $1", customerID.String()).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/postgres: list payments: %w", err)
	}

	out := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ==================== Helpers ====================

func expectAffected(res driver.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the pgx no-rows error, which wraps sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports SQLSTATE 23505 from any driver error that
// exposes it.
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
