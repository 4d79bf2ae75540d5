// Package mongo implements store.Store on MongoDB via Grove ORM. Units of
// work run inside a multi-document transaction, so the deployment must be a
// replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/billing"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/store"
	"github.com/xraph/billing/transaction"
)

// Collection name constants.
const (
	colCustomers    = "billing_customers"
	colPlans        = "billing_plans"
	colTransactions = "billing_transactions"
	colInvoices     = "billing_invoices"
	colPayments     = "billing_payments"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db   *grove.DB
	mdb  *mongodriver.MongoDB
	inTx bool
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all billing collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("billing/mongo: migrate %s indexes: %w", col, err)
		}
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

// Atomic implements store.Store. The driver may run fn more than once when
// the transaction hits a transient error.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	client := s.mdb.Collection(colCustomers).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("billing/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txStore := &Store{db: s.db, mdb: s.mdb, inTx: true}
	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx, txStore)
	})
	return err
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create customer: %w", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": customerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) FindCustomerByContact(ctx context.Context, email, phone string) (*customer.Customer, error) {
	filter := contactFilter(email, phone)
	if filter == nil {
		return nil, billing.ErrCustomerNotFound
	}

	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("billing/mongo: find customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var models []customerModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list customers: %w", err)
	}

	result := make([]*customer.Customer, len(models))
	for i := range models {
		c, err := fromCustomerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	m.Version = c.Version + 1

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": c.Version}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: update customer: %w", err)
	}
	if res.MatchedCount() == 0 {
		n, err := s.mdb.Collection(colCustomers).CountDocuments(ctx, bson.M{"_id": m.ID})
		if err != nil {
			return fmt.Errorf("billing/mongo: update customer: %w", err)
		}
		if n == 0 {
			return billing.ErrCustomerNotFound
		}
		return billing.ErrConcurrentModification
	}
	c.Version = m.Version
	return nil
}

func (s *Store) ListRenewalsDue(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	var models []customerModel
	err := s.mdb.NewFind(&models).
		Filter(renewalFilter(from, to)).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/mongo: list renewals: %w", err)
	}

	result := make([]id.ID, 0, len(models))
	for _, m := range models {
		customerID, err := id.ParseCustomerID(m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, customerID)
	}
	return result, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.ID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrPlanNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	filter := bson.M{}
	if !opts.IncludeInactive {
		filter["is_active"] = true
	}

	var models []planModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/mongo: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	m := toTransactionModel(t, nextSeq())
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, customerID id.ID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	order := -1
	if opts.Oldest {
		order = 1
	}

	var models []transactionModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: order}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) MarkTransactionsBilled(ctx context.Context, customerID id.ID, txnIDs []id.ID, at time.Time) error {
	if len(txnIDs) == 0 {
		return nil
	}
	ids := make([]string, len(txnIDs))
	for i, tid := range txnIDs {
		ids[i] = tid.String()
	}

	_, err := s.mdb.Collection(colTransactions).UpdateMany(ctx,
		bson.M{
			"customer_id": customerID.String(),
			"_id":         bson.M{"$in": ids},
			"status":      string(transaction.StatusUnbilled),
		},
		bson.M{"$set": bson.M{
			"status":     string(transaction.StatusBilled),
			"updated_at": at.UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("billing/mongo: mark transactions billed: %w", err)
	}
	return nil
}

func (s *Store) DeleteTransactions(ctx context.Context, customerID id.ID) (int64, error) {
	res, err := s.mdb.Collection(colTransactions).DeleteMany(ctx, bson.M{"customer_id": customerID.String()})
	if err != nil {
		return 0, fmt.Errorf("billing/mongo: delete transactions: %w", err)
	}
	return res.DeletedCount, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv, nextSeq())
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.ID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.ID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.ID, paidAt time.Time) error {
	at := paidAt.UTC()
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Set("status", string(invoice.StatusPaid)).
		Set("paid_at", at).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) MarkUnpaidInvoicesPaid(ctx context.Context, customerID id.ID, paidAt time.Time) (int64, error) {
	at := paidAt.UTC()
	res, err := s.mdb.Collection(colInvoices).UpdateMany(ctx,
		bson.M{"customer_id": customerID.String(), "status": string(invoice.StatusUnpaid)},
		bson.M{"$set": bson.M{
			"status":     string(invoice.StatusPaid),
			"paid_at":    at,
			"updated_at": at,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("billing/mongo: mark unpaid invoices paid: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) DeleteInvoices(ctx context.Context, customerID id.ID) (int64, error) {
	res, err := s.mdb.Collection(colInvoices).DeleteMany(ctx, bson.M{"customer_id": customerID.String()})
	if err != nil {
		return 0, fmt.Errorf("billing/mongo: delete invoices: %w", err)
	}
	return res.DeletedCount, nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p, nextSeq())
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, customerID id.ID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"customer_id": customerID.String()}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

var lastSeq atomic.Int64

// nextSeq returns a strictly increasing insertion sequence for this process.
func nextSeq() int64 {
	for {
		last := lastSeq.Load()
		next := max(time.Now().UnixNano(), last+1)
		if lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// contactFilter matches a customer by case-insensitive email or exact
// phone. It returns nil when both are empty.
func contactFilter(email, phone string) bson.M {
	var or bson.A
	if email != "" {
		or = append(or, bson.M{"email_key": strings.ToLower(email)})
	}
	if phone != "" {
		or = append(or, bson.M{"phone": phone})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}

// renewalFilter matches on the indexed projection and confirms it against
// the active assignment, so a stale projection never selects a customer.
func renewalFilter(from, to time.Time) bson.M {
	window := bson.M{"$gte": from.UTC(), "$lt": to.UTC()}
	return bson.M{
		"renewal_date": window,
		"assignments": bson.M{"$elemMatch": bson.M{
			"is_active":    true,
			"renewal_date": window,
		}},
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all billing collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{
				Keys:    bson.D{{Key: "email_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "phone", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "renewal_date", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colPlans: {
			{Keys: bson.D{{Key: "is_active", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
