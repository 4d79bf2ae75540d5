package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newBuilderStore returns a store over an unconnected driver; queries can
// be built but not executed.
func newBuilderStore(inTx bool) *Store {
	pg := pgdriver.New()
	return &Store{
		pg:     pg,
		q:      pg,
		inTx:   inTx,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func sampleCustomer() *customer.Customer {
	c := &customer.Customer{
		Entity:         types.NewEntity(now),
		ID:             id.NewCustomerID(),
		Name:           "Acme",
		Email:          "ops@acme.io",
		Phone:          "555-123-4567",
		Currency:       "INR",
		PaymentType:    customer.Prepaid,
		TaxRate:        18,
		CurrentBalance: -118,
		Version:        3,
	}
	c.Activate(customer.Assignment{
		ID: id.NewAssignmentID(),
		Plan: plan.Snapshot{
			PlanID:  id.NewPlanID(),
			Name:    "Starter",
			Type:    plan.TypePackage,
			Package: &plan.PackageTerms{Price: 1000, Validity: plan.ValidityMonthly, InterviewsPerQuota: 30, AdditionalInterviewRate: 50},
		},
		StartDate:   now,
		RenewalDate: now.AddDate(0, 1, 0),
	}, now)
	return c
}

// ==================== Query builders ====================

func TestSelectCustomerLocksInsideTransaction(t *testing.T) {
	customerID := id.NewCustomerID()

	tests := []struct {
		name     string
		inTx     bool
		wantLock bool
	}{
		{"outside a transaction", false, false},
		{"inside a transaction", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newBuilderStore(tt.inTx)

			sql, args, err := s.selectCustomer(new(customerModel), customerID).Build()
			require.NoError(t, err)

			assert.Contains(t, sql, `FROM "billing_customers" WHERE id = $1`)
			assert.Equal(t, tt.wantLock, strings.HasSuffix(sql, " FOR UPDATE"), sql)
			assert.Equal(t, []any{customerID.String()}, args)
		})
	}
}

func TestUpdateCustomerIsVersionGuarded(t *testing.T) {
	s := newBuilderStore(true)
	c := sampleCustomer()

	m, err := toCustomerModel(c)
	require.NoError(t, err)
	m.Version = c.Version + 1

	sql, args, err := s.updateCustomer(m, c.Version).Build()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, `UPDATE "billing_customers" SET `), sql)
	assert.Contains(t, sql, `"version" = $`)
	assert.Contains(t, sql, `"renewal_date" = $`)
	assert.Regexp(t, regexp.MustCompile(`WHERE id = \$\d+ AND version = \$\d+$`), sql)
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, []any{c.ID.String(), int64(3)}, args[len(args)-2:])
	assert.Contains(t, args, int64(4), "the written row carries the next version")
}

func TestSelectByContact(t *testing.T) {
	tests := []struct {
		name         string
		email, phone string
		wantWhere    string
		wantArgs     []any
	}{
		{"email and phone", "Ops@Acme.io", "555", "WHERE lower(email) = lower($1) OR phone = $2", []any{"Ops@Acme.io", "555"}},
		{"email only", "ops@acme.io", "", "WHERE lower(email) = lower($1)", []any{"ops@acme.io"}},
		{"phone only", "", "555", "WHERE phone = $1", []any{"555"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newBuilderStore(false)

			sql, args, err := s.selectByContact(new(customerModel), tt.email, tt.phone).Build()
			require.NoError(t, err)

			assert.Contains(t, sql, tt.wantWhere+" LIMIT 1")
			assert.Equal(t, tt.wantArgs, args)
		})
	}

	t.Run("no contact", func(t *testing.T) {
		assert.Nil(t, newBuilderStore(false).selectByContact(new(customerModel), "", ""))
	})
}

func TestSelectRenewalsDueWindow(t *testing.T) {
	s := newBuilderStore(false)
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	to := from.Add(24 * time.Hour)

	var models []customerModel
	sql, args, err := s.selectRenewalsDue(&models, from, to).Build()
	require.NoError(t, err)

	assert.Equal(t, `SELECT id FROM "billing_customers" WHERE renewal_date >= $1 AND renewal_date < $2 ORDER BY id ASC`, sql)
	assert.Equal(t, []any{from.UTC(), to.UTC()}, args)
}

func TestSelectPlans(t *testing.T) {
	tests := []struct {
		name     string
		opts     plan.ListOpts
		contains string
		wantArgs []any
	}{
		{"active only", plan.ListOpts{}, "WHERE is_active = $1 ORDER BY id ASC", []any{true}},
		{"all with paging", plan.ListOpts{IncludeInactive: true, Limit: 5, Offset: 10}, `"billing_plans" ORDER BY id ASC LIMIT 5 OFFSET 10`, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var models []planModel
			sql, args, err := newBuilderStore(false).selectPlans(&models, tt.opts).Build()
			require.NoError(t, err)

			assert.Contains(t, sql, tt.contains)
			assert.ElementsMatch(t, tt.wantArgs, args)
		})
	}
}

func TestSelectTransactionsOrdering(t *testing.T) {
	customerID := id.NewCustomerID()

	tests := []struct {
		name     string
		opts     transaction.ListOpts
		contains string
		wantArgs []any
	}{
		{"newest first", transaction.ListOpts{}, "WHERE customer_id = $1 ORDER BY seq DESC", []any{customerID.String()}},
		{
			"oldest unbilled",
			transaction.ListOpts{Status: transaction.StatusUnbilled, Oldest: true},
			"WHERE customer_id = $1 AND status = $2 ORDER BY seq ASC",
			[]any{customerID.String(), string(transaction.StatusUnbilled)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var models []transactionModel
			sql, args, err := newBuilderStore(false).selectTransactions(&models, customerID, tt.opts).Build()
			require.NoError(t, err)

			assert.Contains(t, sql, tt.contains)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestMarkBilledOnlyTouchesUnbilled(t *testing.T) {
	s := newBuilderStore(true)
	customerID := id.NewCustomerID()
	txnIDs := []id.ID{id.NewTransactionID(), id.NewTransactionID()}

	sql, args, err := s.markBilled(customerID, txnIDs, now).Build()
	require.NoError(t, err)

	assert.Equal(t,
		`UPDATE "billing_transactions" SET status = $1, updated_at = $2 WHERE customer_id = $3 AND id = ANY($4) AND status = $5`,
		sql)
	assert.Equal(t, []any{
		string(transaction.StatusBilled),
		now,
		customerID.String(),
		[]string{txnIDs[0].String(), txnIDs[1].String()},
		string(transaction.StatusUnbilled),
	}, args)
}

// ==================== Models ====================

func TestCustomerModelRoundTrip(t *testing.T) {
	c := sampleCustomer()
	c.ChangeRequest = &customer.ChangeRequest{IsActive: true, PlanID: id.NewPlanID(), RequestedAt: now}

	m, err := toCustomerModel(c)
	require.NoError(t, err)
	require.NotNil(t, m.RenewalDate)
	assert.Equal(t, now.AddDate(0, 1, 0), *m.RenewalDate)

	got, err := fromCustomerModel(m)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Version, got.Version)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, c.Assignments[0].Plan.Package, got.Assignments[0].Plan.Package)
	require.NotNil(t, got.ChangeRequest)
	assert.Equal(t, c.ChangeRequest.PlanID, got.ChangeRequest.PlanID)
}

func TestCustomerModelClearsRenewalWithoutAssignment(t *testing.T) {
	c := sampleCustomer()
	c.Assignments = nil

	m, err := toCustomerModel(c)
	require.NoError(t, err)

	assert.Nil(t, m.RenewalDate)
	assert.Nil(t, m.ChangeRequest)
	assert.JSONEq(t, `[]`, string(m.Assignments))
}

func TestPlanModelKeepsTermsNullable(t *testing.T) {
	p := &plan.Plan{
		Entity:     types.NewEntity(now),
		ID:         id.NewPlanID(),
		Name:       "Metered",
		Type:       plan.TypePayAsYouGo,
		IsActive:   true,
		PayAsYouGo: &plan.PayAsYouGoTerms{InterviewRate: 40},
	}

	m := toPlanModel(p)
	assert.Nil(t, m.Package)
	assert.Equal(t, map[string]string{}, m.Metadata)

	got, err := fromPlanModel(m)
	require.NoError(t, err)
	assert.Nil(t, got.Package)
	require.NotNil(t, got.PayAsYouGo)
	assert.Equal(t, int64(40), got.PayAsYouGo.InterviewRate)
}

func TestInvoiceModelRoundTrip(t *testing.T) {
	paid := now.Add(time.Hour)
	inv := &invoice.Invoice{
		Entity:         types.NewEntity(now),
		ID:             id.NewInvoiceID(),
		CustomerID:     id.NewCustomerID(),
		Kind:           invoice.KindBill,
		Status:         invoice.StatusPaid,
		IssuedDate:     now,
		DueDate:        now.AddDate(0, 0, 15),
		TotalAmount:    1180,
		LineItems:      []invoice.LineItem{{Description: "Starter", Amount: 1180}},
		TransactionIDs: []id.ID{id.NewTransactionID()},
		PaidAt:         &paid,
	}

	got, err := fromInvoiceModel(toInvoiceModel(inv))
	require.NoError(t, err)
	assert.Equal(t, inv.TransactionIDs, got.TransactionIDs)
	assert.Equal(t, inv.LineItems, got.LineItems)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, paid, *got.PaidAt)
}

func TestFromTransactionModelRejectsForeignPrefix(t *testing.T) {
	m := toTransactionModel(&transaction.Transaction{
		Entity:     types.NewEntity(now),
		ID:         id.NewTransactionID(),
		CustomerID: id.NewCustomerID(),
	})
	m.CustomerID = id.NewPlanID().String()

	_, err := fromTransactionModel(m)
	assert.Error(t, err)
}

// ==================== Errors ====================

type sqlStateError struct{ code string }

func (e *sqlStateError) Error() string    { return "pg error " + e.code }
func (e *sqlStateError) SQLState() string { return e.code }

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&sqlStateError{code: "23505"}))
	assert.True(t, isUniqueViolation(errors.Join(errors.New("insert"), &sqlStateError{code: "23505"})))
	assert.False(t, isUniqueViolation(&sqlStateError{code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

// ==================== Migrations ====================

type recordingExecutor struct {
	migrate.Executor
	stmts []string
}

func (r *recordingExecutor) Exec(_ context.Context, query string, _ ...any) (driver.Result, error) {
	r.stmts = append(r.stmts, query)
	return nil, nil
}

func TestMigrationsCreateAndDropEveryTable(t *testing.T) {
	ms := Migrations.Migrations()
	require.Len(t, ms, 5)

	tables := []string{"billing_customers", "billing_plans", "billing_transactions", "billing_invoices", "billing_payments"}
	exec := &recordingExecutor{}
	for i, m := range ms {
		require.NoError(t, m.Up(context.Background(), exec))
		require.NoError(t, m.Down(context.Background(), exec))

		assert.Contains(t, exec.stmts[2*i], "CREATE TABLE IF NOT EXISTS "+tables[i])
		assert.Equal(t, "DROP TABLE IF EXISTS "+tables[i], exec.stmts[2*i+1])
	}
}

func TestMigrationExecutorRegistered(t *testing.T) {
	_, err := migrate.NewExecutorFor(pgdriver.New())
	assert.NoError(t, err)
}
