package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/store"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

var (
	emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
	phonePattern = regexp.MustCompile(`^(\([0-9]{3}\) ?|[0-9]{3}-?)[0-9]{3}-?[0-9]{4}$`)
)

// CreateCustomerInput holds the signup fields of a customer. Zero values of
// Currency and PaymentType, and a nil TaxRate, take the engine defaults.
type CreateCustomerInput struct {
	Name                 string
	Email                string
	Phone                string
	Region               string
	Currency             string
	PaymentType          customer.PaymentType
	TaxRate              *int64
	InterviewRate        int64
	CanOveruseInterviews bool
}

// UpdateCustomerInput changes account settings. Nil fields are left alone.
type UpdateCustomerInput struct {
	Name                 *string
	Region               *string
	PaymentType          *customer.PaymentType
	TaxRate              *int64
	InterviewRate        *int64
	CanOveruseInterviews *bool
}

// CreateCustomer opens a billing account with zero balances and no plan.
func (e *Engine) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*customer.Customer, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	var errs MultiError
	if strings.TrimSpace(in.Name) == "" {
		errs.Add(ValidationError{Field: "name", Message: "is required"})
	}
	if !emailPattern.MatchString(in.Email) {
		errs.Add(ValidationError{Field: "email", Message: "is not a valid email address"})
	}
	if !phonePattern.MatchString(in.Phone) {
		errs.Add(ValidationError{Field: "phone", Message: "is not a valid phone number"})
	}
	if in.PaymentType != "" && !in.PaymentType.Valid() {
		errs.Add(ValidationError{Field: "payment_type", Message: "must be Prepaid or Postpaid"})
	}
	if in.TaxRate != nil && *in.TaxRate < 0 {
		errs.Add(ValidationError{Field: "tax_rate", Message: "must not be negative"})
	}
	if in.InterviewRate < 0 {
		errs.Add(ValidationError{Field: "interview_rate", Message: "must not be negative"})
	}
	if errs.HasErrors() {
		return nil, errs
	}

	now := e.clock.Now()
	c := &customer.Customer{
		Entity:               types.NewEntity(now),
		ID:                   id.NewCustomerID(),
		Name:                 strings.TrimSpace(in.Name),
		Email:                in.Email,
		Phone:                in.Phone,
		Region:               in.Region,
		Currency:             e.defaults.Currency,
		PaymentType:          e.defaults.PaymentType,
		TaxRate:              e.defaults.TaxRate,
		InterviewRate:        in.InterviewRate,
		CanOveruseInterviews: in.CanOveruseInterviews,
	}
	if in.Currency != "" {
		c.Currency = in.Currency
	}
	if in.PaymentType != "" {
		c.PaymentType = in.PaymentType
	}
	if in.TaxRate != nil {
		c.TaxRate = *in.TaxRate
	}

	bctx, cancel := e.bound(ctx)
	defer cancel()

	err := e.store.Atomic(bctx, func(txCtx context.Context, tx store.Store) error {
		_, err := tx.FindCustomerByContact(txCtx, c.Email, c.Phone)
		switch {
		case err == nil:
			return ErrCustomerExists
		case !errors.Is(err, ErrCustomerNotFound):
			return err
		}
		return tx.CreateCustomer(txCtx, c)
	})
	if errors.Is(err, ErrAlreadyExists) {
		err = ErrCustomerExists
	}
	if err != nil {
		return nil, fmt.Errorf("billing: create customer: %w", err)
	}

	e.plugins.EmitCustomerCreated(ctx, c.Clone())
	e.logger.Info("customer created",
		"customer_id", c.ID.String(),
		"payment_type", string(c.PaymentType),
	)
	return c, nil
}

// GetCustomer returns a customer by id.
func (e *Engine) GetCustomer(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	return e.store.GetCustomer(ctx, customerID)
}

// ListCustomers returns customers, newest first.
func (e *Engine) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	return e.store.ListCustomers(ctx, opts)
}

// UpdateCustomer applies account setting changes.
func (e *Engine) UpdateCustomer(ctx context.Context, customerID id.ID, in UpdateCustomerInput) (*customer.Customer, error) {
	var errs MultiError
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		errs.Add(ValidationError{Field: "name", Message: "is required"})
	}
	if in.PaymentType != nil && !in.PaymentType.Valid() {
		errs.Add(ValidationError{Field: "payment_type", Message: "must be Prepaid or Postpaid"})
	}
	if in.TaxRate != nil && *in.TaxRate < 0 {
		errs.Add(ValidationError{Field: "tax_rate", Message: "must not be negative"})
	}
	if in.InterviewRate != nil && *in.InterviewRate < 0 {
		errs.Add(ValidationError{Field: "interview_rate", Message: "must not be negative"})
	}
	if errs.HasErrors() {
		return nil, errs
	}

	var out *customer.Customer
	err := e.mutate(ctx, "update customer", customerID, func(u *unit) error {
		c := u.cust
		if in.Name != nil {
			c.Name = strings.TrimSpace(*in.Name)
		}
		if in.Region != nil {
			c.Region = *in.Region
		}
		if in.PaymentType != nil {
			c.PaymentType = *in.PaymentType
		}
		if in.TaxRate != nil {
			c.TaxRate = *in.TaxRate
		}
		if in.InterviewRate != nil {
			c.InterviewRate = *in.InterviewRate
		}
		if in.CanOveruseInterviews != nil {
			c.CanOveruseInterviews = *in.CanOveruseInterviews
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// ResetAccount wipes the customer's ledger and invoices, zeroes both
// balances and clears plan history and any pending change. Payments are kept
// as the record of money received. Any failure leaves the account untouched.
func (e *Engine) ResetAccount(ctx context.Context, customerID id.ID) error {
	var txns, invs int64
	err := e.mutate(ctx, "reset account", customerID, func(u *unit) error {
		var err error
		if txns, err = u.tx.DeleteTransactions(u.ctx, customerID); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if invs, err = u.tx.DeleteInvoices(u.ctx, customerID); err != nil {
			return fmt.Errorf("delete invoices: %w", err)
		}

		c := u.cust
		c.CurrentBalance = 0
		c.OutstandingBalance = 0
		c.Assignments = nil
		c.ChangeRequest = nil

		u.emit(func(ctx context.Context) { e.plugins.EmitAccountReset(ctx, customerID) })
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Warn("customer account reset",
		"customer_id", customerID.String(),
		"transactions_deleted", txns,
		"invoices_deleted", invs,
	)
	return nil
}

// State returns the customer's derived plan-lifecycle state.
func (e *Engine) State(ctx context.Context, customerID id.ID) (customer.State, error) {
	c, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return c.State(), nil
}

// GetActivePlan returns the customer's active assignment.
func (e *Engine) GetActivePlan(ctx context.Context, customerID id.ID) (*customer.Assignment, error) {
	c, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	a := c.ActiveAssignment()
	if a == nil {
		return nil, ErrNoActivePlan
	}
	out := cloneAssignment(a)
	return &out, nil
}

// ListTransactions returns the customer's ledger, newest first unless
// opts.Oldest is set.
func (e *Engine) ListTransactions(ctx context.Context, customerID id.ID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return e.store.ListTransactions(ctx, customerID, opts)
}

// ListInvoices returns the customer's invoices, newest first.
func (e *Engine) ListInvoices(ctx context.Context, customerID id.ID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return e.store.ListInvoices(ctx, customerID, opts)
}

// ListPayments returns the customer's payments, newest first.
func (e *Engine) ListPayments(ctx context.Context, customerID id.ID) ([]*payment.Payment, error) {
	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return e.store.ListPayments(ctx, customerID)
}
