package billing

import (
	"context"
	"fmt"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

// TopUp credits amount to the customer's running balance and issues a paid
// receipt for it. When the customer owes money the top-up must cover the
// whole outstanding balance, which is then cleared along with every unpaid
// invoice.
func (e *Engine) TopUp(ctx context.Context, customerID id.ID, amount int64) (*invoice.Invoice, error) {
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	var receipt *invoice.Invoice
	err := e.mutate(ctx, "top up", customerID, func(u *unit) error {
		if err := e.settleOutstanding(u, amount); err != nil {
			return err
		}

		c := u.cust
		paidAt := u.now
		inv := &invoice.Invoice{
			Entity:      types.NewEntity(u.now),
			ID:          id.NewInvoiceID(),
			CustomerID:  c.ID,
			Kind:        invoice.KindTopUp,
			Status:      invoice.StatusPaid,
			Currency:    c.Currency,
			IssuedDate:  u.now,
			DueDate:     u.now,
			TotalAmount: amount,
			TotalPrice:  amount,
			LineItems:   []invoice.LineItem{{Description: "Top Up", Amount: amount}},
			PaidAt:      &paidAt,
		}
		if err := u.tx.CreateInvoice(u.ctx, inv); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}

		if _, err := e.applyCredit(u, amount, transaction.TypeTopUp, transaction.StatusCompleted,
			transaction.Note(transaction.TypeTopUp)); err != nil {
			return err
		}

		receipt = inv.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("balance topped up",
		"customer_id", customerID.String(),
		"amount", amount,
	)
	return receipt, nil
}

// BonusTopUp credits promotional balance. It carries the same outstanding
// balance precondition as TopUp but issues no receipt.
func (e *Engine) BonusTopUp(ctx context.Context, customerID id.ID, amount int64) (*transaction.Transaction, error) {
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}

	var out transaction.Transaction
	err := e.mutate(ctx, "bonus top up", customerID, func(u *unit) error {
		t, err := e.bonus(u, amount)
		if err != nil {
			return err
		}
		out = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Engine) bonus(u *unit, amount int64) (*transaction.Transaction, error) {
	if err := e.settleOutstanding(u, amount); err != nil {
		return nil, err
	}
	return e.applyCredit(u, amount, transaction.TypeBonus, transaction.StatusPromoCredit,
		transaction.Note(transaction.TypeBonus))
}

// settleOutstanding bills everything accrued so far and, if the customer then
// owes money, requires amount to cover it and marks every unpaid invoice
// paid.
func (e *Engine) settleOutstanding(u *unit, amount int64) error {
	if _, err := e.generateBill(u); err != nil {
		return err
	}

	c := u.cust
	if c.OutstandingBalance <= 0 {
		return nil
	}
	if amount < c.OutstandingBalance {
		return fmt.Errorf("%w: %d is less than %d", ErrInsufficientTopUp, amount, c.OutstandingBalance)
	}

	if _, err := u.tx.MarkUnpaidInvoicesPaid(u.ctx, c.ID, u.now); err != nil {
		return fmt.Errorf("mark invoices paid: %w", err)
	}
	c.OutstandingBalance = 0
	return nil
}

// PayBill settles one unpaid invoice: it records a payment, moves the
// invoice total from the outstanding balance back to the running balance and
// marks the invoice paid.
func (e *Engine) PayBill(ctx context.Context, customerID, invoiceID id.ID) (*payment.Payment, error) {
	var out payment.Payment
	err := e.mutate(ctx, "pay bill", customerID, func(u *unit) error {
		c := u.cust
		inv, err := u.tx.GetInvoice(u.ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.CustomerID.String() != c.ID.String() {
			return ErrInvoiceNotFound
		}
		if inv.IsPaid() {
			return ErrInvoicePaid
		}

		p := &payment.Payment{
			Entity:     types.NewEntity(u.now),
			ID:         id.NewPaymentID(),
			CustomerID: c.ID,
			InvoiceID:  inv.ID,
			Amount:     inv.TotalAmount,
			Status:     payment.StatusCompleted,
		}
		if err := u.tx.CreatePayment(u.ctx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		c.OutstandingBalance = max(c.OutstandingBalance-inv.TotalAmount, 0)
		if inv.TotalAmount > 0 {
			if _, err := e.applyCredit(u, inv.TotalAmount, transaction.TypeBillPaid, transaction.StatusBilled,
				transaction.NoteFor(transaction.TypeBillPaid, inv.ID.String())); err != nil {
				return err
			}
		}
		if err := u.tx.MarkInvoicePaid(u.ctx, inv.ID, u.now); err != nil {
			return fmt.Errorf("mark invoice paid: %w", err)
		}

		paidAt := u.now
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &paidAt
		out = *p

		settled, receipt := inv.Clone(), *p
		u.emit(func(ctx context.Context) { e.plugins.EmitInvoicePaid(ctx, settled, &receipt) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
