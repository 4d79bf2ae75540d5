package billing

import (
	"context"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

// ──────────────────────────────────────────────────
// Ledger writer
// ──────────────────────────────────────────────────

// taxOn returns the tax due on a net amount, rounded up.
func taxOn(amount, rate int64) int64 {
	if rate <= 0 || amount <= 0 {
		return 0
	}
	return (amount*rate + 99) / 100
}

// netOf removes tax from a gross amount, rounding the net part up so the
// tax portion never exceeds what taxOn would have charged.
func netOf(gross, rate int64) int64 {
	if rate <= 0 || gross <= 0 {
		return gross
	}
	return (gross*100 + (100 + rate) - 1) / (100 + rate)
}

// applyCharge debits amount plus tax from the customer's running balance.
//
// Whatever the balance can cover is recorded as a completed debit; the rest
// is recorded as an unbilled debit that drives the balance negative and is
// picked up by the next bill. A zero amount writes nothing.
func (e *Engine) applyCharge(u *unit, amount int64, typ transaction.Type, note string) ([]*transaction.Transaction, error) {
	if amount < 0 {
		return nil, ValidationError{Field: "amount", Message: "charge must not be negative"}
	}
	if amount == 0 {
		return nil, nil
	}

	c := u.cust
	rate := c.TaxRate
	tax := taxOn(amount, rate)
	total := amount + tax
	balance := c.CurrentBalance

	var written []*transaction.Transaction
	switch {
	case balance >= total:
		written = append(written, e.newTransaction(u, typ, transaction.StatusCompleted, transaction.Debit,
			transaction.Details{Price: amount, Tax: rate, CalculatedTax: tax, Amount: total, Note: note},
			balance, balance-total))

	case balance > 0:
		net := netOf(balance, rate)
		written = append(written, e.newTransaction(u, typ, transaction.StatusCompleted, transaction.Debit,
			transaction.Details{Price: net, Tax: rate, CalculatedTax: balance - net, Amount: balance, Note: note},
			balance, 0))

		remaining := total - balance
		written = append(written, e.newTransaction(u, typ, transaction.StatusUnbilled, transaction.Debit,
			transaction.Details{
				Price:         amount - net,
				Tax:           rate,
				CalculatedTax: remaining - (amount - net),
				Amount:        remaining,
				Note:          note,
			},
			0, -remaining))

	default:
		written = append(written, e.newTransaction(u, typ, transaction.StatusUnbilled, transaction.Debit,
			transaction.Details{Price: amount, Tax: rate, CalculatedTax: tax, Amount: total, Note: note},
			balance, balance-total))
	}

	for _, t := range written {
		if err := u.tx.CreateTransaction(u.ctx, t); err != nil {
			return nil, err
		}
	}
	c.CurrentBalance = written[len(written)-1].BalanceAfter

	u.emit(func(ctx context.Context) { e.plugins.EmitChargeApplied(ctx, written) })
	return written, nil
}

// applyCredit adds amount to the running balance as a single credit entry.
func (e *Engine) applyCredit(u *unit, amount int64, typ transaction.Type, status transaction.Status, note string) (*transaction.Transaction, error) {
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "credit must be positive"}
	}

	c := u.cust
	t := e.newTransaction(u, typ, status, transaction.Credit,
		transaction.Details{Price: amount, Amount: amount, Note: note},
		c.CurrentBalance, c.CurrentBalance+amount)
	if err := u.tx.CreateTransaction(u.ctx, t); err != nil {
		return nil, err
	}
	c.CurrentBalance = t.BalanceAfter

	u.emit(func(ctx context.Context) { e.plugins.EmitBalanceCredited(ctx, t) })
	return t, nil
}

func (e *Engine) newTransaction(
	u *unit,
	typ transaction.Type,
	status transaction.Status,
	dir transaction.Direction,
	details transaction.Details,
	before, after int64,
) *transaction.Transaction {
	return &transaction.Transaction{
		Entity:        types.NewEntity(u.now),
		ID:            id.NewTransactionID(),
		CustomerID:    u.cust.ID,
		Type:          typ,
		Status:        status,
		Direction:     dir,
		Details:       details,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
}
