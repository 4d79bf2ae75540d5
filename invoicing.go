package billing

import (
	"context"
	"fmt"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

// GenerateBill sweeps the customer's unbilled ledger entries into one unpaid
// invoice and adds its total to the outstanding balance. It returns nil
// without error when nothing is unbilled.
func (e *Engine) GenerateBill(ctx context.Context, customerID id.ID) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := e.mutate(ctx, "generate bill", customerID, func(u *unit) error {
		generated, err := e.generateBill(u)
		if err != nil {
			return err
		}
		if generated != nil {
			inv = generated.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (e *Engine) generateBill(u *unit) (*invoice.Invoice, error) {
	c := u.cust
	unbilled, err := u.tx.ListTransactions(u.ctx, c.ID, transaction.ListOpts{
		Status: transaction.StatusUnbilled,
		Oldest: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list unbilled: %w", err)
	}
	if len(unbilled) == 0 {
		return nil, nil
	}

	var (
		totalAmount, totalPrice, totalTax int64
		ids                               = make([]id.ID, 0, len(unbilled))
		order                             []transaction.Type
		perType                           = make(map[transaction.Type]int64)
	)
	for _, t := range unbilled {
		totalAmount += t.Details.Amount
		totalPrice += t.Details.Price
		totalTax += t.Details.CalculatedTax
		ids = append(ids, t.ID)

		if _, seen := perType[t.Type]; !seen {
			order = append(order, t.Type)
		}
		perType[t.Type] += t.Details.Price
	}

	items := make([]invoice.LineItem, 0, len(order)+1)
	for _, typ := range order {
		items = append(items, invoice.LineItem{Description: transaction.Note(typ), Amount: perType[typ]})
	}
	items = append(items, invoice.LineItem{
		Description: fmt.Sprintf("Tax (%d%%)", c.TaxRate),
		Amount:      totalTax,
	})

	inv := &invoice.Invoice{
		Entity:         types.NewEntity(u.now),
		ID:             id.NewInvoiceID(),
		CustomerID:     c.ID,
		Kind:           invoice.KindBill,
		Status:         invoice.StatusUnpaid,
		Currency:       c.Currency,
		IssuedDate:     u.now,
		DueDate:        u.now.Add(invoice.DueAfter),
		TotalAmount:    totalAmount,
		TotalPrice:     totalPrice,
		TotalTax:       totalTax,
		LineItems:      items,
		TransactionIDs: ids,
	}
	if err := u.tx.CreateInvoice(u.ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	if err := u.tx.MarkTransactionsBilled(u.ctx, c.ID, ids, u.now); err != nil {
		return nil, fmt.Errorf("mark billed: %w", err)
	}
	c.OutstandingBalance += totalAmount

	snapshot := inv.Clone()
	u.emit(func(ctx context.Context) { e.plugins.EmitInvoiceGenerated(ctx, snapshot) })
	return inv, nil
}
