// Package invoice defines invoices: billing sweeps of unbilled ledger
// entries and receipts for balance top-ups.
package invoice

import (
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/types"
)

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Kind separates swept bills from top-up receipts.
type Kind string

const (
	KindBill  Kind = "bill"
	KindTopUp Kind = "top_up"
)

// DueAfter is how long a customer has to settle a bill.
const DueAfter = 30 * 24 * time.Hour

type Invoice struct {
	types.Entity
	ID             id.ID      `json:"id"`
	CustomerID     id.ID      `json:"customer_id"`
	Kind           Kind       `json:"kind"`
	Status         Status     `json:"status"`
	Currency       string     `json:"currency"`
	IssuedDate     time.Time  `json:"issued_date"`
	DueDate        time.Time  `json:"due_date"`
	TotalAmount    int64      `json:"total_amount"`
	TotalPrice     int64      `json:"total_price"`
	TotalTax       int64      `json:"total_tax"`
	LineItems      []LineItem `json:"line_items"`
	TransactionIDs []id.ID    `json:"transaction_ids,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type LineItem struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// IsPaid reports whether the invoice has been settled.
func (inv *Invoice) IsPaid() bool {
	return inv.Status == StatusPaid
}

// Clone returns a deep copy of the invoice.
func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	cp.LineItems = append([]LineItem(nil), inv.LineItems...)
	cp.TransactionIDs = append([]id.ID(nil), inv.TransactionIDs...)
	if inv.PaidAt != nil {
		at := *inv.PaidAt
		cp.PaidAt = &at
	}
	return &cp
}

// ListOpts filters a customer's invoices, newest first.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
