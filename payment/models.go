// Package payment records bill settlements. Payments are bookkeeping only;
// no external charge is placed.
package payment

import (
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/types"
)

type Status string

const StatusCompleted Status = "completed"

type Payment struct {
	types.Entity
	ID         id.ID  `json:"id"`
	CustomerID id.ID  `json:"customer_id"`
	InvoiceID  id.ID  `json:"invoice_id"`
	Amount     int64  `json:"amount"`
	Status     Status `json:"status"`
}
