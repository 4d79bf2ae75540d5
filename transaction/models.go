// Package transaction defines the append-only ledger entries that record
// every movement of a customer's running balance.
package transaction

import (
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/types"
)

// Type names the business event behind an entry.
type Type string

const (
	TypeAssignPackage             Type = "AssignPackage"
	TypeAssignPayAsYouGo          Type = "AssignPayAsYouGo"
	TypeInterviewCharge           Type = "InterviewCharge"
	TypeAdditionalInterviewCharge Type = "AdditionalInterviewCharge"
	TypePackageRenewal            Type = "PackageRenewal"
	TypeChangePlan                Type = "ChangePlan"
	TypeChangeBillingCycle        Type = "ChangeBillingCycle"
	TypeBillPaid                  Type = "BillPaid"
	TypeBonus                     Type = "Bonus"
	TypeTopUp                     Type = "TopUp"
)

// Status tracks an entry's billing. Only unbilled -> billed is a legal
// transition once written.
type Status string

const (
	StatusUnbilled    Status = "unbilled"
	StatusBilled      Status = "billed"
	StatusCompleted   Status = "completed"
	StatusPromoCredit Status = "promo_credit"
)

// Direction says whether the entry adds to or removes from the balance.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Details breaks an entry's Amount into its net price and tax.
type Details struct {
	Price int64 `json:"price"`
	// Tax is the rate in percent; CalculatedTax the resulting amount.
	Tax           int64  `json:"tax"`
	CalculatedTax int64  `json:"calculated_tax"`
	Amount        int64  `json:"amount"`
	Note          string `json:"note"`
}

// Transaction is one ledger entry.
type Transaction struct {
	types.Entity
	ID            id.ID     `json:"id"`
	CustomerID    id.ID     `json:"customer_id"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	Direction     Direction `json:"transaction_type"`
	Details       Details   `json:"details"`
	BalanceBefore int64     `json:"before_update_current_balance"`
	BalanceAfter  int64     `json:"after_update_current_balance"`
}

// ListOpts filters a customer's ledger. Results are newest first unless
// Oldest is set.
type ListOpts struct {
	Status Status
	Oldest bool
	Limit  int
	Offset int
}
