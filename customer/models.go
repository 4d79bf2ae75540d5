// Package customer models the billing account aggregate: balances, the
// ordered history of plan assignments and the pending plan-change marker.
package customer

import (
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/types"
)

// PaymentType decides when charges are rolled into an invoice.
type PaymentType string

const (
	Prepaid  PaymentType = "Prepaid"
	Postpaid PaymentType = "Postpaid"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	return p == Prepaid || p == Postpaid
}

// Customer is the consistency boundary for every billing operation. At most
// one element of Assignments is active at any time.
type Customer struct {
	types.Entity
	ID          id.ID       `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Region      string      `json:"region,omitempty"`
	Currency    string      `json:"currency"`
	PaymentType PaymentType `json:"payment_type"`
	// TaxRate is a whole percentage.
	TaxRate int64 `json:"tax_rate"`

	// CurrentBalance is available credit when positive and accrued debt
	// when negative.
	CurrentBalance int64 `json:"current_balance"`
	// OutstandingBalance is the sum of unpaid invoice totals.
	OutstandingBalance int64 `json:"outstanding_balance"`

	CanOveruseInterviews bool `json:"can_overuse_interviews"`
	// InterviewRate overrides the catalog rate of PayAsYouGo plans when > 0.
	InterviewRate int64 `json:"interview_rate,omitempty"`

	Assignments   []Assignment   `json:"pricing_plans"`
	ChangeRequest *ChangeRequest `json:"change_plan_request,omitempty"`

	// Version increases on every successful write and guards against lost
	// updates.
	Version int64 `json:"version"`
}

// Assignment binds a plan snapshot to a customer for one or more periods.
type Assignment struct {
	ID          id.ID         `json:"id"`
	Plan        plan.Snapshot `json:"plan"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	IsActive    bool          `json:"is_active"`
	RenewalDate time.Time     `json:"renewal_date"`
	IsProRated  bool          `json:"is_pro_rated"`

	// Package usage counters.
	InterviewsUsed           int64 `json:"interviews_used"`
	AdditionalInterviewsUsed int64 `json:"additional_interviews_used"`
}

// ChangeRequest records a plan change that takes effect at the next renewal.
type ChangeRequest struct {
	IsActive    bool      `json:"is_active"`
	PlanID      id.ID     `json:"plan_id"`
	RequestedAt time.Time `json:"requested_date"`
}

// ListOpts pages through customers, newest first.
type ListOpts struct {
	Limit  int
	Offset int
}

// ActiveAssignment returns the active assignment, or nil. The pointer refers
// into c.Assignments so counter updates land on the customer.
func (c *Customer) ActiveAssignment() *Assignment {
	for i := range c.Assignments {
		if c.Assignments[i].IsActive {
			return &c.Assignments[i]
		}
	}
	return nil
}

// Deactivate end-dates the active assignment, if any.
func (c *Customer) Deactivate(now time.Time) {
	if a := c.ActiveAssignment(); a != nil {
		end := now
		a.IsActive = false
		a.EndDate = &end
	}
}

// Activate closes any active assignment and appends a, making it the only
// active one.
func (c *Customer) Activate(a Assignment, now time.Time) *Assignment {
	c.Deactivate(now)
	a.IsActive = true
	a.EndDate = nil
	c.Assignments = append(c.Assignments, a)
	return &c.Assignments[len(c.Assignments)-1]
}

// PendingChange returns the active change request, or nil.
func (c *Customer) PendingChange() *ChangeRequest {
	if c.ChangeRequest != nil && c.ChangeRequest.IsActive {
		return c.ChangeRequest
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Customer) Clone() *Customer {
	cp := *c
	if c.Assignments != nil {
		cp.Assignments = make([]Assignment, len(c.Assignments))
		for i, a := range c.Assignments {
			a.Plan = a.Plan.Clone()
			if a.EndDate != nil {
				end := *a.EndDate
				a.EndDate = &end
			}
			cp.Assignments[i] = a
		}
	}
	if c.ChangeRequest != nil {
		req := *c.ChangeRequest
		cp.ChangeRequest = &req
	}
	return &cp
}
