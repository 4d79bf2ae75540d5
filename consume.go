package billing

import (
	"context"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/transaction"
)

// Consume meters one interview against the active assignment.
//
// A Package plan counts the interview against its quota and charges the
// additional rate once the quota is used up. A PayAsYouGo plan always
// charges its rate. A customer without an active plan cannot consume,
// whatever CanOveruseInterviews says.
func (e *Engine) Consume(ctx context.Context, customerID id.ID) (*customer.Assignment, error) {
	var out customer.Assignment
	err := e.mutate(ctx, "consume", customerID, func(u *unit) error {
		a := u.cust.ActiveAssignment()
		if a == nil {
			return ErrNoActivePlan
		}

		charged := false
		switch {
		case a.Plan.Package != nil:
			terms := a.Plan.Package
			if a.InterviewsUsed < terms.InterviewsPerQuota {
				a.InterviewsUsed++
				break
			}
			a.AdditionalInterviewsUsed++
			note := transaction.NoteFor(transaction.TypeAdditionalInterviewCharge, a.Plan.Name)
			if _, err := e.applyCharge(u, terms.AdditionalInterviewRate, transaction.TypeAdditionalInterviewCharge, note); err != nil {
				return err
			}
			charged = terms.AdditionalInterviewRate > 0

		case a.Plan.PayAsYouGo != nil:
			note := transaction.NoteFor(transaction.TypeInterviewCharge, a.Plan.Name)
			if _, err := e.applyCharge(u, a.Plan.PayAsYouGo.InterviewRate, transaction.TypeInterviewCharge, note); err != nil {
				return err
			}
			charged = a.Plan.PayAsYouGo.InterviewRate > 0
		}

		out = cloneAssignment(a)
		snapshot := cloneAssignment(a)
		u.emit(func(ctx context.Context) { e.plugins.EmitUsageConsumed(ctx, customerID, &snapshot, charged) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
