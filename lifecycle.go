package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/billing/clock"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/proration"
	"github.com/xraph/billing/transaction"
)

// AssignPlanInput describes a plan assignment.
type AssignPlanInput struct {
	PlanID id.ID
	// ProRated resizes a Package plan to the days left until
	// ProRatedEndDate, which also becomes the renewal date.
	ProRated        bool
	ProRatedEndDate time.Time
	// Bonus is credited as promotional balance before the plan is charged.
	Bonus int64
}

// AssignPlan gives a customer without an active plan its first assignment.
// Package plans are charged immediately; Prepaid customers are billed for the
// charge in the same unit of work.
func (e *Engine) AssignPlan(ctx context.Context, customerID id.ID, in AssignPlanInput) (*customer.Assignment, error) {
	if in.Bonus < 0 {
		return nil, ValidationError{Field: "bonus", Message: "must not be negative"}
	}

	var out customer.Assignment
	err := e.mutate(ctx, "assign plan", customerID, func(u *unit) error {
		if u.cust.ActiveAssignment() != nil {
			return ErrActivePlanExists
		}

		p, err := e.assignablePlan(u, in.PlanID)
		if err != nil {
			return err
		}

		if in.Bonus > 0 {
			if _, err := e.bonus(u, in.Bonus); err != nil {
				return err
			}
		}

		next, err := e.newAssignment(u, p, in.ProRated, in.ProRatedEndDate)
		if err != nil {
			return err
		}

		if terms := next.Plan.Package; terms != nil {
			note := transaction.NoteFor(transaction.TypeAssignPackage, next.Plan.Name)
			if _, err := e.applyCharge(u, terms.Price, transaction.TypeAssignPackage, note); err != nil {
				return err
			}
			if u.cust.PaymentType == customer.Prepaid {
				if _, err := e.generateBill(u); err != nil {
					return err
				}
			}
		}

		active := u.cust.Activate(next, u.now)
		out = cloneAssignment(active)

		assigned := cloneAssignment(active)
		u.emit(func(ctx context.Context) { e.plugins.EmitPlanAssigned(ctx, customerID, &assigned) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("plan assigned",
		"customer_id", customerID.String(),
		"plan_id", in.PlanID.String(),
		"pro_rated", in.ProRated,
	)
	return &out, nil
}

// RenewPlan runs the renewal of the customer's active assignment. A pending
// plan change is executed instead of a renewal. A pro-rated assignment is
// replaced by a full-period assignment of the same catalog plan. Otherwise a
// PayAsYouGo plan is billed and a Package plan has its quota reset and is
// charged for the next period.
//
// A Package is due from the start of its renewal day, so a sweep early in
// the day renews assignments made later in the day. Renewing a Package, or
// executing a change away from one, before that day fails with
// ErrRenewalNotDue and changes nothing.
func (e *Engine) RenewPlan(ctx context.Context, customerID id.ID) (*customer.Assignment, error) {
	var out customer.Assignment
	err := e.mutate(ctx, "renew plan", customerID, func(u *unit) error {
		current := u.cust.ActiveAssignment()
		if current == nil {
			return ErrNoActivePlan
		}

		if current.Plan.Package != nil && !current.IsProRated && !renewalDue(current, u.now) {
			return notDue(current)
		}

		var (
			renewed *customer.Assignment
			err     error
		)

		switch {
		case u.cust.PendingChange() != nil:
			renewed, err = e.executeChange(u, current, u.cust.PendingChange())
		case current.IsProRated:
			renewed, err = e.renewProRated(u, current)
		case current.Plan.PayAsYouGo != nil:
			if _, err = e.generateBill(u); err == nil {
				renewed = current
			}
		default:
			renewed, err = e.renewPackage(u, current)
		}
		if err != nil {
			return err
		}

		out = cloneAssignment(renewed)
		snapshot := cloneAssignment(renewed)
		u.emit(func(ctx context.Context) { e.plugins.EmitPlanRenewed(ctx, customerID, &snapshot) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// renewalDue reports whether a renews on or before the calendar day of now.
func renewalDue(a *customer.Assignment, now time.Time) bool {
	return a.RenewalDate.Before(clock.StartOfDay(now).Add(24 * time.Hour))
}

func notDue(a *customer.Assignment) error {
	return fmt.Errorf("%w: renews on %s", ErrRenewalNotDue, a.RenewalDate.Format(time.DateOnly))
}

// renewPackage resets the quota and charges the next period. Callers check
// that the renewal is due.
func (e *Engine) renewPackage(u *unit, a *customer.Assignment) (*customer.Assignment, error) {
	terms := a.Plan.Package
	a.InterviewsUsed = 0
	a.AdditionalInterviewsUsed = 0
	a.RenewalDate = terms.Validity.Advance(a.RenewalDate)

	note := transaction.NoteFor(transaction.TypePackageRenewal, a.Plan.Name)
	if err := e.chargeWithBilling(u, terms.Price, transaction.TypePackageRenewal, note); err != nil {
		return nil, err
	}
	return a, nil
}

// renewProRated closes a pro-rated assignment and reissues the catalog plan
// for a full period.
func (e *Engine) renewProRated(u *unit, a *customer.Assignment) (*customer.Assignment, error) {
	p, err := u.tx.GetPlan(u.ctx, a.Plan.PlanID)
	if err != nil {
		return nil, err
	}

	next, err := e.newAssignment(u, p, false, time.Time{})
	if err != nil {
		return nil, err
	}

	if terms := next.Plan.Package; terms != nil {
		note := transaction.NoteFor(transaction.TypePackageRenewal, next.Plan.Name)
		if err := e.chargeWithBilling(u, terms.Price, transaction.TypePackageRenewal, note); err != nil {
			return nil, err
		}
	} else if _, err := e.generateBill(u); err != nil {
		return nil, err
	}

	return u.cust.Activate(next, u.now), nil
}

// executeChange realizes a pending plan change. The target was checked when
// the change was requested, so a plan deactivated since is still honored. A
// Package target is charged; a PayAsYouGo target bills what the closing
// period accrued.
func (e *Engine) executeChange(u *unit, current *customer.Assignment, req *customer.ChangeRequest) (*customer.Assignment, error) {
	p, err := u.tx.GetPlan(u.ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if current.Plan.Type == plan.TypePayAsYouGo && p.Type == plan.TypePayAsYouGo {
		return nil, ErrUnsupportedPlanChange
	}

	next, err := e.newAssignment(u, p, false, time.Time{})
	if err != nil {
		return nil, err
	}

	if terms := next.Plan.Package; terms != nil {
		note := transaction.NoteFor(transaction.TypeChangePlan, next.Plan.Name)
		if err := e.chargeWithBilling(u, terms.Price, transaction.TypeChangePlan, note); err != nil {
			return nil, err
		}
	} else if _, err := e.generateBill(u); err != nil {
		return nil, err
	}

	from := current.Plan.Clone()
	req.IsActive = false
	active := u.cust.Activate(next, u.now)

	to := cloneAssignment(active)
	customerID := u.cust.ID
	u.emit(func(ctx context.Context) { e.plugins.EmitPlanChanged(ctx, customerID, from, &to) })

	e.logger.Info("plan changed",
		"customer_id", customerID.String(),
		"from_plan", from.PlanID.String(),
		"to_plan", p.ID.String(),
	)
	return active, nil
}

// chargeWithBilling applies a period charge. Postpaid customers are billed
// for what they accrued before the charge; Prepaid customers are billed for
// the charge itself.
func (e *Engine) chargeWithBilling(u *unit, amount int64, typ transaction.Type, note string) error {
	postpaid := u.cust.PaymentType == customer.Postpaid
	if postpaid {
		if _, err := e.generateBill(u); err != nil {
			return err
		}
	}
	if _, err := e.applyCharge(u, amount, typ, note); err != nil {
		return err
	}
	if !postpaid {
		if _, err := e.generateBill(u); err != nil {
			return err
		}
	}
	return nil
}

// RequestPlanChange schedules a switch to planID at the next renewal. The
// active assignment is left untouched.
func (e *Engine) RequestPlanChange(ctx context.Context, customerID, planID id.ID) error {
	return e.mutate(ctx, "request plan change", customerID, func(u *unit) error {
		current := u.cust.ActiveAssignment()
		if current == nil {
			return ErrNoActivePlan
		}
		if current.Plan.PlanID.String() == planID.String() {
			return ErrSamePlan
		}

		p, err := e.assignablePlan(u, planID)
		if err != nil {
			return err
		}
		if current.Plan.Type == plan.TypePayAsYouGo && p.Type == plan.TypePayAsYouGo {
			return ErrUnsupportedPlanChange
		}

		req := &customer.ChangeRequest{IsActive: true, PlanID: planID, RequestedAt: u.now}
		u.cust.ChangeRequest = req

		snapshot := *req
		u.emit(func(ctx context.Context) { e.plugins.EmitPlanChangeRequested(ctx, customerID, &snapshot) })
		return nil
	})
}

// ChangeBillingCycle moves the renewal date of the active assignment from
// oldDate to newDate. A Package plan is charged for the prorated days the
// cycle gains, or credited for the days it loses, and its quota grows or
// shrinks by the prorated interview count.
func (e *Engine) ChangeBillingCycle(ctx context.Context, customerID id.ID, oldDate, newDate time.Time) error {
	if oldDate.IsZero() || newDate.IsZero() {
		return ValidationError{Field: "date", Message: "old and new billing dates are required"}
	}

	return e.mutate(ctx, "change billing cycle", customerID, func(u *unit) error {
		a := u.cust.ActiveAssignment()
		if a == nil {
			return ErrNoActivePlan
		}
		if a.Plan.Package == nil {
			a.RenewalDate = newDate
			return nil
		}

		terms := *a.Plan.Package
		if p, err := u.tx.GetPlan(u.ctx, a.Plan.PlanID); err == nil && p.Package != nil {
			terms = *p.Package
		}
		r := proration.Calculate(oldDate, newDate, terms)

		note := fmt.Sprintf("%s from %s to %s",
			transaction.NoteFor(transaction.TypeChangeBillingCycle, a.Plan.Name),
			oldDate.Format(time.DateOnly), newDate.Format(time.DateOnly))

		quota := a.Plan.Package
		if newDate.Before(oldDate) {
			if r.Price > 0 {
				if _, err := e.applyCredit(u, r.Price, transaction.TypeChangeBillingCycle, transaction.StatusCompleted, note); err != nil {
					return err
				}
			}
			quota.InterviewsPerQuota = max(quota.InterviewsPerQuota-r.Interviews, 0)
		} else {
			if _, err := e.applyCharge(u, r.Price, transaction.TypeChangeBillingCycle, note); err != nil {
				return err
			}
			quota.InterviewsPerQuota += r.Interviews
		}
		a.RenewalDate = newDate
		return nil
	})
}

// ChangeInterviewRate reissues an active PayAsYouGo assignment at a new
// per-interview rate, keeping its renewal date. The rate also becomes the
// customer's override for later PayAsYouGo assignments. It does nothing when
// there is no active PayAsYouGo plan or the rate is unchanged.
func (e *Engine) ChangeInterviewRate(ctx context.Context, customerID id.ID, rate int64) error {
	if rate <= 0 {
		return ValidationError{Field: "interview_rate", Message: "must be positive"}
	}

	return e.mutate(ctx, "change interview rate", customerID, func(u *unit) error {
		a := u.cust.ActiveAssignment()
		if a == nil || a.Plan.PayAsYouGo == nil || a.Plan.PayAsYouGo.InterviewRate == rate {
			return nil
		}

		snap := a.Plan.Clone()
		snap.PayAsYouGo.InterviewRate = rate
		next := customer.Assignment{
			ID:          id.NewAssignmentID(),
			Plan:        snap,
			StartDate:   u.now,
			RenewalDate: a.RenewalDate,
			IsProRated:  a.IsProRated,
		}
		u.cust.InterviewRate = rate
		u.cust.Activate(next, u.now)
		return nil
	})
}

// DueRenewals lists customers whose active assignment renews in [from, to).
func (e *Engine) DueRenewals(ctx context.Context, from, to time.Time) ([]id.ID, error) {
	ids, err := e.store.ListRenewalsDue(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("billing: due renewals: %w", err)
	}
	return ids, nil
}

// ──────────────────────────────────────────────────
// Assignment helpers
// ──────────────────────────────────────────────────

// assignablePlan loads a catalog plan that may still be handed out.
func (e *Engine) assignablePlan(u *unit, planID id.ID) (*plan.Plan, error) {
	p, err := u.tx.GetPlan(u.ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPlanInactive
	}
	return p, nil
}

// newAssignment snapshots p into an assignment starting now. It neither
// charges nor activates.
func (e *Engine) newAssignment(u *unit, p *plan.Plan, proRated bool, endDate time.Time) (customer.Assignment, error) {
	snap := p.Snapshot()
	a := customer.Assignment{
		ID:         id.NewAssignmentID(),
		StartDate:  u.now,
		IsProRated: proRated,
	}

	if proRated && !endDate.After(u.now) {
		return a, ValidationError{Field: "pro_rated_end_date", Message: "must be in the future"}
	}

	switch {
	case snap.Package != nil:
		a.RenewalDate = snap.Package.Validity.Advance(u.now)
		if proRated {
			r := proration.Calculate(u.now, endDate, *snap.Package)
			if r.Price > 0 && r.Interviews > 0 {
				snap.Package.Price = r.Price
				snap.Package.InterviewsPerQuota = r.Interviews
			}
			a.RenewalDate = endDate
		}
	case snap.PayAsYouGo != nil:
		if u.cust.InterviewRate > 0 {
			snap.PayAsYouGo.InterviewRate = u.cust.InterviewRate
		}
		a.RenewalDate = u.now.AddDate(0, 1, 0)
		if proRated {
			a.RenewalDate = endDate
		}
	default:
		return a, ValidationError{Field: "plan", Message: "plan has no terms"}
	}

	a.Plan = snap
	return a, nil
}

func cloneAssignment(a *customer.Assignment) customer.Assignment {
	cp := *a
	cp.Plan = a.Plan.Clone()
	if a.EndDate != nil {
		end := *a.EndDate
		cp.EndDate = &end
	}
	return cp
}
