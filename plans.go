package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/proration"
	"github.com/xraph/billing/types"
)

// CreatePlan validates p, gives it an id and adds it to the catalog as an
// active plan.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if err := validatePlan(p); err != nil {
		return err
	}

	p.ID = id.NewPlanID()
	p.Entity = types.NewEntity(e.clock.Now())
	p.IsActive = true

	if err := e.store.CreatePlan(ctx, p); err != nil {
		return fmt.Errorf("billing: create plan: %w", err)
	}

	e.plugins.EmitPlanCreated(ctx, p.Clone())
	e.logger.Info("plan created",
		"plan_id", p.ID.String(),
		"type", string(p.Type),
	)
	return nil
}

// GetPlan returns a catalog plan by id.
func (e *Engine) GetPlan(ctx context.Context, planID id.ID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ListPlans returns catalog plans, active only unless opts.IncludeInactive.
func (e *Engine) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, opts)
}

// DeactivatePlan withdraws a plan from the catalog. Customers already on it
// keep their snapshot.
func (e *Engine) DeactivatePlan(ctx context.Context, planID id.ID) error {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return nil
	}

	p.IsActive = false
	p.Touch(e.clock.Now())
	if err := e.store.UpdatePlan(ctx, p); err != nil {
		return fmt.Errorf("billing: deactivate plan: %w", err)
	}

	e.plugins.EmitPlanDeactivated(ctx, p.Clone())
	return nil
}

// Quote previews what assigning a plan would cost.
type Quote struct {
	PlanID        id.ID     `json:"plan_id"`
	Name          string    `json:"name"`
	Type          plan.Type `json:"type"`
	Price         int64     `json:"price"`
	Interviews    int64     `json:"interviews"`
	InterviewRate int64     `json:"interview_rate,omitempty"`
	Days          int64     `json:"days,omitempty"`
	RenewalDate   time.Time `json:"renewal_date"`
}

// QuotePlan previews an assignment of planID starting now, prorated to
// endDate when proRated is set. Nothing is written.
func (e *Engine) QuotePlan(ctx context.Context, planID id.ID, proRated bool, endDate time.Time) (*Quote, error) {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if proRated && !endDate.After(now) {
		return nil, ValidationError{Field: "pro_rated_end_date", Message: "must be in the future"}
	}

	q := &Quote{PlanID: p.ID, Name: p.Name, Type: p.Type}
	switch {
	case p.Package != nil:
		q.Price = p.Package.Price
		q.Interviews = p.Package.InterviewsPerQuota
		q.Days = p.Package.Validity.Days()
		q.RenewalDate = p.Package.Validity.Advance(now)
		if proRated {
			r := proration.Calculate(now, endDate, *p.Package)
			q.Price, q.Interviews, q.Days = r.Price, r.Interviews, r.Days
			q.RenewalDate = endDate
		}
	case p.PayAsYouGo != nil:
		q.InterviewRate = p.PayAsYouGo.InterviewRate
		q.RenewalDate = now.AddDate(0, 1, 0)
		if proRated {
			q.RenewalDate = endDate
		}
	}
	return q, nil
}

func validatePlan(p *plan.Plan) error {
	var errs MultiError
	if strings.TrimSpace(p.Name) == "" {
		errs.Add(ValidationError{Field: "name", Message: "is required"})
	}

	switch p.Type {
	case plan.TypePackage:
		if p.Package == nil {
			errs.Add(ValidationError{Field: "package", Message: "is required for Package plans"})
			break
		}
		if p.PayAsYouGo != nil {
			errs.Add(ValidationError{Field: "pay_as_you_go", Message: "must be empty for Package plans"})
		}
		if p.Package.Price < 0 {
			errs.Add(ValidationError{Field: "price", Message: "must not be negative"})
		}
		if !p.Package.Validity.Valid() {
			errs.Add(ValidationError{Field: "quota_validity", Message: "must be monthly or yearly"})
		}
		if p.Package.InterviewsPerQuota <= 0 {
			errs.Add(ValidationError{Field: "interviews_per_quota", Message: "must be positive"})
		}
		if p.Package.AdditionalInterviewRate < 0 {
			errs.Add(ValidationError{Field: "additional_interview_rate", Message: "must not be negative"})
		}
	case plan.TypePayAsYouGo:
		if p.PayAsYouGo == nil {
			errs.Add(ValidationError{Field: "pay_as_you_go", Message: "is required for PayAsYouGo plans"})
			break
		}
		if p.Package != nil {
			errs.Add(ValidationError{Field: "package", Message: "must be empty for PayAsYouGo plans"})
		}
		if p.PayAsYouGo.InterviewRate <= 0 {
			errs.Add(ValidationError{Field: "interview_rate", Message: "must be positive"})
		}
	default:
		errs.Add(ValidationError{Field: "type", Message: "must be Package or PayAsYouGo"})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
