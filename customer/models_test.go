package customer

import (
	"testing"
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
)

func packageSnapshot() plan.Snapshot {
	return plan.Snapshot{
		PlanID:  id.NewPlanID(),
		Name:    "Starter",
		Type:    plan.TypePackage,
		Package: &plan.PackageTerms{Price: 1000, Validity: plan.ValidityMonthly, InterviewsPerQuota: 10},
	}
}

func paygSnapshot() plan.Snapshot {
	return plan.Snapshot{
		PlanID:     id.NewPlanID(),
		Name:       "Flex",
		Type:       plan.TypePayAsYouGo,
		PayAsYouGo: &plan.PayAsYouGoTerms{InterviewRate: 50},
	}
}

func countActive(c *Customer) int {
	n := 0
	for _, a := range c.Assignments {
		if a.IsActive {
			n++
		}
	}
	return n
}

func TestActivateKeepsSingleActive(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &Customer{ID: id.NewCustomerID()}

	c.Activate(Assignment{ID: id.NewAssignmentID(), Plan: packageSnapshot()}, now)
	c.Activate(Assignment{ID: id.NewAssignmentID(), Plan: paygSnapshot()}, now.Add(time.Hour))

	if got := countActive(c); got != 1 {
		t.Fatalf("active assignments = %d, want 1", got)
	}
	if len(c.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(c.Assignments))
	}
	first := c.Assignments[0]
	if first.IsActive || first.EndDate == nil || !first.EndDate.Equal(now.Add(time.Hour)) {
		t.Errorf("superseded assignment not closed: %+v", first)
	}
	if c.ActiveAssignment().Plan.Type != plan.TypePayAsYouGo {
		t.Error("expected the newest assignment to be active")
	}
}

func TestActiveAssignmentIsAddressable(t *testing.T) {
	c := &Customer{}
	c.Activate(Assignment{Plan: packageSnapshot()}, time.Now())

	c.ActiveAssignment().InterviewsUsed++
	if c.Assignments[0].InterviewsUsed != 1 {
		t.Error("counter update did not reach the customer")
	}
}

func TestState(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		setup func(c *Customer)
		base  State
		state State
	}{
		{"no plan", func(*Customer) {}, StateNoActivePlan, StateNoActivePlan},
		{"package", func(c *Customer) { c.Activate(Assignment{Plan: packageSnapshot()}, now) }, StateActivePackage, StateActivePackage},
		{"payg", func(c *Customer) { c.Activate(Assignment{Plan: paygSnapshot()}, now) }, StateActivePayAsYouGo, StateActivePayAsYouGo},
		{"prorated", func(c *Customer) { c.Activate(Assignment{Plan: paygSnapshot(), IsProRated: true}, now) }, StateActiveProRated, StateActiveProRated},
		{"pending change", func(c *Customer) {
			c.Activate(Assignment{Plan: packageSnapshot()}, now)
			c.ChangeRequest = &ChangeRequest{IsActive: true, PlanID: id.NewPlanID(), RequestedAt: now}
		}, StateActivePackage, StatePendingPlanChange},
		{"stale change request", func(c *Customer) {
			c.Activate(Assignment{Plan: packageSnapshot()}, now)
			c.ChangeRequest = &ChangeRequest{IsActive: false, PlanID: id.NewPlanID()}
		}, StateActivePackage, StateActivePackage},
		{"change request without plan", func(c *Customer) {
			c.ChangeRequest = &ChangeRequest{IsActive: true, PlanID: id.NewPlanID()}
		}, StateNoActivePlan, StateNoActivePlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Customer{}
			tt.setup(c)
			if got := c.BaseState(); got != tt.base {
				t.Errorf("BaseState() = %s, want %s", got, tt.base)
			}
			if got := c.State(); got != tt.state {
				t.Errorf("State() = %s, want %s", got, tt.state)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	c := &Customer{ID: id.NewCustomerID(), CurrentBalance: 10}
	c.Activate(Assignment{Plan: packageSnapshot()}, now)
	c.Deactivate(now)
	c.Activate(Assignment{Plan: packageSnapshot()}, now)
	c.ChangeRequest = &ChangeRequest{IsActive: true}

	cp := c.Clone()
	cp.Assignments[1].InterviewsUsed = 7
	cp.Assignments[1].Plan.Package.Price = 1
	*cp.Assignments[0].EndDate = now.Add(time.Hour)
	cp.ChangeRequest.IsActive = false

	if c.Assignments[1].InterviewsUsed != 0 || c.Assignments[1].Plan.Package.Price != 1000 {
		t.Error("clone shares assignment state")
	}
	if !c.Assignments[0].EndDate.Equal(now) {
		t.Error("clone shares end date")
	}
	if !c.ChangeRequest.IsActive {
		t.Error("clone shares change request")
	}
}
