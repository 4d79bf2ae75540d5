package customer

// State is the plan-lifecycle state derived from a customer's assignments
// and change request. It is never stored.
type State string

const (
	StateNoActivePlan      State = "NoActivePlan"
	StateActivePayAsYouGo  State = "ActivePayAsYouGo"
	StateActivePackage     State = "ActivePackage"
	StateActiveProRated    State = "ActiveProRated"
	StatePendingPlanChange State = "PendingPlanChange"
)

// BaseState ignores any pending plan change.
func (c *Customer) BaseState() State {
	a := c.ActiveAssignment()
	switch {
	case a == nil:
		return StateNoActivePlan
	case a.IsProRated:
		return StateActiveProRated
	case a.Plan.Package != nil:
		return StateActivePackage
	default:
		return StateActivePayAsYouGo
	}
}

// State reports PendingPlanChange while a change request is waiting on an
// active plan, and the base state otherwise.
func (c *Customer) State() State {
	base := c.BaseState()
	if base != StateNoActivePlan && c.PendingChange() != nil {
		return StatePendingPlanChange
	}
	return base
}
