package audithook

// Action constants for audit events.
const (
	// Customer actions
	ActionCustomerCreated = "customer.created"
	ActionAccountReset    = "customer.reset"

	// Catalog actions
	ActionPlanCreated     = "plan.created"
	ActionPlanDeactivated = "plan.deactivated"

	// Plan lifecycle actions
	ActionPlanAssigned        = "plan.assigned"
	ActionPlanRenewed         = "plan.renewed"
	ActionPlanChangeRequested = "plan.change_requested"
	ActionPlanChanged         = "plan.changed"
	ActionRenewalSweep        = "renewal.sweep"

	// Ledger actions
	ActionBalanceCredited = "balance.credited"
	ActionChargeSplit     = "charge.split"

	// Invoice actions
	ActionInvoiceGenerated = "invoice.generated"
	ActionInvoicePaid      = "invoice.paid"
)

// Resource constants for audit events.
const (
	ResourceCustomer    = "customer"
	ResourcePlan        = "plan"
	ResourceAssignment  = "assignment"
	ResourceTransaction = "transaction"
	ResourceInvoice     = "invoice"
	ResourceScheduler   = "scheduler"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryCatalog = "catalog"
	CategoryBilling = "billing"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
