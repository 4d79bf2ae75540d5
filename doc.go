// Package billing provides a subscription-billing engine for Go applications.
//
// Billing is designed as a library, not a service. Import it directly into your
// Go application and drive it from your own HTTP handlers, CLIs or jobs. It
// provides:
//
//   - Quota-based Package plans and per-unit PayAsYouGo plans
//   - An append-only transaction ledger with a running and outstanding balance
//   - Invoice generation from unbilled ledger entries
//   - Proration for partial periods and billing-cycle changes
//   - Top-ups, promotional credit and bill payments
//   - Per-customer serialization with atomic units of work
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/billing"
//	    "github.com/xraph/billing/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL, 10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := billing.New(store)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop(ctx)
//
// # Core Concepts
//
// Plans are catalog templates. A customer never references a plan directly;
// assigning one copies its terms into an Assignment:
//
//	p := &plan.Plan{
//	    Name: "Growth",
//	    Type: plan.TypePackage,
//	    Package: &plan.PackageTerms{
//	        Price:                   1000,
//	        Validity:                plan.ValidityMonthly,
//	        InterviewsPerQuota:      10,
//	        AdditionalInterviewRate: 50,
//	    },
//	}
//	err := e.CreatePlan(ctx, p)
//	a, err := e.AssignPlan(ctx, customerID, billing.AssignPlanInput{PlanID: p.ID})
//
// Every interview is metered against the active assignment:
//
//	a, err := e.Consume(ctx, customerID)
//
// Charges land in the ledger and are swept into invoices:
//
//	inv, err := e.GenerateBill(ctx, customerID)
//	pay, err := e.PayBill(ctx, customerID, inv.ID)
//
// A daily sweep (see the scheduler package) calls RenewPlan for every
// customer whose renewal date falls on that day.
//
// # Consistency
//
// Each operation runs as one unit of work: the customer is locked, read,
// changed and written back together with its ledger entries and invoices,
// or nothing is written at all. Operations on different customers never
// contend.
//
// All amounts are whole currency units held in int64. Tax is a whole
// percentage and is always rounded up.
//
// # TypeID
//
// All records use TypeID for globally unique, type-safe identifiers:
//
//	cust_01h2xcejqtf2nbrexx3vqjhp41  // Customer ID
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
package billing
