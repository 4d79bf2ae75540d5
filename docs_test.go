package billing_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/billing"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/store/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation work as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for demo, use PostgreSQL or MongoDB in production
		store := memory.New()

		e := billing.New(store,
			billing.WithLogger(slog.Default()),
			billing.WithDefaults(billing.Defaults{Currency: "INR", TaxRate: 18}),
		)

		ctx := context.Background()
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer func() { _ = e.Stop(ctx) }()

		p := &plan.Plan{
			Name: "Growth",
			Type: plan.TypePackage,
			Package: &plan.PackageTerms{
				Price:                   1000,
				Validity:                plan.ValidityMonthly,
				InterviewsPerQuota:      10,
				AdditionalInterviewRate: 50,
			},
		}
		if err := e.CreatePlan(ctx, p); err != nil {
			t.Fatal(err)
		}

		c, err := e.CreateCustomer(ctx, billing.CreateCustomerInput{
			Name:        "Acme Hiring",
			Email:       "billing@acme.io",
			Phone:       "555-010-2000",
			PaymentType: billing.Prepaid,
		})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := e.AssignPlan(ctx, c.ID, billing.AssignPlanInput{PlanID: p.ID}); err != nil {
			t.Fatal(err)
		}

		a, err := e.Consume(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Interviews used: %d of %d\n", a.InterviewsUsed, a.Plan.Package.InterviewsPerQuota)

		// Prepaid customers are billed at assignment, so nothing is left.
		inv, err := e.GenerateBill(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if inv != nil {
			t.Errorf("expected nothing left to bill, got %s", inv.ID)
		}

		state, err := e.State(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if state != billing.State("ActivePackage") {
			t.Errorf("unexpected state %s", state)
		}
	})
}
