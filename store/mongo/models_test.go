package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/types"
)

func TestCustomerModelProjectsActiveRenewal(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &customer.Customer{
		Entity:      types.NewEntity(now),
		ID:          id.NewCustomerID(),
		Name:        "Acme",
		Email:       "Ops@Acme.io",
		Phone:       "555-123-4567",
		PaymentType: customer.Postpaid,
		TaxRate:     18,
		ChangeRequest: &customer.ChangeRequest{
			IsActive:    true,
			PlanID:      id.NewPlanID(),
			RequestedAt: now,
		},
	}
	payg := plan.Snapshot{
		PlanID:     id.NewPlanID(),
		Type:       plan.TypePayAsYouGo,
		PayAsYouGo: &plan.PayAsYouGoTerms{InterviewRate: 40},
	}
	c.Activate(customer.Assignment{ID: id.NewAssignmentID(), Plan: payg, StartDate: now, RenewalDate: now.AddDate(0, 1, 0)}, now)
	c.Activate(customer.Assignment{ID: id.NewAssignmentID(), Plan: payg, StartDate: now, RenewalDate: now.AddDate(0, 2, 0)}, now)

	m := toCustomerModel(c)
	if m.EmailKey != "ops@acme.io" {
		t.Errorf("expected lower-cased email key, got %q", m.EmailKey)
	}
	if m.RenewalDate == nil || !m.RenewalDate.Equal(now.AddDate(0, 2, 0)) {
		t.Errorf("expected renewal of the active assignment, got %v", m.RenewalDate)
	}

	got, err := fromCustomerModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if len(got.Assignments) != 2 || got.Assignments[0].EndDate == nil {
		t.Fatalf("expected the closed assignment to keep its end date: %+v", got.Assignments)
	}
	active := got.ActiveAssignment()
	if active == nil || active.Plan.PayAsYouGo.InterviewRate != 40 {
		t.Fatalf("unexpected active assignment %+v", active)
	}
	if got.PendingChange() == nil || got.PendingChange().PlanID.String() != c.ChangeRequest.PlanID.String() {
		t.Errorf("change request lost")
	}
}

func TestResetCustomerClearsRenewalProjection(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &customer.Customer{
		Entity:      types.NewEntity(now),
		ID:          id.NewCustomerID(),
		Name:        "Acme",
		PaymentType: customer.Prepaid,
	}

	raw, err := bson.Marshal(toCustomerModel(c))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := bson.Raw(raw)
	for _, key := range []string{"renewal_date", "change_request"} {
		v, err := doc.LookupErr(key)
		if err != nil {
			t.Fatalf("expected %s to be written so an update clears it: %v", key, err)
		}
		if v.Type != bson.TypeNull {
			t.Errorf("expected %s to be null, got %s", key, v.Type)
		}
	}
}

func TestRenewalFilterRequiresActiveAssignment(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := renewalFilter(from, from.Add(24*time.Hour))

	if _, ok := f["renewal_date"]; !ok {
		t.Fatalf("expected the indexed projection in the filter, got %v", f)
	}
	match, ok := f["assignments"].(bson.M)["$elemMatch"].(bson.M)
	if !ok {
		t.Fatalf("expected an $elemMatch on assignments, got %v", f)
	}
	if match["is_active"] != true || match["renewal_date"] == nil {
		t.Errorf("expected the active assignment's renewal date to be matched, got %v", match)
	}
}

func TestContactFilter(t *testing.T) {
	tests := []struct {
		name         string
		email, phone string
		wantClauses  int
	}{
		{"both", "A@acme.io", "555-123-4567", 2},
		{"email only", "a@acme.io", "", 1},
		{"phone only", "", "555-123-4567", 1},
		{"neither", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := contactFilter(tt.email, tt.phone)
			if tt.wantClauses == 0 {
				if f != nil {
					t.Fatalf("expected nil filter, got %v", f)
				}
				return
			}
			or, ok := f["$or"].(bson.A)
			if !ok || len(or) != tt.wantClauses {
				t.Fatalf("expected %d clauses, got %v", tt.wantClauses, f)
			}
			if tt.email != "" {
				if got := or[0].(bson.M)["email_key"]; got != "a@acme.io" {
					t.Errorf("expected lower-cased email, got %v", got)
				}
			}
		})
	}
}

func TestNextSeqIncreases(t *testing.T) {
	prev := nextSeq()
	for i := 0; i < 1000; i++ {
		next := nextSeq()
		if next <= prev {
			t.Fatalf("sequence went backwards: %d after %d", next, prev)
		}
		prev = next
	}
}
