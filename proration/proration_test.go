package proration

import (
	"testing"
	"time"

	"github.com/xraph/billing/plan"
)

func TestCalculate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	monthly := plan.PackageTerms{Price: 1000, Validity: plan.ValidityMonthly, InterviewsPerQuota: 10}
	yearly := plan.PackageTerms{Price: 36500, Validity: plan.ValidityYearly, InterviewsPerQuota: 365}

	tests := []struct {
		name  string
		from  time.Time
		to    time.Time
		terms plan.PackageTerms
		want  Result
	}{
		{"full month", base, base.AddDate(0, 0, 30), monthly, Result{Days: 30, Price: 1000, Interviews: 10}},
		{"fifteen days", base, base.AddDate(0, 0, 15), monthly, Result{Days: 15, Price: 500, Interviews: 5}},
		{"reversed order", base.AddDate(0, 0, 15), base, monthly, Result{Days: 15, Price: 500, Interviews: 5}},
		{"rounds days half up", base, base.Add(10*24*time.Hour + 12*time.Hour), monthly, Result{Days: 11, Price: 367, Interviews: 4}},
		{"rounds days down", base, base.Add(10*24*time.Hour + 11*time.Hour), monthly, Result{Days: 10, Price: 333, Interviews: 3}},
		{"same instant", base, base, monthly, Result{}},
		{"yearly", base, base.AddDate(0, 0, 100), yearly, Result{Days: 100, Price: 10000, Interviews: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.from, tt.to, tt.terms)
			if got != tt.want {
				t.Errorf("Calculate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateIsPure(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	terms := plan.PackageTerms{Price: 999, Validity: plan.ValidityMonthly, InterviewsPerQuota: 20}

	first := Calculate(from, to, terms)
	for i := 0; i < 5; i++ {
		if got := Calculate(from, to, terms); got != first {
			t.Fatalf("call %d = %+v, want %+v", i, got, first)
		}
	}
	if terms.Price != 999 || terms.InterviewsPerQuota != 20 {
		t.Error("Calculate mutated its input")
	}
}
