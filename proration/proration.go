// Package proration scales a Package plan's price and quota linearly over a
// partial billing period.
package proration

import (
	"math"
	"time"

	"github.com/xraph/billing/plan"
)

const millisPerDay = 86400000

// Result is the prorated slice of a Package period.
type Result struct {
	Days       int64 `json:"days"`
	Price      int64 `json:"pro_rated_price"`
	Interviews int64 `json:"pro_rated_interviews"`
}

// Calculate prorates terms over the whole days between from and to. The
// order of the two dates does not matter. Day count, price and quota are each
// rounded half away from zero.
func Calculate(from, to time.Time, terms plan.PackageTerms) Result {
	elapsed := to.Sub(from).Milliseconds()
	if elapsed < 0 {
		elapsed = -elapsed
	}
	days := round(float64(elapsed) / millisPerDay)

	validity := float64(terms.Validity.Days())
	dailyCost := float64(terms.Price) / validity
	dailyInterviews := float64(terms.InterviewsPerQuota) / validity

	return Result{
		Days:       days,
		Price:      round(dailyCost * float64(days)),
		Interviews: round(dailyInterviews * float64(days)),
	}
}

func round(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
