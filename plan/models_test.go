package plan

import (
	"testing"
	"time"

	"github.com/xraph/billing/id"
)

func TestValidity(t *testing.T) {
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		v    Validity
		days int64
		next time.Time
	}{
		{ValidityMonthly, 30, time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC)},
		{ValidityYearly, 365, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.v), func(t *testing.T) {
			if !tt.v.Valid() {
				t.Fatalf("%q should be valid", tt.v)
			}
			if got := tt.v.Days(); got != tt.days {
				t.Errorf("Days() = %d, want %d", got, tt.days)
			}
			if got := tt.v.Advance(start); !got.Equal(tt.next) {
				t.Errorf("Advance() = %v, want %v", got, tt.next)
			}
		})
	}

	if Validity("weekly").Valid() {
		t.Error("weekly should not be valid")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	p := &Plan{
		ID:   id.NewPlanID(),
		Name: "Starter",
		Type: TypePackage,
		Package: &PackageTerms{
			Price:                   1000,
			Validity:                ValidityMonthly,
			InterviewsPerQuota:      10,
			AdditionalInterviewRate: 120,
		},
	}

	snap := p.Snapshot()
	p.Package.Price = 5000
	p.Name = "Renamed"

	if snap.Package.Price != 1000 {
		t.Errorf("snapshot price followed the catalog: %d", snap.Package.Price)
	}
	if snap.Name != "Starter" {
		t.Errorf("snapshot name followed the catalog: %q", snap.Name)
	}

	clone := snap.Clone()
	clone.Package.InterviewsPerQuota = 99
	if snap.Package.InterviewsPerQuota != 10 {
		t.Error("Clone shares terms with the original")
	}
}
