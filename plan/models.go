package plan

import (
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/types"
)

// Type discriminates the two plan shapes.
type Type string

const (
	TypePackage    Type = "Package"
	TypePayAsYouGo Type = "PayAsYouGo"
)

// Validity is the length of one Package quota period.
type Validity string

const (
	ValidityMonthly Validity = "monthly"
	ValidityYearly  Validity = "yearly"
)

// Days is the proration window of the validity: 30 or 365.
func (v Validity) Days() int64 {
	if v == ValidityYearly {
		return 365
	}
	return 30
}

// Advance returns t moved forward by one validity period.
func (v Validity) Advance(t time.Time) time.Time {
	if v == ValidityYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Valid reports whether v is a known validity.
func (v Validity) Valid() bool {
	return v == ValidityMonthly || v == ValidityYearly
}

// PackageTerms is the payload of a quota-based plan.
type PackageTerms struct {
	Price                   int64    `json:"price"`
	Validity                Validity `json:"quota_validity"`
	InterviewsPerQuota      int64    `json:"interviews_per_quota"`
	AdditionalInterviewRate int64    `json:"additional_interview_rate"`
}

// PayAsYouGoTerms is the payload of a per-unit plan.
type PayAsYouGoTerms struct {
	InterviewRate int64 `json:"interview_rate"`
}

// Plan is a catalog template. It is never edited after creation except for
// deactivation; customers hold a Snapshot of it instead of a reference.
//
// Exactly one of Package or PayAsYouGo is set, matching Type.
type Plan struct {
	types.Entity
	ID          id.ID             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        Type              `json:"type"`
	IsActive    bool              `json:"is_active"`
	Package     *PackageTerms     `json:"package,omitempty"`
	PayAsYouGo  *PayAsYouGoTerms  `json:"pay_as_you_go,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Snapshot is the point-in-time copy of a Plan stored on an assignment.
type Snapshot struct {
	PlanID     id.ID            `json:"plan_id"`
	Name       string           `json:"name"`
	Type       Type             `json:"type"`
	Package    *PackageTerms    `json:"package,omitempty"`
	PayAsYouGo *PayAsYouGoTerms `json:"pay_as_you_go,omitempty"`
}

// Snapshot copies the plan so later catalog changes never reach an
// existing assignment.
func (p *Plan) Snapshot() Snapshot {
	s := Snapshot{PlanID: p.ID, Name: p.Name, Type: p.Type}
	if p.Package != nil {
		terms := *p.Package
		s.Package = &terms
	}
	if p.PayAsYouGo != nil {
		terms := *p.PayAsYouGo
		s.PayAsYouGo = &terms
	}
	return s
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s.Package != nil {
		terms := *s.Package
		s.Package = &terms
	}
	if s.PayAsYouGo != nil {
		terms := *s.PayAsYouGo
		s.PayAsYouGo = &terms
	}
	return s
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	cp := *p
	if p.Package != nil {
		terms := *p.Package
		cp.Package = &terms
	}
	if p.PayAsYouGo != nil {
		terms := *p.PayAsYouGo
		cp.PayAsYouGo = &terms
	}
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ListOpts filters catalog listings. Inactive plans are hidden unless
// IncludeInactive is set.
type ListOpts struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}
