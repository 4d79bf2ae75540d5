package transaction

import "strings"

var notes = map[Type]string{
	TypeAssignPackage:             "Package Assigned",
	TypeAssignPayAsYouGo:          "Pay As You Go plan assigned",
	TypeInterviewCharge:           "Charge of Interview",
	TypeAdditionalInterviewCharge: "Additional Interview Charge",
	TypePackageRenewal:            "Package Renewal of",
	TypeChangePlan:                "Plan Changed to",
	TypeChangeBillingCycle:        "Billing cycle changed for",
	TypeBillPaid:                  "Bill Paid",
	TypeBonus:                     "Bonus credited",
	TypeTopUp:                     "Balance Top Up",
}

// Note returns the catalog note for t, or "" for an unknown type.
func Note(t Type) string {
	return notes[t]
}

// NoteFor appends a subject, usually a plan name, to the catalog note.
func NoteFor(t Type, subject string) string {
	return strings.TrimSpace(Note(t) + " " + subject)
}
