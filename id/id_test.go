package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/billing/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"CustomerID", id.NewCustomerID, id.ParseCustomerID, "cust_"},
		{"PlanID", id.NewPlanID, id.ParsePlanID, "plan_"},
		{"AssignmentID", id.NewAssignmentID, id.ParseAssignmentID, "asgn_"},
		{"TransactionID", id.NewTransactionID, id.ParseTransactionID, "txn_"},
		{"InvoiceID", id.NewInvoiceID, id.ParseInvoiceID, "inv_"},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID, "pay_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed, original)
			}
		})
	}
}

func TestCrossKindRejection(t *testing.T) {
	if _, err := id.ParseCustomerID(id.NewInvoiceID().String()); err == nil {
		t.Error("expected customer parser to reject an invoice id")
	}
	if _, err := id.ParseInvoiceID(id.NewTransactionID().String()); err == nil {
		t.Error("expected invoice parser to reject a transaction id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("expected empty string and prefix, got %q / %q", i.String(), i.Prefix())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewCustomerID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored, original)
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil || !empty.IsNil() {
		t.Errorf("expected nil id from empty text, got %q (%v)", empty, err)
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewTransactionID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned, original)
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(original.String())); err != nil || fromBytes.String() != original.String() {
		t.Errorf("scan from bytes: got %q (%v)", fromBytes, err)
	}

	if v, _ := id.Nil.Value(); v != nil {
		t.Errorf("expected NULL for nil id, got %v", v)
	}

	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewTransactionID()
	b := id.NewTransactionID()
	if a.String() == b.String() {
		t.Errorf("two consecutive ids are equal: %q", a)
	}
}
