package billing

import "testing"

func TestTaxRounding(t *testing.T) {
	tests := []struct {
		amount, rate, wantTax int64
	}{
		{100, 18, 18},
		{1000, 18, 180},
		{40, 18, 8},
		{1, 18, 1},
		{100, 0, 0},
		{0, 18, 0},
	}
	for _, tt := range tests {
		if got := taxOn(tt.amount, tt.rate); got != tt.wantTax {
			t.Errorf("taxOn(%d, %d) = %d, want %d", tt.amount, tt.rate, got, tt.wantTax)
		}
	}
}

func TestNetOfNeverOvercharges(t *testing.T) {
	for _, rate := range []int64{0, 5, 12, 18, 28} {
		for gross := int64(1); gross <= 500; gross++ {
			net := netOf(gross, rate)
			if net > gross {
				t.Fatalf("netOf(%d, %d) = %d exceeds gross", gross, rate, net)
			}
			if tax := gross - net; tax > taxOn(net, rate) {
				t.Fatalf("rate %d gross %d: tax portion %d exceeds %d", rate, gross, tax, taxOn(net, rate))
			}
		}
	}
	if got := netOf(50, 18); got != 43 {
		t.Errorf("netOf(50, 18) = %d, want 43", got)
	}
}
