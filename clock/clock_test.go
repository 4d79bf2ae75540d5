package clock

import (
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	start := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(36 * time.Hour)
	if got, want := c.Now(), start.Add(36*time.Hour); !got.Equal(want) {
		t.Errorf("after Advance: %v, want %v", got, want)
	}

	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("after Set: %v, want %v", got, start)
	}
}

func TestSystemIsUTC(t *testing.T) {
	if loc := (System{}).Now().Location(); loc != time.UTC {
		t.Errorf("expected UTC, got %v", loc)
	}
}

func TestStartOfDay(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 11, 2, 0, 0, 0, time.FixedZone("IST", 19800)), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := StartOfDay(tt.in); !got.Equal(tt.want) {
			t.Errorf("StartOfDay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
