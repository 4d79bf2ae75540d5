package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/plugin"
)

type recorder struct {
	name      string
	generated atomic.Int32
	resets    atomic.Int32
	fail      bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnInvoiceGenerated(_ context.Context, _ *invoice.Invoice) error {
	r.generated.Add(1)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnAccountReset(_ context.Context, _ id.ID) error {
	r.resets.Add(1)
	return nil
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnAccountReset(ctx context.Context, _ id.ID) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 plugin, got %d", r.Count())
	}
	if r.Get("a") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestDispatchReachesEveryImplementer(t *testing.T) {
	r := plugin.NewRegistry()
	a := &recorder{name: "a", fail: true}
	b := &recorder{name: "b"}
	_ = r.Register(a)
	_ = r.Register(b)

	r.EmitInvoiceGenerated(context.Background(), &invoice.Invoice{})
	r.EmitAccountReset(context.Background(), id.NewCustomerID())

	if a.generated.Load() != 1 || b.generated.Load() != 1 {
		t.Errorf("expected both plugins to see the invoice, got %d and %d", a.generated.Load(), b.generated.Load())
	}
	if a.resets.Load() != 1 || b.resets.Load() != 1 {
		t.Errorf("expected both plugins to see the reset, got %d and %d", a.resets.Load(), b.resets.Load())
	}
}

func TestSlowHookIsAbandoned(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slow{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	r.EmitAccountReset(ctx, id.NewCustomerID())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("hook was not abandoned, waited %s", elapsed)
	}
}
