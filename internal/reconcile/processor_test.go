package reconcile

import (
	"context"
	"testing"
	"time"

	"omes/internal/obs"
	"omes/internal/registry"
	"omes/internal/schema"
)

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not signal", what)
	}
}

func TestEndOfRecoverySignal(t *testing.T) {
	mgr := NewManager(registry.New(), nil, &recordingService{}, obs.NewMetrics())
	p := NewProcessor(mgr, 8)
	p.Recover()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	if err := p.Offer(schema.Report{Kind: schema.ReportEndOfRecovery}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	waitClosed(t, p.EndOfRecovery(), "end of recovery")

	p.Stop()
	waitClosed(t, p.Done(), "processor exit")
}

func TestRecoverRearmsSignal(t *testing.T) {
	mgr := NewManager(registry.New(), nil, &recordingService{}, obs.NewMetrics())
	p := NewProcessor(mgr, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Recover()
	p.Offer(schema.Report{Kind: schema.ReportEndOfRecovery})
	waitClosed(t, p.EndOfRecovery(), "first recovery")

	p.Recover()
	select {
	case <-p.EndOfRecovery():
		t.Fatalf("rearmed signal must not be closed")
	default:
	}

	p.Stop()
	waitClosed(t, p.Done(), "processor exit")
}

func TestStopDrainsQueuedReports(t *testing.T) {
	reg := registry.New()
	svc := &recordingService{}
	mgr := NewManager(reg, nil, svc, obs.NewMetrics())
	mgr.Active()
	p := NewProcessor(mgr, 8)

	reg.Put(&schema.NewOrderRequest{
		RequestBase: schema.RequestBase{Kind: schema.RequestKindNew, OrderSid: 1, SymbolID: 1},
		Side:        schema.SideBuy, Type: schema.OrderTypeLimit, TIF: schema.TimeInForceDay,
		Price: 100, Qty: 10,
	})
	p.Offer(accepted(1, 10, 0))
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitClosed(t, p.Done(), "processor exit")

	if len(svc.calls) != 1 || svc.calls[0] != "accepted 1" {
		t.Fatalf("queued report should be handled before exit, calls %v", svc.calls)
	}
}
