package registry

import (
	"testing"

	"omes/internal/schema"
)

func newReq(sid uint64) *schema.NewOrderRequest {
	return &schema.NewOrderRequest{
		RequestBase: schema.RequestBase{Kind: schema.RequestKindNew, OrderSid: sid},
		Side:        schema.SideBuy,
		Price:       100,
		Qty:         1,
	}
}

func TestSidAllocation(t *testing.T) {
	r := New()
	first := r.NextSid()
	if first != StartOrderSid {
		t.Fatalf("first sid = %d, want %d", first, StartOrderSid)
	}
	if next := r.NextSid(); next != first+1 {
		t.Fatalf("sids must be contiguous, got %d after %d", next, first)
	}
}

func TestSyncSidFloorNeverLowers(t *testing.T) {
	r := New()

	r.SyncSidFloor(StartOrderSid + 100)
	if sid := r.NextSid(); sid != StartOrderSid+100 {
		t.Fatalf("sid = %d, want sequence moved to the floor", sid)
	}

	// a lower floor leaves the sequence alone
	r.SyncSidFloor(StartOrderSid)
	if sid := r.NextSid(); sid != StartOrderSid+101 {
		t.Fatalf("sid = %d, a floor below the sequence must not rewind it", sid)
	}
}

func TestPutGetRemove(t *testing.T) {
	r := New()
	sid := r.NextSid()
	r.Put(newReq(sid))

	got, ok := r.GetNew(sid)
	if !ok || got.OrderSid != sid {
		t.Fatalf("lookup failed for sid %d", sid)
	}
	if _, ok := r.GetNew(sid + 1); ok {
		t.Fatalf("unknown sid should miss")
	}

	if _, ok := r.Remove(sid); !ok {
		t.Fatalf("remove should return the live request")
	}
	if _, ok := r.Remove(sid); ok {
		t.Fatalf("second remove should miss")
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}

func TestPendingCancelMarker(t *testing.T) {
	r := New()
	target := r.NextSid()
	cancel1 := r.NextSid()
	cancel2 := r.NextSid()

	if !r.MarkPendingCancel(target, cancel1) {
		t.Fatalf("first cancel should win the marker")
	}
	if r.MarkPendingCancel(target, cancel2) {
		t.Fatalf("second cancel for the same target must be refused")
	}
	if sid, ok := r.CancelSidFor(target); !ok || sid != cancel1 {
		t.Fatalf("cancel sid = %d ok=%t, want %d", sid, ok, cancel1)
	}

	r.ClearPendingCancel(target)
	if _, ok := r.CancelSidFor(target); ok {
		t.Fatalf("marker should be gone after clear")
	}
	if !r.MarkPendingCancel(target, cancel2) {
		t.Fatalf("marker should be claimable again after clear")
	}
}

func TestClearRestartsSids(t *testing.T) {
	r := New()
	sid := r.NextSid()
	r.Put(newReq(sid))
	r.MarkPendingCancel(sid, r.NextSid())

	r.Clear()
	if !r.IsClear() {
		t.Fatalf("cleared registry should be clear")
	}
	if next := r.NextSid(); next != StartOrderSid {
		t.Fatalf("sid allocation should restart at %d, got %d", StartOrderSid, next)
	}
}
