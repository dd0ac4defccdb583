package registry

import (
	"sync"
	"sync/atomic"

	"omes/internal/schema"
)

// StartOrderSid is the first sid handed out after a cold start or a reset.
const StartOrderSid uint64 = 8000000

// Registry is the authoritative map from orderSid to the in-flight request.
// It is the one structure shared between the admission path and the
// reconciliation goroutine without a queue in between, so it is backed by
// sync.Map: lookups dominate, erasure is rare, and no invariant spans two
// entries. Each key has a single writer at any lifecycle phase.
type Registry struct {
	requests sync.Map // uint64 -> schema.Request
	nextSid  atomic.Uint64

	// cancelTargets maps a cancel target's orderSid to the cancel request's
	// own sid. Presence doubles as the pending-cancel marker.
	cancelTargets sync.Map // uint64 -> uint64
}

// New creates an empty registry with the sid sequence at its start value.
func New() *Registry {
	r := &Registry{}
	r.nextSid.Store(StartOrderSid)
	return r
}

// NextSid hands out the next order sid.
func (r *Registry) NextSid() uint64 {
	return r.nextSid.Add(1) - 1
}

// SyncSidFloor moves the sid sequence up to floor so sids recovered from a
// previous session are never reissued. It never moves the sequence down.
func (r *Registry) SyncSidFloor(floor uint64) {
	for {
		cur := r.nextSid.Load()
		if cur >= floor {
			return
		}
		if r.nextSid.CompareAndSwap(cur, floor) {
			return
		}
	}
}

// Put stores a request under its orderSid.
func (r *Registry) Put(req schema.Request) {
	r.requests.Store(req.Base().OrderSid, req)
}

// Get returns the request for orderSid.
func (r *Registry) Get(orderSid uint64) (schema.Request, bool) {
	v, ok := r.requests.Load(orderSid)
	if !ok {
		return nil, false
	}
	return v.(schema.Request), true
}

// GetNew returns the new-order request for orderSid, if that is its kind.
func (r *Registry) GetNew(orderSid uint64) (*schema.NewOrderRequest, bool) {
	req, ok := r.Get(orderSid)
	if !ok {
		return nil, false
	}
	n, ok := req.(*schema.NewOrderRequest)
	return n, ok
}

// Remove drops the request for orderSid and returns it.
func (r *Registry) Remove(orderSid uint64) (schema.Request, bool) {
	v, ok := r.requests.LoadAndDelete(orderSid)
	if !ok {
		return nil, false
	}
	return v.(schema.Request), true
}

// MarkPendingCancel records cancelSid as the pending cancel for target.
// Returns false if a cancel is already pending on target.
func (r *Registry) MarkPendingCancel(target, cancelSid uint64) bool {
	_, loaded := r.cancelTargets.LoadOrStore(target, cancelSid)
	return !loaded
}

// CancelSidFor returns the pending cancel request sid for target.
func (r *Registry) CancelSidFor(target uint64) (uint64, bool) {
	v, ok := r.cancelTargets.Load(target)
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

// ClearPendingCancel removes the pending-cancel marker for target.
func (r *Registry) ClearPendingCancel(target uint64) {
	r.cancelTargets.Delete(target)
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	n := 0
	r.requests.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Clear drops every request and marker and restarts the sid sequence.
func (r *Registry) Clear() {
	r.requests.Clear()
	r.cancelTargets.Clear()
	r.nextSid.Store(StartOrderSid)
}

// IsClear reports whether the registry holds no state and the sid sequence
// is at its start value.
func (r *Registry) IsClear() bool {
	if r.nextSid.Load() != StartOrderSid {
		return false
	}
	empty := true
	r.requests.Range(func(_, _ any) bool {
		empty = false
		return false
	})
	if !empty {
		return false
	}
	r.cancelTargets.Range(func(_, _ any) bool {
		empty = false
		return false
	})
	return empty
}
