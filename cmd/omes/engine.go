package main

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"omes/internal/schema"
)

// reportFunc routes a decoded execution report toward the line.
type reportFunc func(schema.Report) error

// recoverFunc replays the previous session's order state.
type recoverFunc func(context.Context) error

// loopbackEngine is a venue stand-in for bring-up: every sent order is
// immediately acknowledged back through the report path. It keeps the set of
// resting sids so cancels ack or reject the way a venue would.
type loopbackEngine struct {
	report reportFunc
	replay recoverFunc

	mu   sync.Mutex
	open map[uint64]*schema.NewOrderRequest
}

func newLoopbackEngine(report reportFunc, replay recoverFunc) *loopbackEngine {
	return &loopbackEngine{
		report: report,
		replay: replay,
		open:   make(map[uint64]*schema.NewOrderRequest),
	}
}

func (e *loopbackEngine) Send(req schema.Request) error {
	now := time.Now().UnixNano()
	switch r := req.(type) {
	case *schema.NewOrderRequest:
		e.mu.Lock()
		e.open[r.OrderSid] = r
		e.mu.Unlock()
		return e.report(schema.Report{
			Kind: schema.ReportOrderAccepted,
			Accepted: &schema.OrderAccepted{
				OrderSid:   r.OrderSid,
				SymbolID:   r.SymbolID,
				OrderID:    int64(r.OrderSid),
				Side:       r.Side,
				Status:     schema.OrderStatusNew,
				Price:      r.Price,
				LeavesQty:  r.Qty,
				UpdateTime: now,
			},
		})
	case *schema.CancelOrderRequest:
		e.mu.Lock()
		orig, ok := e.open[r.OrderSidToCancel]
		if ok {
			delete(e.open, r.OrderSidToCancel)
		}
		e.mu.Unlock()
		if !ok {
			return e.report(schema.Report{
				Kind: schema.ReportCancelRejected,
				CancelRejected: &schema.CancelRejected{
					OrderSid:   r.OrderSid,
					SymbolID:   r.SymbolID,
					Reject:     schema.RejectUnknownOrder,
					Reason:     "order not resting",
					UpdateTime: now,
				},
			})
		}
		return e.report(schema.Report{
			Kind: schema.ReportOrderCancelled,
			Cancelled: &schema.OrderCancelled{
				OrderSid:     r.OrderSid,
				OrigOrderSid: r.OrderSidToCancel,
				SymbolID:     orig.SymbolID,
				OrderID:      int64(orig.OrderSid),
				Side:         orig.Side,
				Status:       schema.OrderStatusCancelled,
				Price:        orig.Price,
				CumQty:       0,
				UpdateTime:   now,
			},
		})
	default:
		return e.report(schema.Report{Kind: schema.ReportUnknown})
	}
}

func (e *loopbackEngine) Warmup(context.Context) error {
	return nil
}

func (e *loopbackEngine) StartRecovery(ctx context.Context) error {
	go func() {
		if err := e.replay(ctx); err != nil {
			logs.Errorf("recovery replay failed: %v", err)
		}
	}()
	return nil
}

func (e *loopbackEngine) Active(context.Context) error {
	return nil
}

func (e *loopbackEngine) Stop(context.Context) error {
	return nil
}

func (e *loopbackEngine) Reset() error {
	e.mu.Lock()
	e.open = make(map[uint64]*schema.NewOrderRequest)
	e.mu.Unlock()
	return nil
}

func (e *loopbackEngine) IsClear() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open) == 0
}
