package omes

import (
	"github.com/yanun0323/logs"

	"omes/internal/reconcile"
	"omes/internal/schema"
)

// Dispatcher outcomes. A request that never reached the exchange releases its
// full reservation; a request the dispatcher handed to the engine waits for
// execution reports instead.

func (s *Service) Timeout(req schema.Request) {
	s.dispatchTerminal(req, schema.CompletionTimeout, schema.RejectNone, "")
}

func (s *Service) Throttled(req schema.Request) {
	s.dispatchTerminal(req, schema.CompletionThrottled, schema.RejectNone, "")
}

func (s *Service) ThrottledThenTimeout(req schema.Request) {
	s.dispatchTerminal(req, schema.CompletionThrottledThenTimeout, schema.RejectNone, "")
}

func (s *Service) SentToExchange(schema.Request) {}

func (s *Service) Fail(req schema.Request, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.dispatchTerminal(req, schema.CompletionFailed, schema.RejectOther, reason)
}

func (s *Service) dispatchTerminal(req schema.Request, t schema.CompletionType, reject schema.RejectType, reason string) {
	base := req.Base()
	s.reg.Remove(base.OrderSid)
	switch r := req.(type) {
	case *schema.NewOrderRequest:
		s.reverseNew(r, 0)
	case *schema.CancelOrderRequest:
		s.reg.ClearPendingCancel(r.OrderSidToCancel)
	}
	s.completeOnce(base, t, reject, reason)
}

// Reconciliation callbacks. These run on the update-processing goroutine
// after the manager has applied the report to its order context.

func (s *Service) OrderAccepted(o *reconcile.Order) {
	if req, ok := s.reg.GetNew(o.Sid); ok {
		s.completeOnce(req.Base(), schema.CompletionOK, schema.RejectNone, "")
	}
}

func (s *Service) OrderRejected(o *reconcile.Order) {
	req, ok := s.reg.GetNew(o.Sid)
	if !ok {
		logs.Warnf("rejected order sid %d has no local request", o.Sid)
		return
	}
	s.reg.Remove(o.Sid)
	s.reverseNew(req, o.CumQty)
	s.completeOnce(req.Base(), schema.CompletionRejected, o.Reject, o.Reason)
}

func (s *Service) OrderExpired(o *reconcile.Order) {
	req, ok := s.reg.GetNew(o.Sid)
	if !ok {
		return
	}
	s.reg.Remove(o.Sid)
	s.reverseNew(req, o.CumQty)
	s.completeOnce(req.Base(), schema.CompletionOK, schema.RejectNone, "expired")
}

func (s *Service) OrderCancelled(o *reconcile.Order, cancelSid uint64, solicited bool) {
	if req, ok := s.reg.GetNew(o.Sid); ok {
		s.reg.Remove(o.Sid)
		s.reverseNew(req, o.CumQty)
		s.completeOnce(req.Base(), schema.CompletionOK, schema.RejectNone, "cancelled")
	}
	s.finishCancel(o.Sid, cancelSid, solicited)
}

func (s *Service) UnknownOrderCancelled(origOrderSid uint64, cancelSid uint64, solicited bool) {
	s.finishCancel(origOrderSid, cancelSid, solicited)
}

func (s *Service) finishCancel(target, cancelSid uint64, solicited bool) {
	s.reg.ClearPendingCancel(target)
	if !solicited {
		return
	}
	if req, ok := s.reg.Remove(cancelSid); ok {
		s.completeOnce(req.Base(), schema.CompletionOK, schema.RejectNone, "")
	}
}

func (s *Service) CancelRejected(r *schema.CancelRejected) {
	req, ok := s.reg.Remove(r.OrderSid)
	if !ok {
		return
	}
	if c, isCancel := req.(*schema.CancelOrderRequest); isCancel {
		s.reg.ClearPendingCancel(c.OrderSidToCancel)
	}
	s.completeOnce(req.Base(), schema.CompletionRejected, r.Reject, r.Reason)
}

func (s *Service) AmendRejected(r *schema.AmendRejected) {
	req, ok := s.reg.Remove(r.OrderSid)
	if !ok {
		return
	}
	s.completeOnce(req.Base(), schema.CompletionRejected, r.Reject, r.Reason)
}

func (s *Service) TradeCreated(o *reconcile.Order, r *schema.TradeCreated) {
	b := s.books[o.SymbolID]
	switch o.Side {
	case schema.SideBuy:
		// The buy reservation stays spent; only the position grows.
		if b != nil {
			b.BuyTrade(r.ExecQty)
		}
	case schema.SideSell:
		s.exp.Inc(schema.NotionalOf(r.ExecPrice, r.ExecQty))
	}
	if o.Status != schema.OrderStatusFilled {
		return
	}
	req, ok := s.reg.GetNew(o.Sid)
	if !ok {
		return
	}
	s.reg.Remove(o.Sid)
	if b != nil {
		switch o.Side {
		case schema.SideBuy:
			b.BuyClosed(req.Price)
		case schema.SideSell:
			b.SellClosed(req.Price, 0)
		}
	}
	s.completeOnce(req.Base(), schema.CompletionOK, schema.RejectNone, "filled")
}

func (s *Service) TradeCancelled(o *reconcile.Order, r *schema.TradeCancelled) {
	b := s.books[o.SymbolID]
	switch o.Side {
	case schema.SideBuy:
		s.exp.Inc(schema.NotionalOf(r.ExecPrice, r.ExecQty))
		if b != nil {
			b.BuyTradeCancelled(r.ExecQty)
		}
	case schema.SideSell:
		s.exp.Dec(schema.NotionalOf(r.ExecPrice, r.ExecQty))
		if b != nil {
			b.SellTradeCancelled(r.ExecQty)
		}
	}
}

// RequestRecovered re-reserves exposure and book levels for a request
// reconstructed from recovery reports. The manager has already registered it.
func (s *Service) RequestRecovered(req *schema.NewOrderRequest) {
	b, ok := s.books[req.SymbolID]
	if !ok {
		logs.Errorf("recovered order sid %d references unknown instrument %d", req.OrderSid, req.SymbolID)
		return
	}
	switch req.Side {
	case schema.SideBuy:
		s.exp.Dec(schema.NotionalOf(req.Price, req.Qty))
		b.NewBuy(req.Price)
	case schema.SideSell:
		b.NewSell(req.Price, req.Qty)
	}
}
