package omes

import (
	"time"

	"github.com/yanun0323/logs"

	"omes/internal/book"
	"omes/internal/exposure"
	"omes/internal/linehandler"
	"omes/internal/obs"
	"omes/internal/registry"
	"omes/internal/schema"
	"omes/internal/throttle"
)

// CompletionFunc delivers a request completion back to its originator.
type CompletionFunc func(schema.RequestCompletion)

// InstrumentConfig declares one tradable instrument.
type InstrumentConfig struct {
	SymbolID        uint32
	UnderlyingID    uint32
	InitialPosition schema.Quantity
}

// Config sizes the service.
type Config struct {
	PurchasingPower schema.Notional
	Instruments     []InstrumentConfig

	// UnderlyingThrottle bounds buy admissions per underlying. Zero
	// NumThrottles disables the check.
	UnderlyingThrottle ThrottleConfig
	DefaultRequestTTL  time.Duration
}

// ThrottleConfig sizes one sliding-window budget.
type ThrottleConfig struct {
	NumThrottles int
	Window       time.Duration
}

// Service is the order-management facade: it admits new and cancel requests
// against the exposure ledger and validation books, hands admitted requests
// to the line's dispatcher, and plays the reconciliation role of reversing
// reservations and completing requests as execution reports come back.
//
// Admission runs on the caller's goroutine; the reconciliation callbacks run
// on the update-processing goroutine. Only one of the two is live per
// lifecycle phase, which is what lets the ledger and books go unlocked.
type Service struct {
	cfg        Config
	exp        *exposure.Exposure
	books      map[uint32]*book.ValidationBook
	underlying map[uint32]*throttle.SlidingWindowTracker
	reg        *registry.Registry
	line       *linehandler.LineHandler
	complete   CompletionFunc
	metrics    *obs.Metrics
	clock      throttle.Clock
}

// NewService builds the service and its per-instrument state. Bind attaches
// the line handler before any request is admitted.
func NewService(cfg Config, reg *registry.Registry, complete CompletionFunc, clock throttle.Clock, metrics *obs.Metrics) *Service {
	if clock == nil {
		clock = throttle.SystemClock
	}
	s := &Service{
		cfg:        cfg,
		exp:        exposure.New(cfg.PurchasingPower),
		books:      make(map[uint32]*book.ValidationBook),
		underlying: make(map[uint32]*throttle.SlidingWindowTracker),
		reg:        reg,
		complete:   complete,
		metrics:    metrics,
		clock:      clock,
	}
	for _, inst := range cfg.Instruments {
		s.books[inst.SymbolID] = book.New(inst.SymbolID, inst.InitialPosition)
		if cfg.UnderlyingThrottle.NumThrottles > 0 {
			if _, ok := s.underlying[inst.UnderlyingID]; !ok {
				s.underlying[inst.UnderlyingID] = throttle.NewSlidingWindowTracker(
					cfg.UnderlyingThrottle.NumThrottles, cfg.UnderlyingThrottle.Window, clock)
			}
		}
	}
	return s
}

// Bind attaches the line handler the service dispatches through.
func (s *Service) Bind(line *linehandler.LineHandler) {
	s.line = line
}

// Exposure returns the purchasing-power ledger.
func (s *Service) Exposure() *exposure.Exposure {
	return s.exp
}

// Book returns the validation book for symbolID.
func (s *Service) Book(symbolID uint32) (*book.ValidationBook, bool) {
	b, ok := s.books[symbolID]
	return b, ok
}

// NewOrder admits a new order request. The request is either handed to the
// dispatcher or completed immediately with a rejection.
func (s *Service) NewOrder(req *schema.NewOrderRequest) {
	started := time.Now()
	defer func() { s.metrics.ObserveAdmission(time.Since(started)) }()

	base := req.Base()
	base.Kind = schema.RequestKindNew
	if base.Throttles <= 0 {
		base.Throttles = 1
	}
	if base.Deadline == 0 && s.cfg.DefaultRequestTTL > 0 {
		base.Deadline = s.clock() + int64(s.cfg.DefaultRequestTTL)
	}

	b, ok := s.books[req.SymbolID]
	if !ok {
		s.completeOnce(base, schema.CompletionFailed, schema.RejectOther, "unknown instrument")
		return
	}

	switch req.Side {
	case schema.SideBuy:
		s.admitBuy(req, b)
	case schema.SideSell:
		s.admitSell(req, b)
	default:
		s.completeOnce(base, schema.CompletionFailed, schema.RejectOther, "unknown side")
	}
}

func (s *Service) admitBuy(req *schema.NewOrderRequest, b *book.ValidationBook) {
	base := req.Base()
	if tracker := s.underlyingFor(req.SymbolID); tracker != nil && !tracker.TryAcquire() {
		s.metrics.IncReject(schema.RejectExceedUnderlyingThrottle)
		s.completeOnce(base, schema.CompletionRejectedInternally, schema.RejectExceedUnderlyingThrottle, "")
		return
	}
	notional := schema.NotionalOf(req.Price, req.Qty)
	if !s.exp.OkToBuy(notional) {
		s.metrics.IncReject(schema.RejectExceedPurchasingPower)
		s.completeOnce(base, schema.CompletionRejected, schema.RejectExceedPurchasingPower, "")
		return
	}
	if rt := b.OkToBuy(req.Price); rt != schema.RejectNone {
		s.metrics.IncReject(rt)
		s.completeOnce(base, schema.CompletionFailed, rt, "")
		return
	}
	s.exp.Dec(notional)
	b.NewBuy(req.Price)
	s.enqueue(req)
}

func (s *Service) admitSell(req *schema.NewOrderRequest, b *book.ValidationBook) {
	base := req.Base()
	if rt := b.OkToSell(req.Price, req.Qty); rt != schema.RejectNone {
		s.metrics.IncReject(rt)
		s.completeOnce(base, schema.CompletionFailed, rt, "")
		return
	}
	b.NewSell(req.Price, req.Qty)
	s.enqueue(req)
}

func (s *Service) enqueue(req *schema.NewOrderRequest) {
	base := req.Base()
	base.OrderSid = s.reg.NextSid()
	s.reg.Put(req)
	s.metrics.IncAdmitted()
	if err := s.line.Offer(req); err != nil {
		s.reg.Remove(base.OrderSid)
		s.reverseNew(req, 0)
		s.completeOnce(base, schema.CompletionFailed, schema.RejectOther, err.Error())
	}
}

// CancelOrder admits a cancel request. force permits cancelling an order
// whose local request no longer exists.
func (s *Service) CancelOrder(req *schema.CancelOrderRequest) {
	base := req.Base()
	base.Kind = schema.RequestKindCancel
	if base.Throttles <= 0 {
		base.Throttles = 1
	}
	if base.Deadline == 0 && s.cfg.DefaultRequestTTL > 0 {
		base.Deadline = s.clock() + int64(s.cfg.DefaultRequestTTL)
	}

	orig, found := s.reg.GetNew(req.OrderSidToCancel)
	if !found && !req.Force {
		s.metrics.IncReject(schema.RejectUnknownOrder)
		s.completeOnce(base, schema.CompletionFailed, schema.RejectUnknownOrder, "")
		return
	}
	if found {
		base.SymbolID = orig.SymbolID
		req.Side = orig.Side
	}

	base.OrderSid = s.reg.NextSid()
	if !s.reg.MarkPendingCancel(req.OrderSidToCancel, base.OrderSid) {
		s.completeOnce(base, schema.CompletionAlreadyInPendingCancel, schema.RejectNone, "")
		return
	}
	s.reg.Put(req)
	if err := s.line.Offer(req); err != nil {
		s.reg.ClearPendingCancel(req.OrderSidToCancel)
		s.reg.Remove(base.OrderSid)
		s.completeOnce(base, schema.CompletionFailed, schema.RejectOther, err.Error())
	}
}

// AmendOrder is not supported on this line.
func (s *Service) AmendOrder(req *schema.AmendOrderRequest) {
	base := req.Base()
	base.Kind = schema.RequestKindAmend
	s.completeOnce(base, schema.CompletionNotSupported, schema.RejectNone, "amend not supported")
}

func (s *Service) underlyingFor(symbolID uint32) *throttle.SlidingWindowTracker {
	for _, inst := range s.cfg.Instruments {
		if inst.SymbolID == symbolID {
			return s.underlying[inst.UnderlyingID]
		}
	}
	return nil
}

// reverseNew releases the reservation of a new-order request by its reset
// quantity, given the cumulative executed quantity at the terminal event.
func (s *Service) reverseNew(req *schema.NewOrderRequest, cum schema.Quantity) {
	b, ok := s.books[req.SymbolID]
	if !ok {
		return
	}
	resetQty := req.Qty - cum
	if resetQty < 0 {
		logs.Errorf("order sid %d cumulative %d exceeds submitted %d", req.OrderSid, cum, req.Qty)
		resetQty = 0
	}
	switch req.Side {
	case schema.SideBuy:
		s.exp.Inc(schema.NotionalOf(req.Price, resetQty))
		b.BuyClosed(req.Price)
	case schema.SideSell:
		b.SellClosed(req.Price, resetQty)
	}
}

// completeOnce delivers the request completion exactly once.
func (s *Service) completeOnce(base *schema.RequestBase, t schema.CompletionType, reject schema.RejectType, reason string) {
	if base.Completion != schema.CompletionUnknown {
		return
	}
	base.Completion = t
	base.Reject = reject
	base.Reason = reason
	if s.complete != nil {
		s.complete(schema.RequestCompletion{
			ClientKey: base.ClientKey,
			OrderSid:  base.OrderSid,
			Type:      t,
			Reject:    reject,
			Reason:    reason,
		})
	}
}

// IsClear reports whether no admission state remains.
func (s *Service) IsClear() bool {
	if !s.exp.IsClear() || !s.reg.IsClear() {
		return false
	}
	for _, b := range s.books {
		if !b.IsClear() {
			return false
		}
	}
	for _, t := range s.underlying {
		if !t.IsClear() {
			return false
		}
	}
	return true
}

// Clear restores every admission structure to its starting value.
func (s *Service) Clear() {
	s.exp.Clear()
	s.reg.Clear()
	for _, b := range s.books {
		b.Clear()
	}
	for _, t := range s.underlying {
		t.Clear()
	}
}
