package reconcile

import (
	"sync/atomic"

	"github.com/yanun0323/logs"

	"omes/internal/obs"
	"omes/internal/registry"
	"omes/internal/schema"
)

// Update is a normalized, per-channel sequenced order update. First marks
// the first update any subscriber could have seen for the order; the Order
// snapshot is then the full state rather than a delta.
type Update struct {
	Kind       schema.ReportKind
	ChannelID  uint32
	ChannelSeq uint64
	First      bool
	Order      Order
	Report     schema.Report
}

// Publisher receives normalized updates for fan-out to subscribers.
type Publisher interface {
	Publish(Update)
}

// ServiceHandler is told about reconciled outcomes so the owning service can
// reverse reservations and complete requests. Called on the reconciliation
// goroutine.
type ServiceHandler interface {
	OrderAccepted(o *Order)
	OrderRejected(o *Order)
	OrderExpired(o *Order)
	// OrderCancelled reports a cancelled order. cancelSid is the pending
	// cancel request when solicited is true; otherwise the cancel was
	// exchange-initiated or amend-driven.
	OrderCancelled(o *Order, cancelSid uint64, solicited bool)
	// UnknownOrderCancelled reports a cancel ack for an order with no local
	// request, reachable via force-cancel or after archival.
	UnknownOrderCancelled(origOrderSid uint64, cancelSid uint64, solicited bool)
	CancelRejected(r *schema.CancelRejected)
	AmendRejected(r *schema.AmendRejected)
	TradeCreated(o *Order, r *schema.TradeCreated)
	TradeCancelled(o *Order, r *schema.TradeCancelled)
	// RequestRecovered hands over a request reconstructed from execution
	// reports during recovery, for exposure and book bookkeeping only.
	RequestRecovered(req *schema.NewOrderRequest)
}

// Mode selects the manager's dispatch behavior per lifecycle phase.
type Mode uint16

const (
	ModeNoop Mode = iota
	ModeActive
	ModeRecovery
)

// Manager reconciles decoded execution reports against locally tracked
// order contexts, creating them lazily on first evidence and fanning
// normalized updates back out. Single goroutine ownership, no locks.
type Manager struct {
	contexts map[uint64]*OrderContext
	channels map[uint32]*Channel
	reg      *registry.Registry
	pub      Publisher
	svc      ServiceHandler
	metrics  *obs.Metrics

	// mode is written by the lifecycle goroutine while the report stream is
	// quiescent and read by the reconciliation goroutine.
	mode          atomic.Uint32
	recoveredSids map[uint64]struct{}

	// latestRecoveredSid is the highest sid seen during the recovery pass.
	// The registry's sequence is bumped past it when the manager goes active,
	// while the report stream is quiescent.
	latestRecoveredSid uint64
}

// NewManager creates a manager in noop mode.
func NewManager(reg *registry.Registry, pub Publisher, svc ServiceHandler, metrics *obs.Metrics) *Manager {
	return &Manager{
		contexts:      make(map[uint64]*OrderContext),
		channels:      make(map[uint32]*Channel),
		reg:           reg,
		pub:           pub,
		svc:           svc,
		metrics:       metrics,
		recoveredSids: make(map[uint64]struct{}),
	}
}

// Mode returns the current dispatch mode.
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// Handle dispatches one report according to the current mode. During
// recovery the reconstruction pass runs before the normal handler, so
// exposure reflects reality before the service goes active.
func (m *Manager) Handle(rep schema.Report) {
	switch m.Mode() {
	case ModeNoop:
		logs.Warnf("report kind %d dropped while reconciliation inactive", rep.Kind)
		return
	case ModeRecovery:
		m.recoverFirst(rep)
	}
	m.dispatch(rep)
}

func (m *Manager) dispatch(rep schema.Report) {
	switch rep.Kind {
	case schema.ReportOrderAccepted:
		m.receiveAccepted(rep)
	case schema.ReportOrderRejected:
		m.receiveRejected(rep)
	case schema.ReportOrderCancelled:
		m.receiveCancelled(rep)
	case schema.ReportOrderExpired:
		m.receiveExpired(rep)
	case schema.ReportCancelRejected:
		m.receiveCancelRejected(rep)
	case schema.ReportAmendRejected:
		m.receiveAmendRejected(rep)
	case schema.ReportTradeCreated:
		m.receiveTradeCreated(rep)
	case schema.ReportTradeCancelled:
		m.receiveTradeCancelled(rep)
	default:
		m.anomaly("unhandled report kind %d", rep.Kind)
	}
}

func (m *Manager) receiveAccepted(rep schema.Report) {
	r := rep.Accepted
	ctx, ok := m.contexts[r.OrderSid]
	if !ok {
		req, okr := m.reg.GetNew(r.OrderSid)
		if !okr {
			m.anomaly("accepted for unknown order sid %d", r.OrderSid)
			return
		}
		o := OrderFromRequest(req, r.Status, r.LeavesQty, r.CumQty, r.UpdateTime)
		o.OrderID = r.OrderID
		ctx = m.track(o)
		m.publish(ctx, rep, true)
		m.svc.OrderAccepted(o)
		return
	}
	if ctx.state == ContextArchived {
		m.anomaly("accepted for archived order sid %d", r.OrderSid)
		return
	}
	o := ctx.order
	o.Status = r.Status
	o.LeavesQty = r.LeavesQty
	o.CumQty = r.CumQty
	o.OrderID = r.OrderID
	o.UpdateTime = r.UpdateTime
	m.publish(ctx, rep, false)
	m.svc.OrderAccepted(o)
}

func (m *Manager) receiveRejected(rep schema.Report) {
	r := rep.Rejected
	ctx, ok := m.contexts[r.OrderSid]
	if !ok {
		req, okr := m.reg.GetNew(r.OrderSid)
		if !okr {
			m.anomaly("rejected for unknown order sid %d", r.OrderSid)
			return
		}
		o := OrderFromRequest(req, r.Status, r.LeavesQty, r.CumQty, r.UpdateTime)
		o.OrderID = r.OrderID
		o.Reject = r.Reject
		o.Reason = r.Reason
		ctx = m.track(o)
		m.publish(ctx, rep, true)
	} else {
		if ctx.state == ContextArchived {
			m.anomaly("rejected for archived order sid %d", r.OrderSid)
			return
		}
		o := ctx.order
		o.Status = r.Status
		o.LeavesQty = r.LeavesQty
		o.CumQty = r.CumQty
		o.Reject = r.Reject
		o.Reason = r.Reason
		o.UpdateTime = r.UpdateTime
		m.publish(ctx, rep, false)
	}
	ctx.archive()
	m.svc.OrderRejected(ctx.order)
}

func (m *Manager) receiveCancelled(rep schema.Report) {
	r := rep.Cancelled
	target := r.OrigOrderSid
	cancelSid, solicited := m.reg.CancelSidFor(target)

	ctx, ok := m.contexts[target]
	if !ok {
		req, okr := m.reg.GetNew(target)
		if !okr {
			// Force-cancelled order with no local context, or an ack
			// arriving after archival of everything we knew.
			logs.Warnf("cancelled for unknown order sid %d", target)
			m.svc.UnknownOrderCancelled(target, cancelSid, solicited)
			return
		}
		o := OrderFromRequest(req, r.Status, r.LeavesQty, r.CumQty, r.UpdateTime)
		o.OrderID = r.OrderID
		ctx = m.track(o)
		m.publish(ctx, rep, true)
	} else {
		if ctx.state == ContextArchived {
			m.anomaly("cancelled for archived order sid %d", target)
			return
		}
		o := ctx.order
		o.Status = r.Status
		o.LeavesQty = r.LeavesQty
		o.CumQty = r.CumQty
		o.UpdateTime = r.UpdateTime
		m.publish(ctx, rep, false)
	}
	ctx.archive()
	m.svc.OrderCancelled(ctx.order, cancelSid, solicited)
}

func (m *Manager) receiveExpired(rep schema.Report) {
	r := rep.Expired
	ctx, ok := m.contexts[r.OrderSid]
	if !ok {
		req, okr := m.reg.GetNew(r.OrderSid)
		if !okr {
			m.anomaly("expired for unknown order sid %d", r.OrderSid)
			return
		}
		o := OrderFromRequest(req, r.Status, r.LeavesQty, r.CumQty, r.UpdateTime)
		o.OrderID = r.OrderID
		ctx = m.track(o)
		m.publish(ctx, rep, true)
	} else {
		if ctx.state == ContextArchived {
			m.anomaly("expired for archived order sid %d", r.OrderSid)
			return
		}
		o := ctx.order
		o.Status = r.Status
		o.LeavesQty = r.LeavesQty
		o.CumQty = r.CumQty
		o.UpdateTime = r.UpdateTime
		m.publish(ctx, rep, false)
	}
	ctx.archive()
	m.svc.OrderExpired(ctx.order)
}

func (m *Manager) receiveCancelRejected(rep schema.Report) {
	r := rep.CancelRejected
	// An unknown-order rejection carries no context to touch; the cancel
	// request still completes.
	if r.Reject != schema.RejectUnknownOrder {
		if req, ok := m.reg.Get(r.OrderSid); ok {
			if cancel, okc := req.(*schema.CancelOrderRequest); okc {
				if ctx, okx := m.contexts[cancel.OrderSidToCancel]; okx && ctx.state == ContextActive {
					ctx.order.UpdateTime = r.UpdateTime
					m.publish(ctx, rep, false)
				}
			}
		}
	}
	m.svc.CancelRejected(r)
}

func (m *Manager) receiveAmendRejected(rep schema.Report) {
	r := rep.AmendRejected
	if r.Reject != schema.RejectUnknownOrder {
		if req, ok := m.reg.Get(r.OrderSid); ok {
			if amend, oka := req.(*schema.AmendOrderRequest); oka {
				if ctx, okx := m.contexts[amend.OrderSidToAmend]; okx && ctx.state == ContextActive {
					ctx.order.UpdateTime = r.UpdateTime
					m.publish(ctx, rep, false)
				}
			}
		}
	}
	m.svc.AmendRejected(r)
}

func (m *Manager) receiveTradeCreated(rep schema.Report) {
	r := rep.Trade
	ctx, ok := m.contexts[r.OrderSid]
	if !ok {
		// A trade can be the first evidence: an IOC hitting the bid may
		// produce only an execution.
		req, okr := m.reg.GetNew(r.OrderSid)
		if !okr {
			m.anomaly("trade for unknown order sid %d", r.OrderSid)
			return
		}
		o := OrderFromRequest(req, r.Status, r.LeavesQty, r.CumQty, r.UpdateTime)
		o.OrderID = r.OrderID
		ctx = m.track(o)
		m.publish(ctx, rep, true)
	} else {
		if ctx.state == ContextArchived {
			m.anomaly("trade for archived order sid %d", r.OrderSid)
			return
		}
		o := ctx.order
		o.Status = r.Status
		o.LeavesQty = r.LeavesQty
		o.CumQty = r.CumQty
		o.UpdateTime = r.UpdateTime
		m.publish(ctx, rep, false)
	}
	m.svc.TradeCreated(ctx.order, r)
	if ctx.order.Status == schema.OrderStatusFilled {
		delete(m.contexts, r.OrderSid)
	}
}

func (m *Manager) receiveTradeCancelled(rep schema.Report) {
	r := rep.TradeCancelled
	ctx, ok := m.contexts[r.OrderSid]
	if !ok {
		m.anomaly("trade cancel for unknown order sid %d", r.OrderSid)
		return
	}
	o := ctx.order
	o.Status = r.Status
	o.LeavesQty = r.LeavesQty
	o.CumQty = r.CumQty
	o.UpdateTime = r.UpdateTime
	m.publish(ctx, rep, false)
	m.svc.TradeCancelled(o, r)
}

// recoverFirst reconstructs a best-effort request for an order whose
// original request was lost across restart. Order type, TIF and algo flag
// are guesses, used for bookkeeping only and never resent.
func (m *Manager) recoverFirst(rep schema.Report) {
	sid, symbolID, side, price, leaves, cum := recoveryFields(rep)
	if sid == 0 {
		return
	}
	m.noteRecoveredSid(sid)
	if rep.Kind == schema.ReportOrderCancelled {
		// the cancel request's own sid is consumed too
		m.noteRecoveredSid(rep.Cancelled.OrderSid)
	}
	if _, dup := m.recoveredSids[sid]; dup {
		m.anomaly("duplicate recovery evidence for order sid %d", sid)
		return
	}
	m.recoveredSids[sid] = struct{}{}
	if _, ok := m.reg.Get(sid); ok {
		return
	}
	req := &schema.NewOrderRequest{
		RequestBase: schema.RequestBase{
			Kind:      schema.RequestKindNew,
			OrderSid:  sid,
			SymbolID:  symbolID,
			Throttles: 1,
		},
		Side:    side,
		Type:    schema.OrderTypeLimit,
		TIF:     schema.TimeInForceDay,
		Price:   price,
		Qty:     cum + leaves,
		Guessed: true,
	}
	m.reg.Put(req)
	m.svc.RequestRecovered(req)
}

func (m *Manager) noteRecoveredSid(sid uint64) {
	if sid > m.latestRecoveredSid {
		m.latestRecoveredSid = sid
	}
}

func recoveryFields(rep schema.Report) (sid uint64, symbolID uint32, side schema.Side, price schema.Price, leaves, cum schema.Quantity) {
	switch rep.Kind {
	case schema.ReportOrderAccepted:
		r := rep.Accepted
		return r.OrderSid, r.SymbolID, r.Side, r.Price, r.LeavesQty, r.CumQty
	case schema.ReportOrderRejected:
		r := rep.Rejected
		return r.OrderSid, r.SymbolID, r.Side, r.Price, r.LeavesQty, r.CumQty
	case schema.ReportOrderCancelled:
		r := rep.Cancelled
		return r.OrigOrderSid, r.SymbolID, r.Side, r.Price, r.LeavesQty, r.CumQty
	case schema.ReportOrderExpired:
		r := rep.Expired
		return r.OrderSid, r.SymbolID, r.Side, r.Price, r.LeavesQty, r.CumQty
	case schema.ReportTradeCreated:
		r := rep.Trade
		return r.OrderSid, r.SymbolID, r.Side, r.ExecPrice, r.LeavesQty, r.CumQty
	default:
		return 0, 0, schema.SideUnknown, 0, 0, 0
	}
}

func (m *Manager) track(o *Order) *OrderContext {
	ctx := newOrderContext(o, m.channelFor(o.SymbolID))
	m.contexts[o.Sid] = ctx
	return ctx
}

func (m *Manager) channelFor(symbolID uint32) *Channel {
	ch, ok := m.channels[symbolID]
	if !ok {
		ch = NewChannel(symbolID, m.metrics)
		m.channels[symbolID] = ch
	}
	return ch
}

func (m *Manager) publish(ctx *OrderContext, rep schema.Report, first bool) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(Update{
		Kind:       rep.Kind,
		ChannelID:  ctx.channel.ID(),
		ChannelSeq: ctx.channel.NextSeq(),
		First:      first,
		Order:      *ctx.order,
		Report:     rep,
	})
}

func (m *Manager) anomaly(format string, args ...any) {
	logs.Errorf(format, args...)
	m.metrics.IncReconAnomaly()
}

// Context returns the tracked context for orderSid.
func (m *Manager) Context(orderSid uint64) (*OrderContext, bool) {
	ctx, ok := m.contexts[orderSid]
	return ctx, ok
}

// Warmup enables normal dispatch for synthetic traffic.
func (m *Manager) Warmup() {
	m.mode.Store(uint32(ModeActive))
}

// Recover enables dispatch with the reconstruction pass installed.
func (m *Manager) Recover() {
	m.recoveredSids = make(map[uint64]struct{})
	m.mode.Store(uint32(ModeRecovery))
}

// Active enables normal dispatch. Leaving recovery it moves the registry's
// sid sequence past every recovered sid so none is ever reissued.
func (m *Manager) Active() {
	if m.latestRecoveredSid > 0 {
		m.reg.SyncSidFloor(m.latestRecoveredSid + 1)
		m.latestRecoveredSid = 0
	}
	m.mode.Store(uint32(ModeActive))
}

// Reset drops every context and channel and disables dispatch.
func (m *Manager) Reset() {
	m.contexts = make(map[uint64]*OrderContext)
	m.channels = make(map[uint32]*Channel)
	m.recoveredSids = make(map[uint64]struct{})
	m.latestRecoveredSid = 0
	m.mode.Store(uint32(ModeNoop))
}

// IsClear reports whether no context or channel state remains.
func (m *Manager) IsClear() bool {
	if len(m.contexts) != 0 || len(m.recoveredSids) != 0 {
		return false
	}
	for _, ch := range m.channels {
		if !ch.IsClear() {
			return false
		}
	}
	return true
}
