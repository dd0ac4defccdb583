package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"omes/internal/bus"
	"omes/internal/obs"
	"omes/internal/reconcile"
	"omes/internal/schema"
)

// OrderSnapshot is one live order's last reconciled state, keyed by the
// line session that produced it. Terminal orders are removed, so the table
// holds exactly the open set a restart has to re-reserve.
type OrderSnapshot struct {
	Session    string `gorm:"primaryKey;size:36"`
	OrderSid   uint64 `gorm:"primaryKey;autoIncrement:false"`
	ClientKey  uint32
	SymbolID   uint32 `gorm:"index"`
	OrderID    int64
	Side       schema.Side
	Type       schema.OrderType
	TIF        schema.TimeInForce
	Price      schema.Price
	StopPrice  schema.Price
	Qty        schema.Quantity
	LeavesQty  schema.Quantity
	CumQty     schema.Quantity
	Status     schema.OrderStatus
	UpdateTime int64
	ChannelID  uint32
	ChannelSeq uint64
}

// Writer persists reconciled updates. It implements reconcile.Publisher and
// drains its queue on its own goroutine so the reconciliation path never
// blocks on the database.
type Writer struct {
	db      *gorm.DB
	session uuid.UUID
	queue   *bus.Queue[reconcile.Update]
	done    chan struct{}
	metrics *obs.Metrics

	// channels validates per-channel sequences on the consume side; a gap
	// means an update was dropped before reaching the database.
	channels map[uint32]*reconcile.Channel
}

// NewWriter creates a writer for one line session.
func NewWriter(db *gorm.DB, session uuid.UUID, queueCapacity int, metrics *obs.Metrics) *Writer {
	return &Writer{
		db:       db,
		session:  session,
		queue:    bus.NewQueue[reconcile.Update](queueCapacity),
		done:     make(chan struct{}),
		metrics:  metrics,
		channels: make(map[uint32]*reconcile.Channel),
	}
}

// Publish enqueues an update for persistence. Full queue drops with a log
// rather than stalling reconciliation.
func (w *Writer) Publish(u reconcile.Update) {
	if err := w.queue.TryPublish(u); err != nil {
		logs.Errorf("snapshot writer dropped update for sid %d: %v", u.Order.Sid, err)
	}
}

// Start runs the writer until its queue is closed.
func (w *Writer) Start(ctx context.Context) {
	defer close(w.done)
	for {
		u, ok := w.queue.Poll(ctx)
		if !ok {
			return
		}
		w.apply(ctx, u)
	}
}

// Stop closes the queue; Done is closed once the drain finishes.
func (w *Writer) Stop() {
	w.queue.Close()
}

// Done reports writer goroutine exit.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// observe validates the update's channel sequence. The snapshot for an order
// behind a gap stays stale until its next update, so the gap is surfaced
// rather than repaired.
func (w *Writer) observe(u reconcile.Update) {
	ch, ok := w.channels[u.ChannelID]
	if !ok {
		ch = reconcile.NewChannel(u.ChannelID, w.metrics)
		w.channels[u.ChannelID] = ch
	}
	ch.Observe(u.ChannelSeq)
}

func (w *Writer) apply(ctx context.Context, u reconcile.Update) {
	w.observe(u)
	if u.Order.Status.Terminal() {
		err := w.db.WithContext(ctx).
			Where("session = ? AND order_sid = ?", w.session.String(), u.Order.Sid).
			Delete(&OrderSnapshot{}).Error
		if err != nil {
			logs.Errorf("snapshot delete failed for sid %d: %v", u.Order.Sid, err)
		}
		return
	}

	row := w.toRow(u)
	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}, {Name: "order_sid"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		logs.Errorf("snapshot upsert failed for sid %d: %v", u.Order.Sid, err)
	}
}

func (w *Writer) toRow(u reconcile.Update) OrderSnapshot {
	o := u.Order
	return OrderSnapshot{
		Session:    w.session.String(),
		OrderSid:   o.Sid,
		ClientKey:  o.ClientKey,
		SymbolID:   o.SymbolID,
		OrderID:    o.OrderID,
		Side:       o.Side,
		Type:       o.Type,
		TIF:        o.TIF,
		Price:      o.Price,
		StopPrice:  o.StopPrice,
		Qty:        o.Qty,
		LeavesQty:  o.LeavesQty,
		CumQty:     o.CumQty,
		Status:     o.Status,
		UpdateTime: o.UpdateTime,
		ChannelID:  u.ChannelID,
		ChannelSeq: u.ChannelSeq,
	}
}
