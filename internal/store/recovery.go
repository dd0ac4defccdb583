package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"omes/internal/schema"
)

// ReportSink accepts decoded execution reports, normally the line's report
// processor.
type ReportSink func(schema.Report) error

// Recoverer rebuilds in-memory order state from a previous session's
// snapshots. While a recovery is in flight it buffers live reports so the
// snapshot replay is observed first, then drains the buffer and signals the
// end of the stream.
type Recoverer struct {
	db   *gorm.DB
	sink ReportSink

	mu        sync.Mutex
	buffering bool
	buffer    []schema.Report
}

// NewRecoverer creates a recoverer feeding the given sink.
func NewRecoverer(db *gorm.DB, sink ReportSink) *Recoverer {
	return &Recoverer{db: db, sink: sink}
}

// Offer routes one live report. During recovery it is buffered behind the
// snapshot replay; otherwise it goes straight to the sink.
func (r *Recoverer) Offer(rep schema.Report) error {
	r.mu.Lock()
	if r.buffering {
		r.buffer = append(r.buffer, rep)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.sink(rep)
}

// Recover replays the previous session's open orders into the sink, then
// any reports buffered meanwhile, then the end-of-recovery marker.
func (r *Recoverer) Recover(ctx context.Context, previous uuid.UUID) error {
	r.beginBuffering()

	rows, err := r.load(ctx, previous)
	if err != nil {
		r.mu.Lock()
		r.buffering = false
		r.mu.Unlock()
		return err
	}
	logs.Infof("recovering %d open orders from session %s", len(rows), previous)

	return r.replay(rows)
}

func (r *Recoverer) beginBuffering() {
	r.mu.Lock()
	r.buffering = true
	r.buffer = r.buffer[:0]
	r.mu.Unlock()
}

// replay feeds the snapshot rows, drains anything buffered meanwhile and
// terminates the stream.
func (r *Recoverer) replay(rows []OrderSnapshot) error {
	for i := range rows {
		if err := r.sink(snapshotReport(&rows[i])); err != nil {
			logs.Errorf("recovery replay stalled at sid %d: %v", rows[i].OrderSid, err)
		}
	}

	for {
		r.mu.Lock()
		if len(r.buffer) == 0 {
			r.buffering = false
			r.mu.Unlock()
			break
		}
		pending := r.buffer
		r.buffer = nil
		r.mu.Unlock()
		for _, rep := range pending {
			if err := r.sink(rep); err != nil {
				logs.Errorf("buffered report replay failed: %v", err)
			}
		}
	}

	return r.sink(schema.Report{Kind: schema.ReportEndOfRecovery})
}

func (r *Recoverer) load(ctx context.Context, session uuid.UUID) ([]OrderSnapshot, error) {
	var rows []OrderSnapshot
	err := r.db.WithContext(ctx).
		Where("session = ?", session.String()).
		Order("order_sid").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// snapshotReport renders a stored open order as the accepted report the
// reconciliation path expects during recovery.
func snapshotReport(row *OrderSnapshot) schema.Report {
	return schema.Report{
		Kind: schema.ReportOrderAccepted,
		Accepted: &schema.OrderAccepted{
			OrderSid:   row.OrderSid,
			SymbolID:   row.SymbolID,
			OrderID:    row.OrderID,
			Side:       row.Side,
			Status:     row.Status,
			Price:      row.Price,
			LeavesQty:  row.LeavesQty,
			CumQty:     row.CumQty,
			UpdateTime: row.UpdateTime,
		},
	}
}
