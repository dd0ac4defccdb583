package store

import (
	"testing"

	"omes/internal/schema"
)

func collector() (ReportSink, *[]schema.Report) {
	var got []schema.Report
	return func(rep schema.Report) error {
		got = append(got, rep)
		return nil
	}, &got
}

func TestOfferPassesThroughWhenIdle(t *testing.T) {
	sink, got := collector()
	r := NewRecoverer(nil, sink)

	rep := schema.Report{Kind: schema.ReportOrderAccepted, Accepted: &schema.OrderAccepted{OrderSid: 1}}
	if err := r.Offer(rep); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if len(*got) != 1 || (*got)[0].Kind != schema.ReportOrderAccepted {
		t.Fatalf("reports = %v", *got)
	}
}

func TestReplayOrdersSnapshotsBeforeLiveReports(t *testing.T) {
	sink, got := collector()
	r := NewRecoverer(nil, sink)

	r.beginBuffering()
	// live reports arriving mid-recovery are held back
	live := schema.Report{Kind: schema.ReportTradeCreated, Trade: &schema.TradeCreated{OrderSid: 9}}
	if err := r.Offer(live); err != nil {
		t.Fatalf("offer during recovery: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("live report leaked ahead of the replay")
	}

	rows := []OrderSnapshot{
		{OrderSid: 8000001, SymbolID: 1, Side: schema.SideBuy, Status: schema.OrderStatusNew, Price: 100, LeavesQty: 5, CumQty: 2},
		{OrderSid: 8000002, SymbolID: 2, Side: schema.SideSell, Status: schema.OrderStatusPartiallyFilled, Price: 250, LeavesQty: 1, CumQty: 9},
	}
	if err := r.replay(rows); err != nil {
		t.Fatalf("replay: %v", err)
	}

	reps := *got
	if len(reps) != 4 {
		t.Fatalf("reports = %d, want snapshots, live, marker", len(reps))
	}
	if reps[0].Accepted.OrderSid != 8000001 || reps[1].Accepted.OrderSid != 8000002 {
		t.Fatalf("snapshot order wrong: %v %v", reps[0].Accepted, reps[1].Accepted)
	}
	if reps[2].Kind != schema.ReportTradeCreated {
		t.Fatalf("buffered live report missing, got kind %d", reps[2].Kind)
	}
	if reps[3].Kind != schema.ReportEndOfRecovery {
		t.Fatalf("stream must end with the recovery marker, got kind %d", reps[3].Kind)
	}

	// after the marker the recoverer passes reports straight through
	if err := r.Offer(live); err != nil {
		t.Fatalf("offer after recovery: %v", err)
	}
	if len(*got) != 5 {
		t.Fatalf("post-recovery report not delivered")
	}
}

func TestSnapshotReportCarriesOrderFields(t *testing.T) {
	row := &OrderSnapshot{
		Session:    "s",
		OrderSid:   8000042,
		SymbolID:   7,
		OrderID:    4242,
		Side:       schema.SideSell,
		Price:      1250,
		LeavesQty:  3,
		CumQty:     1,
		Status:     schema.OrderStatusPartiallyFilled,
		UpdateTime: 1700000000,
	}
	rep := snapshotReport(row)
	if rep.Kind != schema.ReportOrderAccepted {
		t.Fatalf("kind = %d", rep.Kind)
	}
	a := rep.Accepted
	if a.OrderSid != 8000042 || a.SymbolID != 7 || a.OrderID != 4242 {
		t.Fatalf("identity fields wrong: %+v", a)
	}
	if a.Side != schema.SideSell || a.Price != 1250 || a.LeavesQty != 3 || a.CumQty != 1 {
		t.Fatalf("order fields wrong: %+v", a)
	}
	if a.Status != schema.OrderStatusPartiallyFilled || a.UpdateTime != 1700000000 {
		t.Fatalf("status fields wrong: %+v", a)
	}
}
