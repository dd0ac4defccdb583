package store

import (
	"testing"

	"github.com/google/uuid"

	"omes/internal/obs"
	"omes/internal/reconcile"
)

func TestObserveDetectsDroppedUpdates(t *testing.T) {
	metrics := obs.NewMetrics()
	w := NewWriter(nil, uuid.New(), 4, metrics)

	for _, seq := range []uint64{1, 2, 3} {
		w.observe(reconcile.Update{ChannelID: 1, ChannelSeq: seq})
	}
	if got := metrics.Snapshot().SequenceGaps; got != 0 {
		t.Fatalf("contiguous stream counted %d gaps", got)
	}

	// seqs 4 and 5 never arrived
	w.observe(reconcile.Update{ChannelID: 1, ChannelSeq: 6})
	if got := metrics.Snapshot().SequenceGaps; got != 1 {
		t.Fatalf("gap count = %d, want 1", got)
	}

	// the tracker resynchronizes past the gap
	w.observe(reconcile.Update{ChannelID: 1, ChannelSeq: 7})
	if got := metrics.Snapshot().SequenceGaps; got != 1 {
		t.Fatalf("gap count = %d after resync, want 1", got)
	}

	// channels are tracked independently
	w.observe(reconcile.Update{ChannelID: 2, ChannelSeq: 1})
	if got := metrics.Snapshot().SequenceGaps; got != 1 {
		t.Fatalf("fresh channel must not count a gap, got %d", got)
	}
}
