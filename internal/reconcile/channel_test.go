package reconcile

import (
	"testing"

	"omes/internal/obs"
)

func TestSequenceContiguity(t *testing.T) {
	ch := NewChannel(1, obs.NewMetrics())

	if seq := ch.NextSeq(); seq != StartChannelSeq {
		t.Fatalf("first seq = %d, want %d", seq, StartChannelSeq)
	}
	if seq := ch.NextSeq(); seq != StartChannelSeq+1 {
		t.Fatalf("second seq = %d, want %d", seq, StartChannelSeq+1)
	}
	if ch.PeekSeq() != StartChannelSeq+2 {
		t.Fatalf("peek = %d, want %d", ch.PeekSeq(), StartChannelSeq+2)
	}
}

func TestObserveGapResyncs(t *testing.T) {
	m := obs.NewMetrics()
	ch := NewChannel(1, m)

	if !ch.Observe(1) || !ch.Observe(2) {
		t.Fatalf("contiguous sequence should pass")
	}
	if ch.Observe(5) {
		t.Fatalf("gap must be reported")
	}
	// resynchronized: the stream continues from the observed point
	if !ch.Observe(6) {
		t.Fatalf("post-gap sequence should be accepted after resync")
	}
	if m.Snapshot().SequenceGaps != 1 {
		t.Fatalf("gap count = %d, want 1", m.Snapshot().SequenceGaps)
	}
}

func TestChannelClear(t *testing.T) {
	ch := NewChannel(1, obs.NewMetrics())
	ch.NextSeq()
	if ch.IsClear() {
		t.Fatalf("advanced channel must not be clear")
	}
	ch.Clear()
	if !ch.IsClear() {
		t.Fatalf("cleared channel should be at the start sequence")
	}
}
