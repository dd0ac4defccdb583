package reconcile

import (
	"github.com/yanun0323/logs"

	"omes/internal/obs"
)

// StartChannelSeq is the first sequence number assigned on a fresh channel.
const StartChannelSeq uint64 = 1

// Channel is a logical stream of ordered updates for one instrument subset.
// NextSeq stamps outbound updates; Observe validates an inbound stream,
// detecting gaps and resynchronizing rather than halting, since nothing can
// request retransmission.
type Channel struct {
	id      uint32
	nextSeq uint64
	metrics *obs.Metrics
}

// NewChannel creates a channel with its sequence at the start constant.
func NewChannel(id uint32, metrics *obs.Metrics) *Channel {
	return &Channel{id: id, nextSeq: StartChannelSeq, metrics: metrics}
}

// ID returns the channel identifier.
func (c *Channel) ID() uint32 {
	return c.id
}

// NextSeq returns the next sequence number and advances the counter.
func (c *Channel) NextSeq() uint64 {
	seq := c.nextSeq
	c.nextSeq++
	return seq
}

// PeekSeq returns the sequence the next update will carry.
func (c *Channel) PeekSeq() uint64 {
	return c.nextSeq
}

// Observe checks seq against the expected next value. A gap is logged and
// the tracked sequence resynchronized to the observed value. Returns false
// when a gap was detected.
func (c *Channel) Observe(seq uint64) bool {
	if seq == c.nextSeq {
		c.nextSeq = seq + 1
		return true
	}
	logs.Warnf("channel %d sequence gap: expected %d, observed %d, resyncing", c.id, c.nextSeq, seq)
	c.metrics.IncSequenceGap()
	c.nextSeq = seq + 1
	return false
}

// Clear restores the sequence to the start constant.
func (c *Channel) Clear() {
	c.nextSeq = StartChannelSeq
}

// IsClear reports whether the sequence is at the start constant.
func (c *Channel) IsClear() bool {
	return c.nextSeq == StartChannelSeq
}
