package obs

import (
	"sync/atomic"
	"time"

	"omes/internal/schema"
)

const maxRejectType = int(schema.RejectOther)

// Metrics collects lightweight counters and latency stats. All methods are
// safe on a nil receiver so call sites need no guards.
type Metrics struct {
	admitted         uint64
	rejectCounts     [maxRejectType + 1]uint64
	queueDrops       uint64
	throttleHits     uint64
	dispatchTimeouts uint64
	dispatchSent     uint64
	reconAnomalies   uint64
	sequenceGaps     uint64

	admissionLatency LatencyStats
	dispatchLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Admitted         uint64
	RejectCounts     map[schema.RejectType]uint64
	QueueDrops       uint64
	ThrottleHits     uint64
	DispatchTimeouts uint64
	DispatchSent     uint64
	ReconAnomalies   uint64
	SequenceGaps     uint64
	AdmissionLatency LatencySnapshot
	DispatchLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncAdmitted records an admitted request.
func (m *Metrics) IncAdmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.admitted, 1)
}

// IncReject increments the per-reason rejection counter.
func (m *Metrics) IncReject(reason schema.RejectType) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectCounts) {
		atomic.AddUint64(&m.rejectCounts[idx], 1)
	}
}

// IncQueueDrop records a full-queue admission drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncThrottleHit records a request hitting an exhausted throttle.
func (m *Metrics) IncThrottleHit() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.throttleHits, 1)
}

// IncDispatchTimeout records a request expiring before dispatch.
func (m *Metrics) IncDispatchTimeout() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dispatchTimeouts, 1)
}

// IncDispatchSent records a request forwarded to the exchange.
func (m *Metrics) IncDispatchSent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dispatchSent, 1)
}

// IncReconAnomaly records a reconciliation protocol anomaly.
func (m *Metrics) IncReconAnomaly() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconAnomalies, 1)
}

// IncSequenceGap records a detected channel sequence gap.
func (m *Metrics) IncSequenceGap() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sequenceGaps, 1)
}

// ObserveAdmission measures one admission decision.
func (m *Metrics) ObserveAdmission(d time.Duration) {
	if m == nil {
		return
	}
	m.admissionLatency.Observe(d)
}

// ObserveDispatch measures queue-entry to engine-send latency.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	rejects := make(map[schema.RejectType]uint64)
	for i := range m.rejectCounts {
		if v := atomic.LoadUint64(&m.rejectCounts[i]); v > 0 {
			rejects[schema.RejectType(i)] = v
		}
	}
	return Snapshot{
		Admitted:         atomic.LoadUint64(&m.admitted),
		RejectCounts:     rejects,
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		ThrottleHits:     atomic.LoadUint64(&m.throttleHits),
		DispatchTimeouts: atomic.LoadUint64(&m.dispatchTimeouts),
		DispatchSent:     atomic.LoadUint64(&m.dispatchSent),
		ReconAnomalies:   atomic.LoadUint64(&m.reconAnomalies),
		SequenceGaps:     atomic.LoadUint64(&m.sequenceGaps),
		AdmissionLatency: m.admissionLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
