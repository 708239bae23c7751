// Package obs holds lightweight in-process observability: counters and
// latency aggregates cheap enough to sit on the dispatch path.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType   = int(schema.EventAnomaly)
	maxRiskReason  = int(schema.RiskReasonPositionLimit)
	maxAnomalyKind = int(schema.AnomalyStreamInterrupted)
)

// Metrics collects counters and latency stats. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	anomalyCounts    [maxAnomalyKind + 1]uint64
	overflowDrops    uint64
	walDrops         uint64

	eventLatency    LatencyStats
	dispatchLatency LatencyStats
	riskEvalLatency LatencyStats
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
	EventCounts      map[schema.EventType]uint64
	RiskReasonCounts map[schema.RiskReason]uint64
	AnomalyCounts    map[schema.AnomalyKind]uint64
	OverflowDrops    uint64
	WALDrops         uint64
	EventLatency     LatencySnapshot
	DispatchLatency  LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a dispatched event and tracks feed latency when both
// timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncRiskReason counts a risk decision by reason.
func (m *Metrics) IncRiskReason(reason schema.RiskReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// IncAnomaly counts a published anomaly by kind.
func (m *Metrics) IncAnomaly(kind schema.AnomalyKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.anomalyCounts) {
		atomic.AddUint64(&m.anomalyCounts[idx], 1)
	}
}

// IncOverflowDrop records a queued subscriber dropping an event.
func (m *Metrics) IncOverflowDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.overflowDrops, 1)
}

// IncWALDrop records a WAL append that could not be queued.
func (m *Metrics) IncWALDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.walDrops, 1)
}

// ObserveDispatch measures one pass through the dispatch point.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	riskCounts := make(map[schema.RiskReason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[schema.RiskReason(i)] = v
		}
	}
	anomalyCounts := make(map[schema.AnomalyKind]uint64)
	for i := range m.anomalyCounts {
		if v := atomic.LoadUint64(&m.anomalyCounts[i]); v > 0 {
			anomalyCounts[schema.AnomalyKind(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		RiskReasonCounts: riskCounts,
		AnomalyCounts:    anomalyCounts,
		OverflowDrops:    atomic.LoadUint64(&m.overflowDrops),
		WALDrops:         atomic.LoadUint64(&m.walDrops),
		EventLatency:     m.eventLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
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
