package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight counters for the trading loop.
// Uses atomic operations for thread-safety. A single instance is created at
// bootstrap and passed to the components that record into it.
type Metrics struct {
	// Counters
	ticks           atomic.Uint64
	pairsEvaluated  atomic.Uint64
	tradesSubmitted atomic.Uint64
	ordersResolved  atomic.Uint64
	eventsIgnored   atomic.Uint64
	walkAborts      atomic.Uint64
	pairErrors      atomic.Uint64
	inboxDrops      atomic.Uint64

	// Tick latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTick records a processed tick with its latency.
func (m *Metrics) RecordTick(latency time.Duration) {
	m.ticks.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

func (m *Metrics) RecordPairEvaluated() { m.pairsEvaluated.Add(1) }
func (m *Metrics) RecordTrade()         { m.tradesSubmitted.Add(1) }
func (m *Metrics) RecordOrderResolved() { m.ordersResolved.Add(1) }
func (m *Metrics) RecordEventIgnored()  { m.eventsIgnored.Add(1) }
func (m *Metrics) RecordWalkAbort()     { m.walkAborts.Add(1) }
func (m *Metrics) RecordPairError()     { m.pairErrors.Add(1) }
func (m *Metrics) RecordInboxDrop()     { m.inboxDrops.Add(1) }

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Ticks             uint64    `json:"ticks"`
	PairsEvaluated    uint64    `json:"pairs_evaluated"`
	TradesSubmitted   uint64    `json:"trades_submitted"`
	OrdersResolved    uint64    `json:"orders_resolved"`
	EventsIgnored     uint64    `json:"events_ignored"`
	WalkAborts        uint64    `json:"walk_aborts"`
	PairErrors        uint64    `json:"pair_errors"`
	InboxDrops        uint64    `json:"inbox_drops"`
	AvgTickLatencyNs  int64     `json:"avg_tick_latency_ns"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
// A nil receiver yields an empty snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Timestamp: time.Now()}
	}

	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		Ticks:             m.ticks.Load(),
		PairsEvaluated:    m.pairsEvaluated.Load(),
		TradesSubmitted:   m.tradesSubmitted.Load(),
		OrdersResolved:    m.ordersResolved.Load(),
		EventsIgnored:     m.eventsIgnored.Load(),
		WalkAborts:        m.walkAborts.Load(),
		PairErrors:        m.pairErrors.Load(),
		InboxDrops:        m.inboxDrops.Load(),
		AvgTickLatencyNs:  avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticks.Store(0)
	m.pairsEvaluated.Store(0)
	m.tradesSubmitted.Store(0)
	m.ordersResolved.Store(0)
	m.eventsIgnored.Store(0)
	m.walkAborts.Store(0)
	m.pairErrors.Store(0)
	m.inboxDrops.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
