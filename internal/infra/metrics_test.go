package infra

import (
	"testing"
	"time"
)

func TestMetrics_RecordTick(t *testing.T) {
	m := NewMetrics()

	m.RecordTick(1000 * time.Nanosecond)
	m.RecordTick(2000 * time.Nanosecond)
	m.RecordTick(3000 * time.Nanosecond)

	snap := m.Snapshot()

	if snap.Ticks != 3 {
		t.Errorf("Expected 3 ticks, got %d", snap.Ticks)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgTickLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgTickLatencyNs)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordPairEvaluated()
	m.RecordPairEvaluated()
	m.RecordTrade()
	m.RecordOrderResolved()
	m.RecordEventIgnored()
	m.RecordWalkAbort()
	m.RecordPairError()
	m.RecordInboxDrop()

	snap := m.Snapshot()
	if snap.PairsEvaluated != 2 {
		t.Errorf("Expected 2 pairs evaluated, got %d", snap.PairsEvaluated)
	}
	if snap.TradesSubmitted != 1 || snap.OrdersResolved != 1 || snap.EventsIgnored != 1 {
		t.Errorf("Unexpected trade counters: %+v", snap)
	}
	if snap.WalkAborts != 1 || snap.PairErrors != 1 || snap.InboxDrops != 1 {
		t.Errorf("Unexpected error counters: %+v", snap)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordTick(time.Microsecond)
	m.RecordPairError()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.Ticks != 0 {
		t.Error("Expected 0 ticks after reset")
	}
	if snap.PairErrors != 0 {
		t.Error("Expected 0 pair errors after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}

func TestMetrics_NilSnapshot(t *testing.T) {
	var m *Metrics
	snap := m.Snapshot()
	if snap.Ticks != 0 || snap.Timestamp.IsZero() {
		t.Errorf("Expected empty snapshot with timestamp, got %+v", snap)
	}
}
