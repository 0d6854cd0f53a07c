package engine

import (
	"sort"
	"time"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

// TrackedOrder is an in-flight order on a market leg.
type TrackedOrder struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Tracker is the per-leg order lifecycle state machine.
//
// A leg is Idle without a tracked order, Pending while its order is younger
// than maxAge and Stale afterwards. Stale legs plan like Idle ones but keep
// their entry until a resolving event arrives or a new order replaces it.
//
// Tracker is not safe for concurrent use; the strategy owns it.
type Tracker struct {
	maxAge   time.Duration
	cooldown time.Duration

	orders    map[domain.LegKey]TrackedOrder
	index     map[string]domain.LegKey
	lastTrade map[domain.LegKey]time.Time
}

// NewTracker creates a tracker with the given staleness window and post-trade cooldown.
func NewTracker(maxAge, cooldown time.Duration) *Tracker {
	return &Tracker{
		maxAge:    maxAge,
		cooldown:  cooldown,
		orders:    make(map[domain.LegKey]TrackedOrder),
		index:     make(map[string]domain.LegKey),
		lastTrade: make(map[domain.LegKey]time.Time),
	}
}

// Busy reports whether the leg has a pending, non-stale order.
func (t *Tracker) Busy(key domain.LegKey, now time.Time) bool {
	o, ok := t.orders[key]
	return ok && now.Sub(o.PlacedAt) < t.maxAge
}

// CoolingDown reports whether the leg traded less than the cooldown ago.
func (t *Tracker) CoolingDown(key domain.LegKey, now time.Time) bool {
	last, ok := t.lastTrade[key]
	return ok && last.Add(t.cooldown).After(now)
}

// Blocked reports whether the planner must skip the leg.
func (t *Tracker) Blocked(key domain.LegKey, now time.Time) bool {
	return t.Busy(key, now) || t.CoolingDown(key, now)
}

// Track records a newly submitted order and starts the leg's cooldown.
// A stale entry on the same leg is replaced together with its index mapping.
func (t *Tracker) Track(key domain.LegKey, orderID string, amount decimal.Decimal, now time.Time) {
	if prev, ok := t.orders[key]; ok {
		delete(t.index, prev.OrderID)
	}
	t.orders[key] = TrackedOrder{OrderID: orderID, Amount: amount, PlacedAt: now}
	t.index[orderID] = key
	t.lastTrade[key] = now
}

// Resolve removes the order with the given id. Unknown ids are ignored and
// reported with ok=false, which makes repeated delivery a no-op.
func (t *Tracker) Resolve(orderID string) (domain.LegKey, TrackedOrder, bool) {
	key, ok := t.index[orderID]
	if !ok {
		return domain.LegKey{}, TrackedOrder{}, false
	}
	o := t.orders[key]
	delete(t.index, orderID)
	delete(t.orders, key)
	return key, o, true
}

// Lookup returns the tracked order of a leg.
func (t *Tracker) Lookup(key domain.LegKey) (TrackedOrder, bool) {
	o, ok := t.orders[key]
	return o, ok
}

// PendingEntry is a tracked order together with its leg and staleness.
type PendingEntry struct {
	Key   domain.LegKey `json:"key"`
	Order TrackedOrder  `json:"order"`
	Stale bool          `json:"stale"`
}

// Pending lists the tracked orders sorted by leg.
func (t *Tracker) Pending(now time.Time) []PendingEntry {
	result := make([]PendingEntry, 0, len(t.orders))
	for key, o := range t.orders {
		result = append(result, PendingEntry{
			Key:   key,
			Order: o,
			Stale: now.Sub(o.PlacedAt) >= t.maxAge,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.Market != result[j].Key.Market {
			return result[i].Key.Market < result[j].Key.Market
		}
		return result[i].Key.Symbol < result[j].Key.Symbol
	})
	return result
}

// trackerState is the JSON form of the tracker used by state dumps.
type trackerState struct {
	Orders    map[string]TrackedOrder `json:"orders"`
	Index     map[string]string       `json:"index"`
	LastTrade map[string]time.Time    `json:"last_trade"`
}

func (t *Tracker) state() trackerState {
	s := trackerState{
		Orders:    make(map[string]TrackedOrder, len(t.orders)),
		Index:     make(map[string]string, len(t.index)),
		LastTrade: make(map[string]time.Time, len(t.lastTrade)),
	}
	for k, o := range t.orders {
		s.Orders[k.String()] = o
	}
	for id, k := range t.index {
		s.Index[id] = k.String()
	}
	for k, ts := range t.lastTrade {
		s.LastTrade[k.String()] = ts
	}
	return s
}
