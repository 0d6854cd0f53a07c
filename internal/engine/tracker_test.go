package engine

import (
	"testing"
	"time"

	"cross_arb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Unix(1_700_000_000, 0)
	legA   = domain.LegKey{Market: "a", Symbol: "BTCUSDT"}
	legB   = domain.LegKey{Market: "b", Symbol: "BTCUSDT"}
	minute = time.Minute
)

func TestTracker_PendingThenStale(t *testing.T) {
	tr := NewTracker(minute, 0)

	assert.False(t, tr.Busy(legA, t0), "idle leg")

	tr.Track(legA, "o1", d("1"), t0)
	assert.True(t, tr.Busy(legA, t0.Add(59*time.Second)))
	assert.False(t, tr.Busy(legA, t0.Add(minute)), "stale at max age")

	// staleness does not delete the entry
	_, ok := tr.Lookup(legA)
	assert.True(t, ok)
	pending := tr.Pending(t0.Add(2 * minute))
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Stale)
}

func TestTracker_Resolve(t *testing.T) {
	tr := NewTracker(minute, 0)
	tr.Track(legA, "o1", d("1"), t0)
	tr.Track(legB, "o2", d("1"), t0)

	key, order, ok := tr.Resolve("o1")
	require.True(t, ok)
	assert.Equal(t, legA, key)
	assert.Equal(t, "o1", order.OrderID)
	assert.False(t, tr.Busy(legA, t0))
	assert.True(t, tr.Busy(legB, t0), "legs resolve independently")

	// repeated delivery is a no-op
	_, _, ok = tr.Resolve("o1")
	assert.False(t, ok)
	assert.Len(t, tr.Pending(t0), 1)

	_, _, ok = tr.Resolve("someone-else")
	assert.False(t, ok)
}

func TestTracker_TrackReplacesStaleEntry(t *testing.T) {
	tr := NewTracker(minute, 0)
	tr.Track(legA, "old", d("1"), t0)
	tr.Track(legA, "new", d("2"), t0.Add(2*minute))

	assert.Len(t, tr.Pending(t0), 1)

	// the replaced id no longer routes to the leg
	_, _, ok := tr.Resolve("old")
	assert.False(t, ok)
	assert.True(t, tr.Busy(legA, t0.Add(2*minute)))

	_, order, ok := tr.Resolve("new")
	require.True(t, ok)
	assert.True(t, order.Amount.Equal(d("2")))
}

func TestTracker_Cooldown(t *testing.T) {
	tr := NewTracker(minute, 10*time.Second)

	assert.False(t, tr.CoolingDown(legA, t0))

	tr.Track(legA, "o1", d("1"), t0)
	tr.Resolve("o1")

	// resolution does not clear the cooldown
	assert.True(t, tr.CoolingDown(legA, t0.Add(9*time.Second)))
	assert.True(t, tr.Blocked(legA, t0.Add(9*time.Second)))
	assert.False(t, tr.CoolingDown(legA, t0.Add(10*time.Second)))
	assert.False(t, tr.Blocked(legA, t0.Add(10*time.Second)))
	assert.False(t, tr.CoolingDown(legB, t0), "cooldown is per leg")
}

func TestTracker_PendingSorted(t *testing.T) {
	tr := NewTracker(minute, 0)
	tr.Track(legB, "o2", d("1"), t0)
	tr.Track(legA, "o1", d("1"), t0)
	tr.Track(domain.LegKey{Market: "a", Symbol: "ETHUSDT"}, "o3", d("1"), t0)

	pending := tr.Pending(t0)
	require.Len(t, pending, 3)
	assert.Equal(t, "o1", pending[0].Order.OrderID)
	assert.Equal(t, "o3", pending[1].Order.OrderID)
	assert.Equal(t, "o2", pending[2].Order.OrderID)
	assert.False(t, pending[0].Stale)
}

func TestTracker_State(t *testing.T) {
	tr := NewTracker(minute, 0)
	tr.Track(legA, "o1", d("1"), t0)

	st := tr.state()
	assert.Equal(t, "a:BTCUSDT", st.Index["o1"])
	assert.Equal(t, "o1", st.Orders["a:BTCUSDT"].OrderID)
	assert.Equal(t, t0, st.LastTrade["a:BTCUSDT"])
}
