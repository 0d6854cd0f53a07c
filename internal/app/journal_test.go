package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"cross_arb/internal/domain"
	"cross_arb/internal/infra/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededJournal(t *testing.T) *storage.Journal {
	t.Helper()
	j, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	ctx := context.Background()
	buy := domain.LegKey{Market: "a", Symbol: "BTCUSD"}
	sell := domain.LegKey{Market: "b", Symbol: "BTCUSDT"}
	require.NoError(t, j.RecordTrade(ctx, domain.Trade{
		Pair: "a:BTCUSD/b:BTCUSDT", BuyLeg: buy, SellLeg: sell,
		BuyOrderID: "buy-1", SellOrderID: "sell-1",
		Amount: decimal.NewFromInt(2), BuyPrice: decimal.NewFromInt(100), SellPrice: decimal.NewFromInt(101),
		Profitability: decimal.RequireFromString("1.01"), CreatedAt: time.Unix(1_700_000_000, 0),
	}))
	require.NoError(t, j.RecordOrder(ctx, buy, "buy-1", domain.SideBuy, decimal.NewFromInt(2)))
	require.NoError(t, j.RecordOrder(ctx, sell, "sell-1", domain.SideSell, decimal.NewFromInt(2)))
	require.NoError(t, j.ResolveOrder(ctx, "buy-1", domain.OrderStatusFilled, decimal.NewFromInt(100)))
	return j
}

func TestPrintJournal_TradesAndUnresolved(t *testing.T) {
	j := seededJournal(t)

	var out bytes.Buffer
	require.NoError(t, PrintJournal(context.Background(), &out, j, 10, ""))

	assert.Contains(t, out.String(), "a:BTCUSD/b:BTCUSDT")
	assert.Contains(t, out.String(), "sell-1")
	assert.NotContains(t, out.String(), "buy-1", "resolved orders are not listed")
}

func TestPrintJournal_SingleOrder(t *testing.T) {
	j := seededJournal(t)

	var out bytes.Buffer
	require.NoError(t, PrintJournal(context.Background(), &out, j, 10, "buy-1"))
	assert.Contains(t, out.String(), "FILLED")

	err := PrintJournal(context.Background(), &out, j, 10, "nope")
	assert.ErrorContains(t, err, "not found")
}
