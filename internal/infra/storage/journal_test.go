package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open test journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListTrades(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b"} {
		trade := domain.Trade{
			Pair:          "binance:BTCUSDT/upbit:BTCKRW",
			BuyLeg:        domain.LegKey{Market: "binance", Symbol: "BTCUSDT"},
			SellLeg:       domain.LegKey{Market: "upbit", Symbol: "BTCKRW"},
			BuyOrderID:    "buy-" + id,
			SellOrderID:   "sell-" + id,
			Amount:        decimal.RequireFromString("0.5"),
			BuyPrice:      decimal.NewFromInt(100),
			SellPrice:     decimal.NewFromInt(140000),
			Profitability: decimal.RequireFromString("1.01"),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := j.RecordTrade(ctx, trade); err != nil {
			t.Fatalf("RecordTrade failed: %v", err)
		}
	}

	trades, err := j.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTrades failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].BuyOrderID != "buy-b" {
		t.Errorf("expected newest trade first, got %s", trades[0].BuyOrderID)
	}
	if trades[0].BuyLeg != "binance:BTCUSDT" {
		t.Errorf("expected buy leg binance:BTCUSDT, got %s", trades[0].BuyLeg)
	}
	if trades[0].Amount != "0.5" {
		t.Errorf("expected amount 0.5, got %s", trades[0].Amount)
	}
}

func TestRecordAndResolveOrder(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	key := domain.LegKey{Market: "bitget", Symbol: "BTCUSDT"}

	if err := j.RecordOrder(ctx, key, "o-1", domain.SideBuy, decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}
	if err := j.RecordOrder(ctx, key, "o-2", domain.SideSell, decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}

	open, err := j.UnresolvedOrders(ctx)
	if err != nil {
		t.Fatalf("UnresolvedOrders failed: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 unresolved orders, got %d", len(open))
	}

	if err := j.ResolveOrder(ctx, "o-1", domain.OrderStatusFilled, decimal.NewFromInt(101)); err != nil {
		t.Fatalf("ResolveOrder failed: %v", err)
	}

	rec, err := j.Order(ctx, "o-1")
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	if rec == nil {
		t.Fatal("order o-1 not found")
	}
	if rec.Status != string(domain.OrderStatusFilled) {
		t.Errorf("expected FILLED, got %s", rec.Status)
	}
	if rec.Price != "101" {
		t.Errorf("expected price 101, got %s", rec.Price)
	}
	if rec.ResolvedAt == nil {
		t.Error("expected resolved_at to be set")
	}

	open, _ = j.UnresolvedOrders(ctx)
	if len(open) != 1 || open[0].OrderID != "o-2" {
		t.Errorf("expected only o-2 unresolved, got %+v", open)
	}
}

func TestResolveUnknownOrderIsNoop(t *testing.T) {
	j := setupTestJournal(t)

	if err := j.ResolveOrder(context.Background(), "missing", domain.OrderStatusFailed, decimal.Zero); err != nil {
		t.Fatalf("ResolveOrder failed: %v", err)
	}
	rec, err := j.Order(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestJournalImplementsTradeJournal(t *testing.T) {
	var _ domain.TradeJournal = (*Journal)(nil)
}
