package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBalance_CreditDebit(t *testing.T) {
	b := &Balance{Currency: "BTC"}

	b.Credit(d("1.5"))
	if !b.Amount.Equal(d("1.5")) {
		t.Errorf("expected 1.5, got %s", b.Amount)
	}

	b.Debit(d("0.4"))
	if !b.Amount.Equal(d("1.1")) {
		t.Errorf("expected 1.1, got %s", b.Amount)
	}

	b.VerifyInvariant()
}

func TestBalance_Reserve(t *testing.T) {
	b := &Balance{Currency: "ETH", Amount: d("10")}

	b.Reserve(d("4"))
	if !b.Available().Equal(d("6")) {
		t.Errorf("expected available 6, got %s", b.Available())
	}

	b.Release(d("2"))
	if !b.Reserved.Equal(d("2")) {
		t.Errorf("expected reserved 2, got %s", b.Reserved)
	}

	b.VerifyInvariant()
}

func TestBalance_DebitInsufficientPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for insufficient balance")
		}
	}()

	b := &Balance{Currency: "USDT", Amount: d("1")}
	b.Debit(d("2"))
}

func TestBalance_InvariantPanic_ReservedExceedsAmount(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for reserved > amount")
		}
	}()

	b := &Balance{Currency: "BTC", Amount: d("1"), Reserved: d("2")}
	b.VerifyInvariant()
}

func TestBalanceBook_Snapshot(t *testing.T) {
	bb := NewBalanceBook()
	bb.Get("BTC").Credit(d("2"))
	bb.Get("BTC").Reserve(d("0.5"))
	bb.Get("USDT").Credit(d("100"))

	snap := bb.Snapshot()
	if !snap["BTC"].Equal(d("1.5")) {
		t.Errorf("expected BTC 1.5, got %s", snap["BTC"])
	}
	if !snap["USDT"].Equal(d("100")) {
		t.Errorf("expected USDT 100, got %s", snap["USDT"])
	}

	bb.VerifyAll()
}
