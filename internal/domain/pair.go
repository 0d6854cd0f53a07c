package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Leg binds one side of a pair to a market and its trading symbol.
type Leg struct {
	Market Market
	Symbol string
	Base   string
	Quote  string
}

// Key returns the lifecycle tracking key of the leg.
func (l Leg) Key() LegKey {
	return LegKey{Market: l.Market.Name(), Symbol: l.Symbol}
}

func (l Leg) String() string {
	return l.Market.Name() + ":" + l.Symbol
}

// MarketPair is two legs quoting the same asset on different venues.
type MarketPair struct {
	First  Leg
	Second Leg
}

func (p MarketPair) String() string {
	return fmt.Sprintf("%s/%s", p.First, p.Second)
}

// LegKey identifies a market leg: the unit of order lifecycle tracking.
type LegKey struct {
	Market string `json:"market"`
	Symbol string `json:"symbol"`
}

func (k LegKey) String() string {
	return k.Market + ":" + k.Symbol
}

// Trade is the record of one submitted buy/sell decision.
type Trade struct {
	Pair          string
	BuyLeg        LegKey
	SellLeg       LegKey
	BuyOrderID    string
	SellOrderID   string
	Amount        decimal.Decimal
	BuyPrice      decimal.Decimal // average raw ask over the planned amount
	SellPrice     decimal.Decimal // average raw bid over the planned amount
	Profitability decimal.Decimal
	CreatedAt     time.Time
}
