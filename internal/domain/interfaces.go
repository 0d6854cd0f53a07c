package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeWorker defines the interface for exchange WebSocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// ExchangeRateProvider defines the interface for currency exchange rate sources
type ExchangeRateProvider interface {
	Start(ctx context.Context) error
	Stop()
	GetRate() decimal.Decimal
}

// TradeJournal persists trade decisions and order outcomes.
type TradeJournal interface {
	RecordTrade(ctx context.Context, trade Trade) error
	RecordOrder(ctx context.Context, key LegKey, orderID string, side Side, amount decimal.Decimal) error
	ResolveOrder(ctx context.Context, orderID string, status OrderStatus, price decimal.Decimal) error
}
