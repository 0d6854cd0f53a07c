// Package market implements the trading Market capability on top of a small
// per-venue Client.
package market

import (
	"context"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

// Client is the venue-specific part of a market.
type Client interface {
	// Balances returns the available balance of every currency.
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	OrderBook(ctx context.Context, symbol string, depth int) (*domain.Book, error)
	Rules(ctx context.Context, symbol string) (domain.Rules, error)
	// SubmitMarketOrder places an order under the caller's client order id.
	SubmitMarketOrder(ctx context.Context, req OrderRequest) error
	// OrderStatus looks an order up by its client order id.
	OrderStatus(ctx context.Context, symbol, clientID string) (OrderUpdate, error)
}

// OrderRequest is a market order submission.
// Price is the average price the strategy planned with. QuoteAmount is the
// planned quote cost of a buy (Amount*Price); venues that size market buys in
// quote currency send it instead of Amount.
type OrderRequest struct {
	ClientID    string
	Symbol      string
	Side        domain.Side
	Amount      decimal.Decimal
	Price       decimal.Decimal
	QuoteAmount decimal.Decimal
}

// OrderUpdate is the venue view of an order.
type OrderUpdate struct {
	Status   domain.OrderStatus
	Filled   decimal.Decimal
	AvgPrice decimal.Decimal
	Reason   string
}
