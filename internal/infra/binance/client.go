// Package binance implements the spot market client on top of go-binance.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cross_arb/internal/domain"
	"cross_arb/internal/market"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// Config holds the API credentials of a Binance account.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // optional override
}

// Client is the Binance spot client.
type Client struct {
	api    *binance.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	api := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		api.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:    api,
		logger: logger.With("module", "binance_client"),
	}
}

func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	res, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify("account", err)
	}
	out := make(map[string]decimal.Decimal, len(res.Balances))
	for _, b := range res.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", b.Asset, err)
		}
		out[b.Asset] = free
	}
	return out, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*domain.Book, error) {
	res, err := c.api.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return nil, classify("depth", err)
	}
	bids := make([]domain.Level, 0, len(res.Bids))
	for _, b := range res.Bids {
		lvl, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, fmt.Errorf("bid: %w", err)
		}
		bids = append(bids, lvl)
	}
	asks := make([]domain.Level, 0, len(res.Asks))
	for _, a := range res.Asks {
		lvl, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ask: %w", err)
		}
		asks = append(asks, lvl)
	}
	return domain.NewBook(symbol, bids, asks), nil
}

// Rules reads the LOT_SIZE filter of the symbol.
func (c *Client) Rules(ctx context.Context, symbol string) (domain.Rules, error) {
	info, err := c.api.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Rules{}, classify("exchange info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			return domain.Rules{}, fmt.Errorf("%s has no LOT_SIZE filter", symbol)
		}
		minQty, err := decimal.NewFromString(lot.MinQuantity)
		if err != nil {
			return domain.Rules{}, fmt.Errorf("min qty %q: %w", lot.MinQuantity, err)
		}
		step, err := decimal.NewFromString(lot.StepSize)
		if err != nil {
			return domain.Rules{}, fmt.Errorf("step size %q: %w", lot.StepSize, err)
		}
		return domain.Rules{MinAmount: minQty, StepSize: step}, nil
	}
	return domain.Rules{}, fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
}

func (c *Client) SubmitMarketOrder(ctx context.Context, req market.OrderRequest) error {
	side := binance.SideTypeBuy
	if req.Side == domain.SideSell {
		side = binance.SideTypeSell
	}
	res, err := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(req.Amount.String()).
		NewClientOrderID(req.ClientID).
		Do(ctx)
	if err != nil {
		return classify("create order", err)
	}
	c.logger.Info("Order Placed Successfully",
		slog.String("oid", req.ClientID),
		slog.Int64("exchange_id", res.OrderID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(side)),
		slog.String("quantity", req.Amount.String()))
	return nil
}

func (c *Client) OrderStatus(ctx context.Context, symbol, clientID string) (market.OrderUpdate, error) {
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx)
	if err != nil {
		return market.OrderUpdate{}, classify("get order", err)
	}

	upd := market.OrderUpdate{Status: mapStatus(o.Status)}
	upd.Filled, _ = decimal.NewFromString(o.ExecutedQuantity)
	quote, _ := decimal.NewFromString(o.CummulativeQuoteQuantity)
	if upd.Filled.IsPositive() {
		upd.AvgPrice = quote.Div(upd.Filled)
	}
	if (upd.Status == domain.OrderStatusCanceled || upd.Status == domain.OrderStatusFailed) && upd.Filled.IsPositive() {
		// expired market orders keep what they filled
		upd.Status = domain.OrderStatusFilled
	}
	if upd.Status == domain.OrderStatusFailed {
		upd.Reason = string(o.Status)
	}
	return upd, nil
}

func mapStatus(s binance.OrderStatusType) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return domain.OrderStatusCanceled
	default: // REJECTED, EXPIRED
		return domain.OrderStatusFailed
	}
}

func parseLevel(price, quantity string) (domain.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Level{}, err
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return domain.Level{}, err
	}
	return domain.Level{Price: p, Amount: q}, nil
}

// classify marks API rejections as fatal and transport failures as retriable.
func classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return domain.NewFatalNetworkError(op, err)
	}
	return domain.NewNetworkError(op, err)
}
