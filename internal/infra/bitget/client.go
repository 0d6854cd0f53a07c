package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cross_arb/internal/domain"
	"cross_arb/internal/market"

	"github.com/shopspring/decimal"
)

// BaseURL is the Bitget V2 REST host.
const BaseURL = "https://api.bitget.com"

// quoteSizePlaces is the precision of quote-denominated market buy sizes.
const quoteSizePlaces = 6

// Config holds the API credentials of a Bitget account.
type Config struct {
	BaseURL    string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Timeout    time.Duration
}

// Client is the Bitget V2 spot REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a new Bitget API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(cfg.AccessKey, cfg.SecretKey, cfg.Passphrase),
		logger: logger.With("module", "bitget_client"),
	}
}

func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var assets []assetData
	if err := c.do(ctx, http.MethodGet, "/api/v2/spot/account/assets", nil, nil, &assets); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		amt, err := decimal.NewFromString(a.Available)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.Coin, err)
		}
		out[strings.ToUpper(a.Coin)] = amt
	}
	return out, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*domain.Book, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", "step0")
	q.Set("limit", strconv.Itoa(depth))

	var data orderBookData
	if err := c.do(ctx, http.MethodGet, "/api/v2/spot/market/orderbook", q, nil, &data); err != nil {
		return nil, err
	}
	bids, err := parseLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return domain.NewBook(symbol, bids, asks), nil
}

// Rules derives the minimum size and step from the symbol's quantity precision.
func (c *Client) Rules(ctx context.Context, symbol string) (domain.Rules, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var symbols []symbolData
	if err := c.do(ctx, http.MethodGet, "/api/v2/spot/public/symbols", q, nil, &symbols); err != nil {
		return domain.Rules{}, err
	}
	for _, s := range symbols {
		if s.Symbol != symbol {
			continue
		}
		precision, err := strconv.Atoi(s.QuantityPrecision)
		if err != nil {
			return domain.Rules{}, fmt.Errorf("quantity precision %q: %w", s.QuantityPrecision, err)
		}
		minAmount, err := decimal.NewFromString(s.MinTradeAmount)
		if err != nil {
			return domain.Rules{}, fmt.Errorf("min trade amount %q: %w", s.MinTradeAmount, err)
		}
		return domain.Rules{
			MinAmount: minAmount,
			StepSize:  decimal.New(1, -int32(precision)),
		}, nil
	}
	return domain.Rules{}, fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
}

// SubmitMarketOrder places a market order. Bitget sizes market buys in quote
// currency, so buys send the request's planned quote cost, truncated.
func (c *Client) SubmitMarketOrder(ctx context.Context, req market.OrderRequest) error {
	body := placeOrderRequest{
		Symbol:        req.Symbol,
		OrderType:     "market",
		Force:         "gtc",
		ClientOrderID: req.ClientID,
	}
	switch req.Side {
	case domain.SideBuy:
		if !req.QuoteAmount.IsPositive() {
			return fmt.Errorf("market buy on %s needs a quote amount", req.Symbol)
		}
		body.Side = "buy"
		body.Size = req.QuoteAmount.Truncate(quoteSizePlaces).String()
	case domain.SideSell:
		body.Side = "sell"
		body.Size = req.Amount.String()
	default:
		return fmt.Errorf("unknown side %q", req.Side)
	}

	var data placeOrderData
	if err := c.do(ctx, http.MethodPost, "/api/v2/spot/trade/place-order", nil, body, &data); err != nil {
		return fmt.Errorf("bitget place order failed: %w", err)
	}
	c.logger.Info("Order Placed Successfully",
		slog.String("oid", req.ClientID),
		slog.String("exchange_id", data.OrderID),
		slog.String("symbol", req.Symbol),
		slog.String("side", body.Side),
		slog.String("size", body.Size))
	return nil
}

func (c *Client) OrderStatus(ctx context.Context, _ string, clientID string) (market.OrderUpdate, error) {
	q := url.Values{}
	q.Set("clientOid", clientID)

	var orders []orderInfoData
	if err := c.do(ctx, http.MethodGet, "/api/v2/spot/trade/orderInfo", q, nil, &orders); err != nil {
		return market.OrderUpdate{}, err
	}
	if len(orders) == 0 {
		return market.OrderUpdate{}, fmt.Errorf("order %s not found", clientID)
	}
	o := orders[0]

	upd := market.OrderUpdate{Status: mapStatus(o.Status)}
	if o.BaseVolume != "" {
		upd.Filled, _ = decimal.NewFromString(o.BaseVolume)
	}
	if o.PriceAvg != "" {
		upd.AvgPrice, _ = decimal.NewFromString(o.PriceAvg)
	}
	if upd.Status == domain.OrderStatusCanceled && upd.Filled.IsPositive() {
		// market orders with a partial fill report cancelled for the rest
		upd.Status = domain.OrderStatusFilled
	}
	return upd, nil
}

func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "init", "new", "live":
		return domain.OrderStatusNew
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "cancelled", "canceled":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusFailed
	}
}

func parseLevels(raw [][2]string) ([]domain.Level, error) {
	levels := make([]domain.Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

// do signs and sends a request, checks the envelope and decodes data into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	rawQuery := query.Encode()
	reqURL := c.baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return err
	}
	for k, v := range c.signer.GenerateHeaders(method, path, rawQuery, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(path, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return statusError(path, resp.StatusCode, string(bodyBytes))
		}
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || apiResp.Code != successCode {
		return statusError(path, resp.StatusCode,
			fmt.Sprintf("code=%s msg=%s", apiResp.Code, apiResp.Msg))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(apiResp.Data, out); err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}
	return nil
}

// statusError classifies 5xx and 429 answers as retriable.
func statusError(op string, status int, detail string) error {
	err := errors.New("bitget api error: status=" + strconv.Itoa(status) + " " + detail)
	if status >= 500 || status == http.StatusTooManyRequests {
		return domain.NewNetworkError(op, err)
	}
	return domain.NewFatalNetworkError(op, err)
}
