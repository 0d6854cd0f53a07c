// Package upbit streams Upbit order books over the public websocket.
package upbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cross_arb/internal/domain"
	"cross_arb/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	// DefaultURL is the public Upbit websocket endpoint.
	DefaultURL  = "wss://api.upbit.com/websocket/v1"
	maxRetries  = 10
	readTimeout = 60 * time.Second
	maxCodes    = 50
)

type orderbookUnit struct {
	AskPrice json.Number `json:"ask_price"`
	BidPrice json.Number `json:"bid_price"`
	AskSize  json.Number `json:"ask_size"`
	BidSize  json.Number `json:"bid_size"`
}

// orderbookResponse represents an Upbit websocket orderbook message
type orderbookResponse struct {
	Type      string          `json:"type"` // orderbook
	Code      string          `json:"code"` // KRW-BTC
	Timestamp int64           `json:"timestamp"`
	Units     []orderbookUnit `json:"orderbook_units"`
}

// BookFeed keeps the latest order book of each subscribed Upbit code.
// Books are keyed by the local symbol the code was registered under.
type BookFeed struct {
	url     string
	codes   map[string]string // upbit code -> symbol
	logger  *slog.Logger
	backoff func(int) time.Duration

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	books     map[string]*domain.Book
	updated   map[string]time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBookFeed creates a feed for symbols mapped to Upbit codes
// (e.g. "BTCKRW" -> "KRW-BTC"). An empty url uses DefaultURL.
func NewBookFeed(url string, symbols map[string]string, logger *slog.Logger) *BookFeed {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	codes := make(map[string]string, len(symbols))
	for sym, code := range symbols {
		codes[code] = sym
	}
	return &BookFeed{
		url:     url,
		codes:   codes,
		logger:  logger.With("module", "upbit_feed"),
		backoff: infra.CalculateBackoff,
		books:   make(map[string]*domain.Book),
		updated: make(map[string]time.Time),
	}
}

// Connect starts the WebSocket connection loop
func (f *BookFeed) Connect(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

func (f *BookFeed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
}

func (f *BookFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Book returns the latest book received for symbol.
func (f *BookFeed) Book(symbol string) (*domain.Book, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.books[symbol]
	return b, ok
}

// LastUpdate is the receive time of the latest book for symbol.
func (f *BookFeed) LastUpdate(symbol string) time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updated[symbol]
}

func (f *BookFeed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			f.logger.Warn("Upbit connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := f.backoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			f.readLoop(ctx)
		}
	}
}

func (f *BookFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return err
	}

	f.logger.Info("Upbit Connected", slog.Int("subs", len(f.codes)))
	return nil
}

func (f *BookFeed) subscribe() error {
	codes := make([]string, 0, len(f.codes))
	for code := range f.codes {
		if len(codes) == maxCodes {
			f.logger.Warn("Upbit subscription truncated", slog.Int("max", maxCodes))
			break
		}
		codes = append(codes, code)
	}

	msg := []map[string]any{
		{"ticket": fmt.Sprintf("go-%d", time.Now().UnixNano())},
		{"type": "orderbook", "codes": codes},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.threadSafeWrite(websocket.TextMessage, b)
}

func (f *BookFeed) threadSafeWrite(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.conn == nil {
		return fmt.Errorf("no conn")
	}
	return f.conn.WriteMessage(msgType, data)
}

func (f *BookFeed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			f.closeConnection()
			return
		}
		if err := f.handleMessage(msg); err != nil {
			f.logger.Debug("Upbit message dropped", slog.Any("error", err))
		}
	}
}

func (f *BookFeed) handleMessage(msg []byte) error {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var resp orderbookResponse
	if err := dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Type != "orderbook" {
		return nil
	}
	symbol, ok := f.codes[resp.Code]
	if !ok {
		return fmt.Errorf("unsubscribed code %s", resp.Code)
	}

	bids := make([]domain.Level, 0, len(resp.Units))
	asks := make([]domain.Level, 0, len(resp.Units))
	for _, u := range resp.Units {
		bid, err := level(u.BidPrice, u.BidSize)
		if err != nil {
			return err
		}
		ask, err := level(u.AskPrice, u.AskSize)
		if err != nil {
			return err
		}
		bids = append(bids, bid)
		asks = append(asks, ask)
	}

	book := domain.NewBook(symbol, bids, asks)
	f.mu.Lock()
	f.books[symbol] = book
	f.updated[symbol] = time.Now()
	f.mu.Unlock()
	return nil
}

func level(price, size json.Number) (domain.Level, error) {
	p, err := decimal.NewFromString(price.String())
	if err != nil {
		return domain.Level{}, fmt.Errorf("price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(size.String())
	if err != nil {
		return domain.Level{}, fmt.Errorf("size %q: %w", size, err)
	}
	return domain.Level{Price: p, Amount: s}, nil
}

func (f *BookFeed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
}
