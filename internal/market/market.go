package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cross_arb/internal/domain"
	"cross_arb/internal/event"
	"cross_arb/internal/infra"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultRefreshInterval = 2 * time.Second
	defaultBookDepth       = 20
	defaultRequestTimeout  = 10 * time.Second

	// fatalRetry makes the backoff return its maximum delay.
	fatalRetry = 1 << 10
)

// Config configures a Market.
type Config struct {
	Name            string
	Symbols         []string
	RefreshInterval time.Duration
	BookDepth       int
	RequestTimeout  time.Duration
}

type openOrder struct {
	symbol string
	side   domain.Side
	amount decimal.Decimal
	acked  bool // the venue accepted the submission
}

// Market keeps a cached view of a venue (balances, books, rules) refreshed in
// the background and submits orders asynchronously. Settlement is reported
// through the handlers registered with Subscribe.
type Market struct {
	cfg    Config
	client Client
	logger *slog.Logger

	// backoff maps consecutive refresh failures to a delay.
	backoff func(retry int) time.Duration

	ready atomic.Bool

	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	books    map[string]*domain.Book
	rules    map[string]domain.Rules
	orders   map[string]*openOrder

	hmu      sync.RWMutex
	handlers map[event.Kind][]func(event.OrderEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a market over client. Start must be called to load state.
func New(cfg Config, client Client, logger *slog.Logger) *Market {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = defaultBookDepth
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Market{
		cfg:      cfg,
		client:   client,
		logger:   logger.With("module", "market", "market", cfg.Name),
		backoff:  infra.CalculateBackoff,
		balances: make(map[string]decimal.Decimal),
		books:    make(map[string]*domain.Book),
		rules:    make(map[string]domain.Rules),
		orders:   make(map[string]*openOrder),
		handlers: make(map[event.Kind][]func(event.OrderEvent)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Market) Name() string { return m.cfg.Name }

// Ready reports whether the first full refresh succeeded.
func (m *Market) Ready() bool { return m.ready.Load() }

// Start runs the refresh loop until ctx is done or Stop is called.
func (m *Market) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Market refresh panic recovered", slog.Any("panic", r))
			}
		}()
		m.run(ctx)
	}()
}

// Stop cancels the refresh loop and in-flight submissions and waits for them.
func (m *Market) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Market) run(ctx context.Context) {
	failures := 0
	for {
		delay := m.cfg.RefreshInterval
		if err := m.Refresh(ctx); err != nil {
			failures++
			if domain.IsRetriable(err) || !isNetworkError(err) {
				delay = m.backoff(failures - 1)
				m.logger.Warn("Refresh failed",
					slog.Any("error", err),
					slog.Int("failures", failures),
					slog.Duration("retry_in", delay))
			} else {
				// rejected by the venue (credentials, permissions); retrying fast won't help
				delay = m.backoff(fatalRetry)
				m.logger.Error("Refresh rejected by venue",
					slog.Any("error", err),
					slog.Int("failures", failures),
					slog.Duration("retry_in", delay))
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Refresh reloads balances, books and missing rules, then polls open orders.
func (m *Market) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	balances, err := m.client.Balances(ctx)
	if err != nil {
		return fmt.Errorf("balances: %w", err)
	}

	books := make(map[string]*domain.Book, len(m.cfg.Symbols))
	for _, sym := range m.cfg.Symbols {
		b, err := m.client.OrderBook(ctx, sym, m.cfg.BookDepth)
		if err != nil {
			return fmt.Errorf("order book %s: %w", sym, err)
		}
		books[sym] = b
	}

	newRules := make(map[string]domain.Rules)
	for _, sym := range m.cfg.Symbols {
		m.mu.RLock()
		_, ok := m.rules[sym]
		m.mu.RUnlock()
		if ok {
			continue
		}
		r, err := m.client.Rules(ctx, sym)
		if err != nil {
			return fmt.Errorf("rules %s: %w", sym, err)
		}
		newRules[sym] = r
	}

	m.mu.Lock()
	m.balances = balances
	for sym, b := range books {
		m.books[sym] = b
	}
	for sym, r := range newRules {
		m.rules[sym] = r
	}
	m.mu.Unlock()

	if m.ready.CompareAndSwap(false, true) {
		m.logger.Info("Market ready", slog.Int("symbols", len(m.cfg.Symbols)))
	}

	m.pollOrders(ctx)
	return nil
}

// pollOrders asks the venue for every acknowledged order and emits the
// terminal ones. Poll errors are logged and retried on the next refresh.
func (m *Market) pollOrders(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.orders))
	for id, o := range m.orders {
		if o.acked {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.mu.RLock()
		o, ok := m.orders[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		upd, err := m.client.OrderStatus(ctx, o.symbol, id)
		if err != nil {
			m.logger.Warn("Order status failed", slog.String("order", id), slog.Any("error", err))
			continue
		}
		if upd.Status.IsOpen() {
			continue
		}
		m.settle(id, upd)
	}
}

// settle removes the order and emits its terminal event exactly once.
func (m *Market) settle(id string, upd OrderUpdate) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if ok {
		delete(m.orders, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	ev := event.OrderEvent{
		OrderID:   id,
		Market:    m.cfg.Name,
		Symbol:    o.symbol,
		Amount:    upd.Filled,
		Price:     upd.AvgPrice,
		Reason:    upd.Reason,
		Timestamp: time.Now(),
	}
	switch upd.Status {
	case domain.OrderStatusFilled:
		if o.side == domain.SideBuy {
			ev.Kind = event.EvBuyCompleted
		} else {
			ev.Kind = event.EvSellCompleted
		}
	case domain.OrderStatusCanceled:
		ev.Kind = event.EvCancelled
	default:
		ev.Kind = event.EvFailed
	}

	m.logger.Info("Order settled",
		slog.String("order", id),
		slog.String("kind", ev.Kind.String()),
		slog.String("filled", upd.Filled.String()))
	m.emit(ev)
}

func (m *Market) Balance(currency string) (decimal.Decimal, error) {
	if !m.Ready() {
		return decimal.Zero, domain.ErrMarketNotReady
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[currency], nil
}

func (m *Market) OrderBook(symbol string) (domain.OrderBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[symbol]
	if !ok {
		if !m.Ready() {
			return nil, domain.ErrMarketNotReady
		}
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
	}
	return b, nil
}

// QuantizeOrderAmount floors amount to the symbol's step size. Amounts below
// the minimum and unknown symbols quantize to zero.
func (m *Market) QuantizeOrderAmount(symbol string, amount decimal.Decimal) decimal.Decimal {
	m.mu.RLock()
	r, ok := m.rules[symbol]
	m.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}
	return r.Quantize(amount)
}

func (m *Market) Buy(symbol string, amount decimal.Decimal, orderType domain.OrderType, price decimal.Decimal) (string, error) {
	return m.submit(domain.SideBuy, symbol, amount, orderType, price)
}

func (m *Market) Sell(symbol string, amount decimal.Decimal, orderType domain.OrderType, price decimal.Decimal) (string, error) {
	return m.submit(domain.SideSell, symbol, amount, orderType, price)
}

func (m *Market) submit(side domain.Side, symbol string, amount decimal.Decimal, orderType domain.OrderType, price decimal.Decimal) (string, error) {
	if orderType != domain.OrderTypeMarket {
		return "", fmt.Errorf("order type %s not supported", orderType)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("invalid amount %s", amount)
	}
	if !m.Ready() {
		return "", domain.ErrMarketNotReady
	}

	m.mu.Lock()
	if _, ok := m.rules[symbol]; !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
	}
	id := uuid.NewString()
	m.orders[id] = &openOrder{symbol: symbol, side: side, amount: amount}
	m.mu.Unlock()

	req := OrderRequest{ClientID: id, Symbol: symbol, Side: side, Amount: amount, Price: price}
	if side == domain.SideBuy {
		req.QuoteAmount = amount.Mul(price)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RequestTimeout)
		defer cancel()

		if err := m.client.SubmitMarketOrder(ctx, req); err != nil {
			m.logger.Error("Order submission failed",
				slog.String("order", id),
				slog.String("side", string(side)),
				slog.String("symbol", symbol),
				slog.Any("error", err))
			m.settle(id, OrderUpdate{Status: domain.OrderStatusFailed, Reason: err.Error()})
			return
		}

		m.mu.Lock()
		if o, ok := m.orders[id]; ok {
			o.acked = true
		}
		m.mu.Unlock()
		m.logger.Info("Order submitted",
			slog.String("order", id),
			slog.String("side", string(side)),
			slog.String("symbol", symbol),
			slog.String("amount", amount.String()))
	}()

	return id, nil
}

// OpenOrders is the number of orders not yet settled.
func (m *Market) OpenOrders() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

// Subscribe registers fn for events of the given kind.
func (m *Market) Subscribe(kind event.Kind, fn func(event.OrderEvent)) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], fn)
}

func (m *Market) emit(ev event.OrderEvent) {
	m.hmu.RLock()
	hs := m.handlers[ev.Kind]
	m.hmu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}

func isNetworkError(err error) bool {
	var ne *domain.NetworkError
	return errors.As(err, &ne)
}
