// Package execution provides the paper-trading venue client.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cross_arb/internal/domain"
	"cross_arb/internal/market"

	"github.com/shopspring/decimal"
)

// BookSource supplies the latest order book of a symbol.
type BookSource interface {
	Book(symbol string) (*domain.Book, bool)
}

// timedSource is a BookSource that records when each book arrived.
type timedSource interface {
	LastUpdate(symbol string) time.Time
}

var errStaleBook = errors.New("order book is stale")

// StaticBooks is a fixed BookSource.
type StaticBooks map[string]*domain.Book

func (s StaticBooks) Book(symbol string) (*domain.Book, bool) {
	b, ok := s[symbol]
	return b, ok
}

// Instrument names the currencies of a symbol.
type Instrument struct {
	Base  string
	Quote string
}

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      domain.Side
	Price     decimal.Decimal // volume weighted
	Amount    decimal.Decimal
	Fee       decimal.Decimal // charged in the received currency
	Timestamp time.Time
}

// PaperConfig configures a PaperClient.
type PaperConfig struct {
	Balances    map[string]decimal.Decimal
	Instruments map[string]Instrument
	Rules       map[string]domain.Rules
	Fee         decimal.Decimal // fraction, e.g. 0.001
	// MaxBookAge rejects books older than this when the source timestamps
	// them. Zero disables the check.
	MaxBookAge time.Duration
}

// PaperClient simulates a venue with virtual balances. Market orders fill
// immediately against the current book of the source.
type PaperClient struct {
	cfg    PaperConfig
	source BookSource
	logger *slog.Logger

	mu       sync.Mutex
	balances *domain.BalanceBook
	orders   map[string]market.OrderUpdate
	now      func() time.Time
}

// NewPaperClient creates a paper venue seeded with cfg.Balances.
func NewPaperClient(cfg PaperConfig, source BookSource, logger *slog.Logger) *PaperClient {
	if logger == nil {
		logger = slog.Default()
	}
	balances := domain.NewBalanceBook()
	for cur, amt := range cfg.Balances {
		balances.Get(cur).Credit(amt)
	}
	return &PaperClient{
		cfg:      cfg,
		source:   source,
		logger:   logger.With("module", "paper"),
		balances: balances,
		orders:   make(map[string]market.OrderUpdate),
		now:      time.Now,
	}
}

// book returns the current book of symbol, refusing one older than MaxBookAge.
func (p *PaperClient) book(symbol string) (*domain.Book, error) {
	b, ok := p.source.Book(symbol)
	if !ok || b == nil {
		return nil, fmt.Errorf("no book for %s yet", symbol)
	}
	if p.cfg.MaxBookAge <= 0 {
		return b, nil
	}
	if ts, ok := p.source.(timedSource); ok {
		if age := p.now().Sub(ts.LastUpdate(symbol)); age > p.cfg.MaxBookAge {
			return nil, fmt.Errorf("%s: %w (%s old)", symbol, errStaleBook, age.Truncate(time.Millisecond))
		}
	}
	return b, nil
}

func (p *PaperClient) Balances(context.Context) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances.Snapshot(), nil
}

func (p *PaperClient) OrderBook(_ context.Context, symbol string, depth int) (*domain.Book, error) {
	b, err := p.book(symbol)
	if err != nil {
		return nil, err
	}
	bids, asks := b.Bids, b.Asks
	if depth > 0 {
		bids = bids[:min(depth, len(bids))]
		asks = asks[:min(depth, len(asks))]
	}
	return domain.NewBook(symbol, bids, asks), nil
}

func (p *PaperClient) Rules(_ context.Context, symbol string) (domain.Rules, error) {
	if _, ok := p.cfg.Instruments[symbol]; !ok {
		return domain.Rules{}, fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
	}
	return p.cfg.Rules[symbol], nil
}

// SubmitMarketOrder fills the order against the current book.
// BUY: need quote currency (book cost). SELL: need base currency.
func (p *PaperClient) SubmitMarketOrder(_ context.Context, req market.OrderRequest) error {
	inst, ok := p.cfg.Instruments[req.Symbol]
	if !ok {
		return fmt.Errorf("%s: %w", req.Symbol, domain.ErrUnknownSymbol)
	}
	book, err := p.book(req.Symbol)
	if err != nil {
		return err
	}

	ladder := book.Asks
	if req.Side == domain.SideSell {
		ladder = book.Bids
	}
	notional, err := sweep(ladder, req.Amount)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Side, req.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fill := Fill{
		OrderID:   req.ClientID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     notional.Div(req.Amount),
		Amount:    req.Amount,
		Timestamp: p.now(),
	}

	if req.Side == domain.SideBuy {
		quote := p.balances.Get(inst.Quote)
		if quote.Available().LessThan(notional) {
			return fmt.Errorf("%w: %s need %s, have %s",
				domain.ErrInsufficientBalance, inst.Quote, notional, quote.Available())
		}
		fill.Fee = req.Amount.Mul(p.cfg.Fee)
		quote.Debit(notional)
		p.balances.Get(inst.Base).Credit(req.Amount.Sub(fill.Fee))
	} else {
		base := p.balances.Get(inst.Base)
		if base.Available().LessThan(req.Amount) {
			return fmt.Errorf("%w: %s need %s, have %s",
				domain.ErrInsufficientBalance, inst.Base, req.Amount, base.Available())
		}
		fill.Fee = notional.Mul(p.cfg.Fee)
		base.Debit(req.Amount)
		p.balances.Get(inst.Quote).Credit(notional.Sub(fill.Fee))
	}
	p.balances.VerifyAll()

	p.orders[req.ClientID] = market.OrderUpdate{
		Status:   domain.OrderStatusFilled,
		Filled:   fill.Amount,
		AvgPrice: fill.Price,
	}

	p.logger.Info("PAPER EXECUTION: Order Filled",
		slog.String("id", req.ClientID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("price", fill.Price.String()),
		slog.String("amount", fill.Amount.String()),
		slog.String("fee", fill.Fee.String()),
		slog.Time("at", fill.Timestamp))
	return nil
}

func (p *PaperClient) OrderStatus(_ context.Context, _ string, clientID string) (market.OrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.orders[clientID]
	if !ok {
		return market.OrderUpdate{}, fmt.Errorf("order not found: %s", clientID)
	}
	return u, nil
}

// sweep returns the quote notional of taking amount from a best-first ladder.
func sweep(ladder []domain.Level, amount decimal.Decimal) (decimal.Decimal, error) {
	remaining := amount
	notional := decimal.Zero
	for _, lvl := range ladder {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Amount)
		notional = notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return decimal.Zero, fmt.Errorf("book too thin: %s unfilled", remaining)
	}
	return notional, nil
}
