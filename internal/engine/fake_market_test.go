package engine

import (
	"context"
	"fmt"
	"sync"

	"cross_arb/internal/domain"
	"cross_arb/internal/event"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lv(price, amount string) domain.Level {
	return domain.Level{Price: d(price), Amount: d(amount)}
}

type submitted struct {
	Side   domain.Side
	Symbol string
	Amount decimal.Decimal
	Price  decimal.Decimal
	ID     string
}

// fakeMarket is an in-memory Market for strategy tests.
type fakeMarket struct {
	name     string
	ready    bool
	balances map[string]decimal.Decimal
	books    map[string]*domain.Book
	step     decimal.Decimal
	min      decimal.Decimal

	buyErr  error
	sellErr error
	bookErr error

	mu       sync.Mutex
	seq      int
	orders   []submitted
	handlers map[event.Kind][]func(event.OrderEvent)
}

func newFakeMarket(name string) *fakeMarket {
	return &fakeMarket{
		name:     name,
		ready:    true,
		balances: make(map[string]decimal.Decimal),
		books:    make(map[string]*domain.Book),
		handlers: make(map[event.Kind][]func(event.OrderEvent)),
	}
}

func (m *fakeMarket) Name() string { return m.name }
func (m *fakeMarket) Ready() bool  { return m.ready }

func (m *fakeMarket) Balance(currency string) (decimal.Decimal, error) {
	return m.balances[currency], nil
}

func (m *fakeMarket) OrderBook(symbol string) (domain.OrderBook, error) {
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	b, ok := m.books[symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	return b, nil
}

func (m *fakeMarket) QuantizeOrderAmount(_ string, amount decimal.Decimal) decimal.Decimal {
	return domain.Rules{MinAmount: m.min, StepSize: m.step}.Quantize(amount)
}

func (m *fakeMarket) Buy(symbol string, amount decimal.Decimal, _ domain.OrderType, price decimal.Decimal) (string, error) {
	return m.submit(domain.SideBuy, symbol, amount, price, m.buyErr)
}

func (m *fakeMarket) Sell(symbol string, amount decimal.Decimal, _ domain.OrderType, price decimal.Decimal) (string, error) {
	return m.submit(domain.SideSell, symbol, amount, price, m.sellErr)
}

func (m *fakeMarket) submit(side domain.Side, symbol string, amount, price decimal.Decimal, err error) (string, error) {
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-%d", m.name, m.seq)
	m.orders = append(m.orders, submitted{Side: side, Symbol: symbol, Amount: amount, Price: price, ID: id})
	return id, nil
}

func (m *fakeMarket) Subscribe(kind event.Kind, fn func(event.OrderEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], fn)
}

func (m *fakeMarket) emit(ev event.OrderEvent) {
	m.mu.Lock()
	hs := append([]func(event.OrderEvent){}, m.handlers[ev.Kind]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (m *fakeMarket) placed() []submitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]submitted(nil), m.orders...)
}

type unitRates struct{}

func (unitRates) Adjust(currency string, price decimal.Decimal) (decimal.Decimal, error) {
	if currency == "" {
		return decimal.Zero, domain.ErrRateUnavailable
	}
	return price, nil
}

type recordingJournal struct {
	mu       sync.Mutex
	trades   []domain.Trade
	orders   []string
	resolved map[string]domain.OrderStatus
}

func newRecordingJournal() *recordingJournal {
	return &recordingJournal{resolved: make(map[string]domain.OrderStatus)}
}

func (j *recordingJournal) RecordTrade(_ context.Context, t domain.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *recordingJournal) RecordOrder(_ context.Context, _ domain.LegKey, orderID string, _ domain.Side, _ decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, orderID)
	return nil
}

func (j *recordingJournal) ResolveOrder(_ context.Context, orderID string, status domain.OrderStatus, _ decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resolved[orderID] = status
	return nil
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *recordingReporter) Report(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, text)
	return nil
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// stallingReporter blocks every Report until release is closed.
type stallingReporter struct {
	release chan struct{}
	calls   chan struct{}
}

func (r *stallingReporter) Report(string) error {
	r.calls <- struct{}{}
	<-r.release
	return nil
}
