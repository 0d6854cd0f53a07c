package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"cross_arb/internal/arbitrage"
	"cross_arb/internal/domain"
	"cross_arb/internal/event"
	"cross_arb/internal/infra"
	"cross_arb/internal/report"

	"github.com/shopspring/decimal"
)

const (
	defaultTickInterval   = time.Second
	defaultStatusInterval = 15 * time.Minute
	defaultNextTradeDelay = 10 * time.Second
	defaultMaxOrderAge    = time.Minute
	defaultInboxSize      = 1024
	defaultDumpFile       = "panic_dump.json"
)

// Config is the strategy configuration.
type Config struct {
	MinProfitability decimal.Decimal
	TickInterval     time.Duration
	StatusInterval   time.Duration
	LogStatus        bool
	NextTradeDelay   time.Duration
	MaxOrderAge      time.Duration
	InboxSize        int
	DumpFile         string
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.NextTradeDelay < 0 {
		c.NextTradeDelay = defaultNextTradeDelay
	}
	if c.MaxOrderAge <= 0 {
		c.MaxOrderAge = defaultMaxOrderAge
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.DumpFile == "" {
		c.DumpFile = defaultDumpFile
	}
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *infra.Metrics) Option {
	return func(s *Strategy) { s.metrics = m }
}

// WithJournal persists trades and order outcomes.
func WithJournal(j domain.TradeJournal) Option {
	return func(s *Strategy) { s.journal = j }
}

// WithReporter sets the sink for periodic status reports.
func WithReporter(r report.Reporter) Option {
	return func(s *Strategy) { s.reporter = r }
}

// Strategy is the cross-market arbitrage orchestrator.
//
// Tick and HandleEvent mutate the tracker and must only be called from a
// single goroutine, normally the one running Run. mu guards the state against
// external readers.
type Strategy struct {
	cfg     Config
	pairs   []domain.MarketPair
	markets map[string]domain.Market
	order   []string // market names in first-seen order
	rates   domain.RateNormalizer

	tracker       *Tracker
	ready         bool
	lastTimestamp time.Time

	inbox chan event.OrderEvent

	logger   *slog.Logger
	metrics  *infra.Metrics
	journal  domain.TradeJournal
	reporter report.Reporter

	mu sync.RWMutex
}

// NewStrategy validates the pairs, subscribes to lifecycle events of every
// market and returns a strategy ready to Run.
func NewStrategy(cfg Config, pairs []domain.MarketPair, rates domain.RateNormalizer, opts ...Option) (*Strategy, error) {
	if len(pairs) == 0 {
		return nil, &domain.ConfigError{Field: "pairs", Err: domain.ErrNoMarketPairs}
	}
	if rates == nil {
		return nil, &domain.ConfigError{Field: "rates", Err: domain.ErrRateUnavailable}
	}
	cfg.setDefaults()

	s := &Strategy{
		cfg:     cfg,
		pairs:   append([]domain.MarketPair(nil), pairs...),
		markets: make(map[string]domain.Market),
		rates:   rates,
		tracker: NewTracker(cfg.MaxOrderAge, cfg.NextTradeDelay),
		inbox:   make(chan event.OrderEvent, cfg.InboxSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("module", "strategy")
	if s.metrics == nil {
		s.metrics = infra.NewMetrics()
	}

	for i, p := range s.pairs {
		for _, leg := range []domain.Leg{p.First, p.Second} {
			if leg.Market == nil {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("pairs[%d]", i), Err: errors.New("leg without market")}
			}
			name := leg.Market.Name()
			known, ok := s.markets[name]
			if ok && known != leg.Market {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("pairs[%d]", i), Err: fmt.Errorf("duplicate market name %q", name)}
			}
			if !ok {
				s.markets[name] = leg.Market
				s.order = append(s.order, name)
			}
		}
	}

	for _, name := range s.order {
		m := s.markets[name]
		for _, kind := range event.Kinds {
			m.Subscribe(kind, s.enqueue)
		}
	}

	return s, nil
}

// enqueue hands an event to the run loop without blocking the market.
func (s *Strategy) enqueue(ev event.OrderEvent) {
	select {
	case s.inbox <- ev:
	default:
		s.metrics.RecordInboxDrop()
		s.logger.Warn("inbox full, dropping order event",
			slog.String("kind", ev.Kind.String()),
			slog.String("order", ev.OrderID))
	}
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Strategy) Run(ctx context.Context) {
	s.logger.Info("Strategy started",
		slog.Int("pairs", len(s.pairs)),
		slog.Duration("tick", s.cfg.TickInterval))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.cfg.DumpFile)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Strategy stopping...")
			return
		case now := <-ticker.C:
			s.Tick(now)
		case ev := <-s.inbox:
			s.HandleEvent(ev)
		}
	}
}

// Tick runs one scheduling round at now.
func (s *Strategy) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	reportDue := s.crossedInterval(now)
	defer func() {
		s.lastTimestamp = now
		s.metrics.RecordTick(time.Since(start))
	}()

	if !s.ready {
		if !s.allReady() {
			if reportDue && s.cfg.LogStatus {
				s.logger.Warn("markets are not ready, no trading permitted", slog.Any("not_ready", s.notReady()))
			}
			return
		}
		s.ready = true
		s.logger.Info("all markets ready, trading enabled")
	}

	for _, pair := range s.pairs {
		s.metrics.RecordPairEvaluated()
		if err := s.processPair(pair, now); err != nil {
			s.metrics.RecordPairError()
			s.logger.Error("pair processing failed",
				slog.String("pair", pair.String()),
				slog.Any("error", err))
		}
	}

	if reportDue && s.cfg.LogStatus {
		s.emitStatus(now)
	}
}

// crossedInterval reports whether now falls into a later status bucket than
// the previous tick.
func (s *Strategy) crossedInterval(now time.Time) bool {
	if s.lastTimestamp.IsZero() {
		return true
	}
	interval := s.cfg.StatusInterval.Nanoseconds()
	return now.UnixNano()/interval > s.lastTimestamp.UnixNano()/interval
}

func (s *Strategy) allReady() bool {
	for _, name := range s.order {
		if !s.markets[name].Ready() {
			return false
		}
	}
	return true
}

func (s *Strategy) notReady() []string {
	var names []string
	for _, name := range s.order {
		if !s.markets[name].Ready() {
			names = append(names, name)
		}
	}
	return names
}

func (s *Strategy) processPair(pair domain.MarketPair, now time.Time) error {
	firstBook, err := pair.First.Market.OrderBook(pair.First.Symbol)
	if err != nil {
		return fmt.Errorf("order book %s: %w", pair.First, err)
	}
	secondBook, err := pair.Second.Market.OrderBook(pair.Second.Symbol)
	if err != nil {
		return fmt.Errorf("order book %s: %w", pair.Second, err)
	}

	dir, err := arbitrage.SelectDirection(pair, firstBook, secondBook, s.rates)
	if err != nil {
		return fmt.Errorf("direction: %w", err)
	}
	if !dir.Profitable(s.cfg.MinProfitability) {
		return nil
	}

	s.logger.Debug("profitable direction",
		slog.String("buy", dir.Buy.String()),
		slog.String("sell", dir.Sell.String()),
		slog.String("ratio", dir.Ratio.StringFixed(6)))

	return s.plan(dir, now)
}

// HandleEvent applies an order lifecycle event.
func (s *Strategy) HandleEvent(ev event.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ev.Kind.Terminal() {
		s.logger.Warn("unknown event kind", slog.String("kind", ev.Kind.String()), slog.String("order", ev.OrderID))
		return
	}

	status := domain.OrderStatusFilled
	switch ev.Kind {
	case event.EvFailed:
		status = domain.OrderStatusFailed
	case event.EvCancelled:
		status = domain.OrderStatusCanceled
	}
	s.resolve(ev, status)
}

func (s *Strategy) resolve(ev event.OrderEvent, status domain.OrderStatus) {
	key, order, ok := s.tracker.Resolve(ev.OrderID)
	if !ok {
		s.metrics.RecordEventIgnored()
		s.logger.Debug("ignoring event for untracked order",
			slog.String("kind", ev.Kind.String()),
			slog.String("order", ev.OrderID))
		return
	}

	s.metrics.RecordOrderResolved()
	s.logger.Info("ORDER_RESOLVED",
		slog.String("kind", ev.Kind.String()),
		slog.String("leg", key.String()),
		slog.String("order", ev.OrderID),
		slog.String("amount", order.Amount.String()),
		slog.String("reason", ev.Reason))

	if s.journal != nil {
		if err := s.journal.ResolveOrder(context.Background(), ev.OrderID, status, ev.Price); err != nil {
			s.logger.Warn("journal resolve failed", slog.String("order", ev.OrderID), slog.Any("error", err))
		}
	}
}

// Ready reports whether the readiness gate has opened.
func (s *Strategy) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// PendingOrders returns a snapshot of tracked orders (external read).
func (s *Strategy) PendingOrders(now time.Time) []PendingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.Pending(now)
}

// DumpState writes the tracker state to a file (for post-mortem).
func (s *Strategy) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Ready         bool         `json:"ready"`
		LastTimestamp time.Time    `json:"last_timestamp"`
		Tracker       trackerState `json:"tracker"`
	}{
		Ready:         s.ready,
		LastTimestamp: s.lastTimestamp,
		Tracker:       s.tracker.state(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
