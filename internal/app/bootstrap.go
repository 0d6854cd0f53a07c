package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"cross_arb/internal/domain"
	"cross_arb/internal/engine"
	"cross_arb/internal/infra"
	"cross_arb/internal/infra/storage"
	"cross_arb/internal/market"
	"cross_arb/internal/report"
	"cross_arb/internal/service"

	"github.com/shopspring/decimal"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config   *infra.Config
	Logger   *slog.Logger
	Metrics  *infra.Metrics
	Journal  *storage.Journal
	Rates    *service.RateService
	Markets  map[string]*market.Market
	Strategy *engine.Strategy

	rateClient domain.ExchangeRateProvider
	feeds      []domain.ExchangeWorker
	closers    []func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads the configuration and builds every component without
// starting any network activity.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err
	}
	return b.InitializeWith(cfg, infra.NewLogger(cfg))
}

// InitializeWith builds the components from an already loaded configuration.
func (b *Bootstrap) InitializeWith(cfg *infra.Config, logger *slog.Logger) error {
	b.Config = cfg
	b.Logger = logger
	b.Metrics = infra.NewMetrics()
	b.Logger.Info("Bootstrapping cross-market arbitrage",
		slog.String("version", cfg.App.Version),
		slog.Int("markets", len(cfg.Markets)),
		slog.Int("pairs", len(cfg.Pairs)))

	// 2. Storage
	if cfg.Storage.Enabled {
		j, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		b.Journal = j
		b.Logger.Info("Journal initialized", slog.String("driver", cfg.Storage.Driver))
		b.reportUnresolved()
	}

	// 3. Rates
	b.Rates = service.NewRateService(cfg.Rates.Fixed)
	if cfg.Rates.KRW.Enabled {
		b.rateClient = infra.NewExchangeRateClientWithConfig(
			func(rate decimal.Decimal) { b.Rates.UpdateExchangeRate("KRW", rate) },
			cfg.Rates.KRW.URL,
			cfg.Rates.KRW.PollInterval.Std(),
			b.Logger)
	}

	// 4. Markets
	if err := b.buildMarkets(); err != nil {
		return err
	}

	// 5. Strategy
	pairs := make([]domain.MarketPair, 0, len(cfg.Pairs))
	for i, p := range cfg.Pairs {
		first, err := b.leg(p.First)
		if err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		second, err := b.leg(p.Second)
		if err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		pairs = append(pairs, domain.MarketPair{First: first, Second: second})
	}

	opts := []engine.Option{
		engine.WithLogger(b.Logger),
		engine.WithMetrics(b.Metrics),
	}
	if b.Journal != nil {
		opts = append(opts, engine.WithJournal(b.Journal))
	}
	reporter, err := b.buildReporter()
	if err != nil {
		return err
	}
	opts = append(opts, engine.WithReporter(reporter))

	sc := cfg.Strategy
	strat, err := engine.NewStrategy(engine.Config{
		MinProfitability: sc.MinProfitability,
		TickInterval:     sc.TickInterval.Std(),
		StatusInterval:   sc.StatusInterval.Std(),
		LogStatus:        sc.LogStatus,
		NextTradeDelay:   sc.NextTradeDelay.Std(),
		MaxOrderAge:      sc.MaxOrderAge.Std(),
		InboxSize:        sc.InboxSize,
		DumpFile:         sc.DumpFile,
	}, pairs, b.Rates, opts...)
	if err != nil {
		return err
	}
	b.Strategy = strat
	return nil
}

func (b *Bootstrap) leg(lc infra.LegConfig) (domain.Leg, error) {
	m, ok := b.Markets[lc.Market]
	if !ok {
		return domain.Leg{}, &domain.ConfigError{
			Field: "market",
			Err:   fmt.Errorf("%q: %w", lc.Market, domain.ErrUnknownMarket),
		}
	}
	return domain.Leg{
		Market: m,
		Symbol: lc.Symbol,
		Base:   lc.Base,
		Quote:  lc.Quote,
	}, nil
}

// reportUnresolved warns about orders a previous run submitted but never saw
// settle. They are not tracked again; check them on the venue.
func (b *Bootstrap) reportUnresolved() {
	orders, err := b.Journal.UnresolvedOrders(context.Background())
	if err != nil {
		b.Logger.Warn("Failed to read unresolved orders", slog.Any("error", err))
		return
	}
	for _, o := range orders {
		b.Logger.Warn("Unresolved order from a previous run",
			slog.String("order", o.OrderID),
			slog.String("market", o.Market),
			slog.String("symbol", o.Symbol),
			slog.String("side", o.Side),
			slog.String("amount", o.Amount))
	}
}

func (b *Bootstrap) buildReporter() (report.Reporter, error) {
	reporters := report.MultiReporter{report.NewLogReporter(b.Logger)}
	if b.Config.Telegram.Enabled {
		tg, err := report.NewTelegramReporter(b.Config.Telegram.Token, strconv.FormatInt(b.Config.Telegram.ChatID, 10), b.Logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, tg.Close)
		reporters = append(reporters, tg)
	}
	return reporters, nil
}

// Start connects feeds and rate polling and begins refreshing every market.
func (b *Bootstrap) Start(ctx context.Context) error {
	if b.rateClient != nil {
		if err := b.rateClient.Start(ctx); err != nil {
			// the poller keeps retrying; KRW legs stay unpriced until it succeeds
			b.Logger.Error("Failed to start exchange rate client", slog.Any("error", err))
		}
	}

	for _, f := range b.feeds {
		if err := f.Connect(ctx); err != nil {
			return fmt.Errorf("upbit feed: %w", err)
		}
		b.Metrics.IncrementConnections()
	}

	for _, m := range b.Markets {
		m.Start(ctx)
	}
	b.Logger.Info("Markets started", slog.Int("count", len(b.Markets)))
	return nil
}

// Run blocks in the strategy loop until ctx is done.
func (b *Bootstrap) Run(ctx context.Context) {
	b.Strategy.Run(ctx)
}

// Shutdown stops every component in reverse start order. Run must have
// returned.
func (b *Bootstrap) Shutdown() {
	for name, m := range b.Markets {
		m.Stop()
		if n := m.OpenOrders(); n > 0 {
			b.Logger.Warn("Market stopped with unsettled orders",
				slog.String("market", name), slog.Int("orders", n))
		}
	}
	for _, f := range b.feeds {
		f.Disconnect()
		b.Metrics.DecrementConnections()
	}
	if b.rateClient != nil {
		b.rateClient.Stop()
	}
	for _, c := range b.closers {
		c()
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			b.Logger.Warn("Journal close failed", slog.Any("error", err))
		}
	}
	b.Logger.Info("Shutdown complete")
}
