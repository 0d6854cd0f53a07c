package app

import (
	"fmt"
	"log/slog"
	"slices"

	"cross_arb/internal/domain"
	"cross_arb/internal/execution"
	"cross_arb/internal/infra"
	"cross_arb/internal/infra/binance"
	"cross_arb/internal/infra/bitget"
	"cross_arb/internal/infra/upbit"
	"cross_arb/internal/market"
)

// buildMarkets creates one market per config entry. The symbols a market
// tracks are its configured ones plus every symbol a pair trades on it.
func (b *Bootstrap) buildMarkets() error {
	b.Markets = make(map[string]*market.Market, len(b.Config.Markets))
	for _, mc := range b.Config.Markets {
		symbols := b.symbolsFor(mc)
		client, err := b.buildClient(mc, symbols)
		if err != nil {
			return fmt.Errorf("market %s: %w", mc.Name, err)
		}
		b.Markets[mc.Name] = market.New(market.Config{
			Name:            mc.Name,
			Symbols:         symbols,
			RefreshInterval: mc.RefreshInterval.Std(),
			BookDepth:       mc.BookDepth,
		}, client, b.Logger)
		b.Logger.Info("Market configured",
			slog.String("market", mc.Name),
			slog.String("kind", mc.Kind),
			slog.Any("symbols", symbols))
	}
	return nil
}

func (b *Bootstrap) symbolsFor(mc infra.MarketConfig) []string {
	symbols := slices.Clone(mc.Symbols)
	for _, p := range b.Config.Pairs {
		for _, leg := range []infra.LegConfig{p.First, p.Second} {
			if leg.Market == mc.Name && !slices.Contains(symbols, leg.Symbol) {
				symbols = append(symbols, leg.Symbol)
			}
		}
	}
	slices.Sort(symbols)
	return symbols
}

func (b *Bootstrap) buildClient(mc infra.MarketConfig, symbols []string) (market.Client, error) {
	switch mc.Kind {
	case infra.MarketBitget:
		return bitget.NewClient(bitget.Config{
			BaseURL:    mc.API.BaseURL,
			AccessKey:  mc.API.AccessKey,
			SecretKey:  mc.API.SecretKey,
			Passphrase: mc.API.Passphrase,
		}, b.Logger), nil
	case infra.MarketBinance:
		return binance.NewClient(binance.Config{
			APIKey:    mc.API.AccessKey,
			SecretKey: mc.API.SecretKey,
			BaseURL:   mc.API.BaseURL,
		}, b.Logger), nil
	case infra.MarketPaper:
		return b.buildPaper(mc, symbols)
	default:
		return nil, fmt.Errorf("unknown kind %q", mc.Kind)
	}
}

func (b *Bootstrap) buildPaper(mc infra.MarketConfig, symbols []string) (*execution.PaperClient, error) {
	instruments := make(map[string]execution.Instrument)
	for _, p := range b.Config.Pairs {
		for _, leg := range []infra.LegConfig{p.First, p.Second} {
			if leg.Market == mc.Name {
				instruments[leg.Symbol] = execution.Instrument{Base: leg.Base, Quote: leg.Quote}
			}
		}
	}

	rules := make(map[string]domain.Rules, len(mc.Paper.Rules))
	for sym, r := range mc.Paper.Rules {
		rules[sym] = domain.Rules{MinAmount: r.MinAmount, StepSize: r.StepSize}
	}

	var source execution.BookSource
	switch mc.Paper.Feed {
	case infra.FeedUpbit:
		codes := make(map[string]string, len(symbols))
		for _, sym := range symbols {
			code, ok := mc.Paper.Upbit[sym]
			if !ok {
				return nil, fmt.Errorf("no upbit code for %s", sym)
			}
			codes[sym] = code
		}
		feed := upbit.NewBookFeed(mc.Paper.UpbitURL, codes, b.Logger)
		b.feeds = append(b.feeds, feed)
		source = feed
	case infra.FeedStatic:
		books := make(execution.StaticBooks, len(mc.Paper.Books))
		for sym, bc := range mc.Paper.Books {
			books[sym] = domain.NewBook(sym, levels(bc.Bids), levels(bc.Asks))
		}
		source = books
	default:
		return nil, fmt.Errorf("unknown paper feed %q", mc.Paper.Feed)
	}

	return execution.NewPaperClient(execution.PaperConfig{
		Balances:    mc.Paper.Balances,
		Instruments: instruments,
		Rules:       rules,
		Fee:         mc.Paper.Fee,
		MaxBookAge:  mc.Paper.MaxBookAge.Std(),
	}, source, b.Logger.With("market", mc.Name)), nil
}

func levels(raw []infra.LevelConfig) []domain.Level {
	out := make([]domain.Level, 0, len(raw))
	for _, l := range raw {
		out = append(out, domain.Level{Price: l[0], Amount: l[1]})
	}
	return out
}
