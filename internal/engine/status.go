package engine

import (
	"fmt"
	"log/slog"
	"time"

	"cross_arb/internal/arbitrage"
	"cross_arb/internal/domain"
	"cross_arb/internal/report"

	"github.com/shopspring/decimal"
)

// Status computes the current status report content (external read).
func (s *Strategy) Status(now time.Time) report.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildStatus(now)
}

func (s *Strategy) emitStatus(now time.Time) {
	if s.reporter == nil {
		return
	}
	text := report.Format(s.buildStatus(now))
	if err := s.reporter.Report(text); err != nil {
		s.logger.Warn("status report failed", slog.Any("error", err))
	}
}

func (s *Strategy) buildStatus(now time.Time) report.Status {
	st := report.Status{
		Time:    now,
		Pairs:   make([]report.PairStatus, 0, len(s.pairs)),
		Metrics: s.metrics.Snapshot(),
	}

	for _, pair := range s.pairs {
		st.Pairs = append(st.Pairs, s.pairStatus(pair))
	}

	for _, p := range s.tracker.Pending(now) {
		st.Pending = append(st.Pending, report.PendingOrder{
			Leg:     p.Key.String(),
			OrderID: p.Order.OrderID,
			Amount:  p.Order.Amount,
			Age:     now.Sub(p.Order.PlacedAt),
			Stale:   p.Stale,
		})
	}
	return st
}

func (s *Strategy) pairStatus(pair domain.MarketPair) report.PairStatus {
	ps := report.PairStatus{Pair: pair.String()}

	firstBook, err := pair.First.Market.OrderBook(pair.First.Symbol)
	if err != nil {
		ps.Error = err.Error()
		return ps
	}
	secondBook, err := pair.Second.Market.OrderBook(pair.Second.Symbol)
	if err != nil {
		ps.Error = err.Error()
		return ps
	}
	q, err := arbitrage.NormalizedQuotes(pair, firstBook, secondBook, s.rates)
	if err != nil {
		ps.Error = err.Error()
		return ps
	}

	ps.First = legQuote(pair.First, firstBook, q.FirstBid, q.FirstAsk)
	ps.Second = legQuote(pair.Second, secondBook, q.SecondBid, q.SecondAsk)
	ps.BuyFirstRatio = q.BuyFirstRatio()
	ps.BuySecondRatio = q.BuySecondRatio()
	ps.Warnings = balanceWarnings(ps.First, ps.Second)
	return ps
}

func legQuote(leg domain.Leg, book domain.OrderBook, bidAdj, askAdj decimal.Decimal) report.LegQuote {
	// balance errors surface as zero balances, which raise a warning
	base, _ := leg.Market.Balance(leg.Base)
	quote, _ := leg.Market.Balance(leg.Quote)
	return report.LegQuote{
		Market:       leg.Market.Name(),
		Symbol:       leg.Symbol,
		Base:         leg.Base,
		Quote:        leg.Quote,
		Bid:          book.TopBid(),
		Ask:          book.TopAsk(),
		BidAdjusted:  bidAdj,
		AskAdjusted:  askAdj,
		BaseBalance:  base,
		QuoteBalance: quote,
	}
}

// balanceWarnings flags legs that cannot take part in either direction.
func balanceWarnings(legs ...report.LegQuote) []string {
	var warnings []string
	for _, l := range legs {
		if !l.BaseBalance.IsPositive() {
			warnings = append(warnings, fmt.Sprintf("%s %s balance is 0", l.Market, l.Base))
		}
		if !l.QuoteBalance.IsPositive() {
			warnings = append(warnings, fmt.Sprintf("%s %s balance is 0", l.Market, l.Quote))
		}
	}
	return warnings
}
