package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cross_arb/internal/arbitrage"
	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// capPrecision is the number of decimal places of a balance-capped amount.
const capPrecision = 12

// Plan is the bounded size the planner derived from a ladder walk.
type Plan struct {
	Amount        decimal.Decimal
	Profitability decimal.Decimal // cumulative normalised bid/ask value ratio
	BidPrice      decimal.Decimal // deepest raw bid included
	AskPrice      decimal.Decimal // deepest raw ask included
	Steps         int
	Capped        bool // balance-limited rather than ladder-limited

	levels []arbitrage.Step // walk steps the amount was drawn from, in order
}

// AskCost is the raw quote cost of buying amount from the included ask levels.
// Any amount beyond them is priced at the last included level.
func (p Plan) AskCost(amount decimal.Decimal) decimal.Decimal {
	return ladderValue(p.levels, amount, func(s arbitrage.Step) decimal.Decimal { return s.AskPrice })
}

// BidValue is the raw quote proceeds of selling amount into the included bids.
func (p Plan) BidValue(amount decimal.Decimal) decimal.Decimal {
	return ladderValue(p.levels, amount, func(s arbitrage.Step) decimal.Decimal { return s.BidPrice })
}

// AvgAskPrice is AskCost per unit, truncated so AvgAskPrice*amount never
// exceeds AskCost.
func (p Plan) AvgAskPrice(amount decimal.Decimal) decimal.Decimal {
	return perUnit(p.AskCost(amount), amount)
}

// AvgBidPrice is BidValue per unit, truncated.
func (p Plan) AvgBidPrice(amount decimal.Decimal) decimal.Decimal {
	return perUnit(p.BidValue(amount), amount)
}

func ladderValue(levels []arbitrage.Step, amount decimal.Decimal, price func(arbitrage.Step) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	remaining := amount
	for i, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Amount)
		if i == len(levels)-1 {
			take = remaining
		}
		total = total.Add(take.Mul(price(lvl)))
		remaining = remaining.Sub(take)
	}
	return total
}

func perUnit(value, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	q, _ := value.QuoRem(amount, capPrecision)
	return q
}

// Accumulate sums walk steps while the cumulative ratio stays at or above
// 1+minProfitability and both balances can fund them.
//
// buyQuoteBalance is the buy venue's quote balance and sellBaseBalance the
// sell venue's base balance, both in native units. When a step cannot be
// funded the amount is capped at min(sellBaseBalance, buyQuoteBalance/askPrice)
// of that step and accumulation stops.
func Accumulate(steps []arbitrage.Step, minProfitability, buyQuoteBalance, sellBaseBalance decimal.Decimal) Plan {
	threshold := one.Add(minProfitability)

	var plan Plan
	totalAsk := decimal.Zero
	totalBidAdj := decimal.Zero
	totalAskAdj := decimal.Zero
	amount := decimal.Zero

	for i, step := range steps {
		totalAsk = totalAsk.Add(step.AskPrice.Mul(step.Amount))
		totalBidAdj = totalBidAdj.Add(step.BidPriceAdjusted.Mul(step.Amount))
		totalAskAdj = totalAskAdj.Add(step.AskPriceAdjusted.Mul(step.Amount))
		if !totalAskAdj.IsPositive() {
			break
		}
		profitability := totalBidAdj.Div(totalAskAdj)
		if profitability.LessThan(threshold) {
			break
		}

		if buyQuoteBalance.LessThan(totalAsk) || sellBaseBalance.LessThan(amount.Add(step.Amount)) {
			// truncated so the capped amount never costs more than the balance
			fundable, _ := buyQuoteBalance.QuoRem(step.AskPrice, capPrecision)
			capped := decimal.Min(sellBaseBalance, fundable)
			if capped.IsNegative() {
				capped = decimal.Zero
			}
			plan = Plan{
				Amount:        capped,
				Profitability: profitability,
				BidPrice:      step.BidPrice,
				AskPrice:      step.AskPrice,
				Steps:         plan.Steps + 1,
				Capped:        true,
				levels:        steps[:i+1],
			}
			return plan
		}

		amount = amount.Add(step.Amount)
		plan = Plan{
			Amount:        amount,
			Profitability: profitability,
			BidPrice:      step.BidPrice,
			AskPrice:      step.AskPrice,
			Steps:         plan.Steps + 1,
			levels:        steps[:i+1],
		}
	}
	return plan
}

// plan runs the execution planner for a chosen direction. It must be called
// from the run loop.
func (s *Strategy) plan(dir arbitrage.Direction, now time.Time) error {
	buyKey, sellKey := dir.Buy.Key(), dir.Sell.Key()

	for _, key := range []domain.LegKey{buyKey, sellKey} {
		if s.tracker.Blocked(key, now) {
			attrs := []any{slog.String("leg", key.String())}
			if o, ok := s.tracker.Lookup(key); ok {
				attrs = append(attrs, slog.String("order", o.OrderID))
			}
			s.logger.Debug("leg blocked by pending order or cooldown", attrs...)
			return nil
		}
	}

	steps, err := arbitrage.Match(s.cfg.MinProfitability, dir.SellBook, dir.BuyBook, dir.Buy.Quote, dir.Sell.Quote, s.rates)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedLevel) {
			s.metrics.RecordWalkAbort()
		}
		return fmt.Errorf("walk: %w", err)
	}
	if len(steps) == 0 {
		return nil
	}

	buyQuote, err := dir.Buy.Market.Balance(dir.Buy.Quote)
	if err != nil {
		return fmt.Errorf("balance %s %s: %w", dir.Buy.Market.Name(), dir.Buy.Quote, err)
	}
	sellBase, err := dir.Sell.Market.Balance(dir.Sell.Base)
	if err != nil {
		return fmt.Errorf("balance %s %s: %w", dir.Sell.Market.Name(), dir.Sell.Base, err)
	}

	p := Accumulate(steps, s.cfg.MinProfitability, buyQuote, sellBase)
	if !p.Amount.IsPositive() {
		return nil
	}

	amount := decimal.Min(
		dir.Buy.Market.QuantizeOrderAmount(dir.Buy.Symbol, p.Amount),
		dir.Sell.Market.QuantizeOrderAmount(dir.Sell.Symbol, p.Amount),
	)
	if !amount.IsPositive() {
		s.logger.Debug("amount below venue minimum",
			slog.String("buy", buyKey.String()),
			slog.String("sell", sellKey.String()),
			slog.String("amount", p.Amount.String()))
		return nil
	}

	if err := s.checkWhitelisted(dir.Buy.Market); err != nil {
		return err
	}
	if err := s.checkWhitelisted(dir.Sell.Market); err != nil {
		return err
	}

	// venues that size market buys in quote currency convert with this price,
	// so amount*buyPrice must stay within the cost checked against the balance
	buyPrice := p.AvgAskPrice(amount)
	sellPrice := p.AvgBidPrice(amount)

	buyID, err := dir.Buy.Market.Buy(dir.Buy.Symbol, amount, domain.OrderTypeMarket, buyPrice)
	if err != nil {
		return fmt.Errorf("submit buy on %s: %w", buyKey, err)
	}
	s.tracker.Track(buyKey, buyID, amount, now)
	s.journalOrder(buyKey, buyID, domain.SideBuy, amount)

	sellID, err := dir.Sell.Market.Sell(dir.Sell.Symbol, amount, domain.OrderTypeMarket, sellPrice)
	if err != nil {
		return fmt.Errorf("submit sell on %s after buy %s: %w", sellKey, buyID, err)
	}
	s.tracker.Track(sellKey, sellID, amount, now)
	s.journalOrder(sellKey, sellID, domain.SideSell, amount)

	s.metrics.RecordTrade()
	s.logger.Info("TRADE_SUBMITTED",
		slog.String("buy", buyKey.String()),
		slog.String("sell", sellKey.String()),
		slog.String("buy_order", buyID),
		slog.String("sell_order", sellID),
		slog.String("amount", amount.String()),
		slog.String("avg_ask", buyPrice.String()),
		slog.String("avg_bid", sellPrice.String()),
		slog.String("profitability", p.Profitability.StringFixed(6)),
		slog.Bool("capped", p.Capped))

	if s.journal != nil {
		trade := domain.Trade{
			Pair:          dir.Buy.String() + "/" + dir.Sell.String(),
			BuyLeg:        buyKey,
			SellLeg:       sellKey,
			BuyOrderID:    buyID,
			SellOrderID:   sellID,
			Amount:        amount,
			BuyPrice:      buyPrice,
			SellPrice:     sellPrice,
			Profitability: p.Profitability,
			CreatedAt:     now,
		}
		if err := s.journal.RecordTrade(context.Background(), trade); err != nil {
			s.logger.Warn("journal trade failed", slog.Any("error", err))
		}
	}
	return nil
}

// checkWhitelisted aborts orders against markets outside the configured set.
func (s *Strategy) checkWhitelisted(m domain.Market) error {
	known, ok := s.markets[m.Name()]
	if !ok || known != m {
		return fmt.Errorf("%s: %w", m.Name(), domain.ErrUnknownMarket)
	}
	return nil
}

func (s *Strategy) journalOrder(key domain.LegKey, orderID string, side domain.Side, amount decimal.Decimal) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordOrder(context.Background(), key, orderID, side, amount); err != nil {
		s.logger.Warn("journal order failed", slog.String("order", orderID), slog.Any("error", err))
	}
}
