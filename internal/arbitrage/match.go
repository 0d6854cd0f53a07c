// Package arbitrage walks two order book ladders against each other and picks
// the profitable direction for a market pair.
package arbitrage

import (
	"fmt"
	"iter"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Step is one profitable fill produced by a ladder walk.
// Adjusted prices are rate-normalised; raw prices are venue-native.
type Step struct {
	BidPriceAdjusted decimal.Decimal `json:"bid_price_adjusted"`
	AskPriceAdjusted decimal.Decimal `json:"ask_price_adjusted"`
	BidPrice         decimal.Decimal `json:"bid_price"`
	AskPrice         decimal.Decimal `json:"ask_price"`
	Amount           decimal.Decimal `json:"amount"`
}

// Ratio is the normalised bid/ask ratio of the step.
func (s Step) Ratio() decimal.Decimal {
	return s.BidPriceAdjusted.Div(s.AskPriceAdjusted)
}

// Walk lazily matches the bids of sellBook against the asks of buyBook.
//
// Levels are pulled only when the current level's leftover is used up, and the
// walk stops at the first pair of levels whose normalised bid/ask ratio is
// below 1+minProfitability. Exhaustion of either ladder ends the walk.
// A malformed level or an unavailable rate yields a single error and ends it.
func Walk(minProfitability decimal.Decimal, sellBook, buyBook domain.OrderBook,
	buyQuote, sellQuote string, rates domain.RateNormalizer) iter.Seq2[Step, error] {

	threshold := one.Add(minProfitability)

	return func(yield func(Step, error) bool) {
		nextBid, stopBid := iter.Pull(sellBook.BidLevels())
		defer stopBid()
		nextAsk, stopAsk := iter.Pull(buyBook.AskLevels())
		defer stopAsk()

		var bid, ask domain.Level
		bidLeft, askLeft := decimal.Zero, decimal.Zero

		for {
			if bidLeft.IsZero() {
				l, ok := nextBid()
				if !ok {
					return
				}
				if !l.Valid() {
					yield(Step{}, fmt.Errorf("bid %s x %s: %w", l.Price, l.Amount, domain.ErrMalformedLevel))
					return
				}
				bid, bidLeft = l, l.Amount
			}
			if askLeft.IsZero() {
				l, ok := nextAsk()
				if !ok {
					return
				}
				if !l.Valid() {
					yield(Step{}, fmt.Errorf("ask %s x %s: %w", l.Price, l.Amount, domain.ErrMalformedLevel))
					return
				}
				ask, askLeft = l, l.Amount
			}

			bidAdj, err := rates.Adjust(sellQuote, bid.Price)
			if err != nil {
				yield(Step{}, fmt.Errorf("adjust bid: %w", err))
				return
			}
			askAdj, err := rates.Adjust(buyQuote, ask.Price)
			if err != nil {
				yield(Step{}, fmt.Errorf("adjust ask: %w", err))
				return
			}
			if !askAdj.IsPositive() || !bidAdj.IsPositive() {
				yield(Step{}, fmt.Errorf("non-positive normalised price %s/%s: %w", bidAdj, askAdj, domain.ErrRateUnavailable))
				return
			}

			// bidAdj/askAdj < threshold, without the division
			if bidAdj.LessThan(askAdj.Mul(threshold)) {
				return
			}

			amount := decimal.Min(bidLeft, askLeft)
			bidLeft = bidLeft.Sub(amount)
			askLeft = askLeft.Sub(amount)

			step := Step{
				BidPriceAdjusted: bidAdj,
				AskPriceAdjusted: askAdj,
				BidPrice:         bid.Price,
				AskPrice:         ask.Price,
				Amount:           amount,
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

// Match runs Walk to completion and collects the steps.
func Match(minProfitability decimal.Decimal, sellBook, buyBook domain.OrderBook,
	buyQuote, sellQuote string, rates domain.RateNormalizer) ([]Step, error) {

	var steps []Step
	for step, err := range Walk(minProfitability, sellBook, buyBook, buyQuote, sellQuote, rates) {
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
