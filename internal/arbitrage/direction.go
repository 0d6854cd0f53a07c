package arbitrage

import (
	"fmt"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

// Direction is the chosen buy/sell assignment for a market pair.
type Direction struct {
	Buy      domain.Leg
	Sell     domain.Leg
	BuyBook  domain.OrderBook
	SellBook domain.OrderBook

	// Ratio is the normalised top-of-book bid/ask ratio of the chosen direction.
	Ratio decimal.Decimal
	// Reverse is the same ratio for the direction that was not chosen.
	Reverse decimal.Decimal
}

// Quotes holds the rate-normalised top of book of both legs of a pair.
type Quotes struct {
	FirstBid  decimal.Decimal
	FirstAsk  decimal.Decimal
	SecondBid decimal.Decimal
	SecondAsk decimal.Decimal
}

// BuyFirstRatio is bid(second)/ask(first): buy on the first venue, sell on the second.
func (q Quotes) BuyFirstRatio() decimal.Decimal { return ratio(q.SecondBid, q.FirstAsk) }

// BuySecondRatio is bid(first)/ask(second): buy on the second venue, sell on the first.
func (q Quotes) BuySecondRatio() decimal.Decimal { return ratio(q.FirstBid, q.SecondAsk) }

func ratio(bid, ask decimal.Decimal) decimal.Decimal {
	if !ask.IsPositive() || !bid.IsPositive() {
		return decimal.Zero
	}
	return bid.Div(ask)
}

// NormalizedQuotes adjusts the top of both books into the reference unit.
// An empty side normalises to zero.
func NormalizedQuotes(pair domain.MarketPair, firstBook, secondBook domain.OrderBook, rates domain.RateNormalizer) (Quotes, error) {
	var q Quotes
	var err error
	if q.FirstBid, err = adjustTop(rates, pair.First.Quote, firstBook.TopBid()); err != nil {
		return Quotes{}, err
	}
	if q.FirstAsk, err = adjustTop(rates, pair.First.Quote, firstBook.TopAsk()); err != nil {
		return Quotes{}, err
	}
	if q.SecondBid, err = adjustTop(rates, pair.Second.Quote, secondBook.TopBid()); err != nil {
		return Quotes{}, err
	}
	if q.SecondAsk, err = adjustTop(rates, pair.Second.Quote, secondBook.TopAsk()); err != nil {
		return Quotes{}, err
	}
	return q, nil
}

func adjustTop(rates domain.RateNormalizer, currency string, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, nil
	}
	adj, err := rates.Adjust(currency, price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust %s top: %w", currency, err)
	}
	return adj, nil
}

// SelectDirection compares both directions on top of book and returns the more
// profitable one. Ties buy on the first venue.
func SelectDirection(pair domain.MarketPair, firstBook, secondBook domain.OrderBook, rates domain.RateNormalizer) (Direction, error) {
	q, err := NormalizedQuotes(pair, firstBook, secondBook, rates)
	if err != nil {
		return Direction{}, err
	}

	buyFirst, buySecond := q.BuyFirstRatio(), q.BuySecondRatio()
	if buyFirst.GreaterThanOrEqual(buySecond) {
		return Direction{
			Buy:      pair.First,
			Sell:     pair.Second,
			BuyBook:  firstBook,
			SellBook: secondBook,
			Ratio:    buyFirst,
			Reverse:  buySecond,
		}, nil
	}
	return Direction{
		Buy:      pair.Second,
		Sell:     pair.First,
		BuyBook:  secondBook,
		SellBook: firstBook,
		Ratio:    buySecond,
		Reverse:  buyFirst,
	}, nil
}

// Profitable reports whether the top of book clears 1+minProfitability.
func (d Direction) Profitable(minProfitability decimal.Decimal) bool {
	return d.Ratio.GreaterThanOrEqual(one.Add(minProfitability))
}
