package domain

import (
	"iter"

	"cross_arb/internal/event"

	"github.com/shopspring/decimal"
)

// Level is a single price level of one side of an order book.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Valid reports whether the level can take part in a ladder walk.
func (l Level) Valid() bool {
	return l.Price.IsPositive() && l.Amount.IsPositive()
}

// OrderBook exposes both ladders of a book as best-first, finite sequences.
// Every call to BidLevels/AskLevels starts a fresh sequence.
type OrderBook interface {
	BidLevels() iter.Seq[Level]
	AskLevels() iter.Seq[Level]
	TopBid() decimal.Decimal
	TopAsk() decimal.Decimal
}

// Market is the capability the strategy trades against.
// Implementations must be safe for concurrent use; the strategy never assumes
// anything about their internal synchronisation.
type Market interface {
	// Name is the stable identity of the market. It is used as a map key.
	Name() string
	Ready() bool
	Balance(currency string) (decimal.Decimal, error)
	OrderBook(symbol string) (OrderBook, error)
	QuantizeOrderAmount(symbol string, amount decimal.Decimal) decimal.Decimal

	// Buy and Sell return the order id immediately. Settlement is reported
	// later through the handlers registered with Subscribe.
	Buy(symbol string, amount decimal.Decimal, orderType OrderType, price decimal.Decimal) (string, error)
	Sell(symbol string, amount decimal.Decimal, orderType OrderType, price decimal.Decimal) (string, error)

	Subscribe(kind event.Kind, fn func(event.OrderEvent))
}

// RateNormalizer converts a quote-currency price into the common reference unit.
type RateNormalizer interface {
	Adjust(currency string, price decimal.Decimal) (decimal.Decimal, error)
}

// Book is an immutable order book snapshot.
// Bids are sorted descending and asks ascending by price.
type Book struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// NewBook copies the given ladders into a snapshot.
func NewBook(symbol string, bids, asks []Level) *Book {
	b := &Book{
		Symbol: symbol,
		Bids:   make([]Level, len(bids)),
		Asks:   make([]Level, len(asks)),
	}
	copy(b.Bids, bids)
	copy(b.Asks, asks)
	return b
}

func (b *Book) BidLevels() iter.Seq[Level] { return levels(b.Bids) }
func (b *Book) AskLevels() iter.Seq[Level] { return levels(b.Asks) }

// TopBid returns the best bid price, or zero when the side is empty.
func (b *Book) TopBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// TopAsk returns the best ask price, or zero when the side is empty.
func (b *Book) TopAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

func levels(side []Level) iter.Seq[Level] {
	return func(yield func(Level) bool) {
		for _, l := range side {
			if !yield(l) {
				return
			}
		}
	}
}
