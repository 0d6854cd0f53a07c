package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind defines the kind of an order lifecycle event.
type Kind uint16

const (
	EvBuyCompleted Kind = iota + 1
	EvSellCompleted
	EvFailed
	EvCancelled
)

// Kinds lists every kind a market can emit.
var Kinds = []Kind{EvBuyCompleted, EvSellCompleted, EvFailed, EvCancelled}

func (k Kind) String() string {
	switch k {
	case EvBuyCompleted:
		return "BUY_COMPLETED"
	case EvSellCompleted:
		return "SELL_COMPLETED"
	case EvFailed:
		return "FAILED"
	case EvCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("KIND(%d)", uint16(k))
	}
}

// Terminal reports whether the kind ends an order's lifecycle.
// All known kinds are terminal.
func (k Kind) Terminal() bool {
	switch k {
	case EvBuyCompleted, EvSellCompleted, EvFailed, EvCancelled:
		return true
	default:
		return false
	}
}

// OrderEvent is emitted by a market when one of its orders settles.
type OrderEvent struct {
	Kind      Kind            `json:"kind"`
	OrderID   string          `json:"order_id"`
	Market    string          `json:"market"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"ts"`
}
