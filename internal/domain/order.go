package domain

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side string

// OrderType is the execution type of an order. Only market orders are placed
// by the strategy; limit is kept for venue clients that report it back.
type OrderType string

// OrderStatus is the normalised status a venue reports for an order.
type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// IsOpen checks if the order is still active.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Order is a venue order as the market layer tracks it.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Type   OrderType
	Amount decimal.Decimal
	Status OrderStatus
}

// Rules are the order-size constraints of a symbol on a venue.
type Rules struct {
	MinAmount decimal.Decimal
	StepSize  decimal.Decimal
}

// Quantize floors amount to the step size and zeroes it below the minimum.
func (r Rules) Quantize(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	q := amount
	if r.StepSize.IsPositive() {
		q = amount.Div(r.StepSize).Floor().Mul(r.StepSize)
	}
	if q.LessThan(r.MinAmount) || !q.IsPositive() {
		return decimal.Zero
	}
	return q
}
