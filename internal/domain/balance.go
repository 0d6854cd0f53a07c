package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance represents an account balance with invariant checking.
type Balance struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`   // Total balance
	Reserved decimal.Decimal `json:"reserved"` // Locked by open orders
}

// Available returns the spendable balance (total - reserved).
func (b *Balance) Available() decimal.Decimal {
	return b.Amount.Sub(b.Reserved)
}

// Credit adds funds to the balance. Panics on a negative amount.
func (b *Balance) Credit(amount decimal.Decimal) {
	if amount.IsNegative() {
		panic(fmt.Sprintf("BALANCE_NEGATIVE_CREDIT: %s %s", b.Currency, amount))
	}
	b.Amount = b.Amount.Add(amount)
}

// Debit removes funds from the balance. Panics if insufficient.
func (b *Balance) Debit(amount decimal.Decimal) {
	if amount.GreaterThan(b.Available()) {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT: %s need %s, available %s",
			b.Currency, amount, b.Available()))
	}
	b.Amount = b.Amount.Sub(amount)
}

// Reserve locks funds for an order.
func (b *Balance) Reserve(amount decimal.Decimal) {
	if amount.GreaterThan(b.Available()) {
		panic(fmt.Sprintf("BALANCE_RESERVE_INSUFFICIENT: %s need %s, available %s",
			b.Currency, amount, b.Available()))
	}
	b.Reserved = b.Reserved.Add(amount)
}

// Release unlocks reserved funds.
func (b *Balance) Release(amount decimal.Decimal) {
	if amount.GreaterThan(b.Reserved) {
		panic(fmt.Sprintf("BALANCE_RELEASE_EXCEEDS_RESERVED: %s release %s, reserved %s",
			b.Currency, amount, b.Reserved))
	}
	b.Reserved = b.Reserved.Sub(amount)
}

// VerifyInvariant checks that balance satisfies invariants.
func (b *Balance) VerifyInvariant() {
	if b.Amount.IsNegative() {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_AMOUNT: %s = %s", b.Currency, b.Amount))
	}
	if b.Reserved.IsNegative() {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_RESERVED: %s = %s", b.Currency, b.Reserved))
	}
	if b.Reserved.GreaterThan(b.Amount) {
		panic(fmt.Sprintf("BALANCE_INVARIANT_RESERVED_EXCEEDS_AMOUNT: %s reserved=%s, amount=%s",
			b.Currency, b.Reserved, b.Amount))
	}
}

// BalanceBook manages multiple balances with invariant checking.
// It is not safe for concurrent use; owners guard it.
type BalanceBook struct {
	balances map[string]*Balance
}

// NewBalanceBook creates a new balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[string]*Balance),
	}
}

// Get returns the balance for a currency, creating it if missing.
func (bb *BalanceBook) Get(currency string) *Balance {
	b, ok := bb.balances[currency]
	if !ok {
		b = &Balance{Currency: currency}
		bb.balances[currency] = b
	}
	return b
}

// VerifyAll checks invariants on all balances.
func (bb *BalanceBook) VerifyAll() {
	for _, b := range bb.balances {
		b.VerifyInvariant()
	}
}

// Snapshot returns the available amount of every currency.
func (bb *BalanceBook) Snapshot() map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(bb.balances))
	for k, v := range bb.balances {
		result[k] = v.Available()
	}
	return result
}
