package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cross_arb/internal/domain"

	"github.com/shopspring/decimal"
)

// RateService normalises quote-currency prices into a common reference unit.
// Rates are either direct (reference units per currency unit, e.g. USDT: 1) or
// inverse (currency units per reference unit, e.g. USD/KRW 1400).
type RateService struct {
	mu      sync.RWMutex
	direct  map[string]decimal.Decimal
	inverse map[string]decimal.Decimal
}

// NewRateService creates a service seeded with fixed direct rates.
func NewRateService(fixed map[string]decimal.Decimal) *RateService {
	s := &RateService{
		direct:  make(map[string]decimal.Decimal, len(fixed)),
		inverse: make(map[string]decimal.Decimal),
	}
	for cur, rate := range fixed {
		s.direct[strings.ToUpper(cur)] = rate
	}
	return s
}

// UpdateExchangeRate sets the price of one reference unit in currency,
// as quoted by FX feeds (e.g. 1 USD = 1400 KRW).
func (s *RateService) UpdateExchangeRate(currency string, perReference decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := strings.ToUpper(currency)
	delete(s.direct, cur)
	s.inverse[cur] = perReference
}

// Adjust converts price, quoted in currency, to the reference unit.
func (s *RateService) Adjust(currency string, price decimal.Decimal) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := strings.ToUpper(currency)
	if rate, ok := s.direct[cur]; ok && rate.IsPositive() {
		return price.Mul(rate), nil
	}
	if q, ok := s.inverse[cur]; ok && q.IsPositive() {
		return price.Div(q), nil
	}
	return decimal.Zero, fmt.Errorf("%s: %w", cur, domain.ErrRateUnavailable)
}

// Currencies lists the currencies with a usable rate, sorted.
func (s *RateService) Currencies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.direct)+len(s.inverse))
	for cur, rate := range s.direct {
		if rate.IsPositive() {
			result = append(result, cur)
		}
	}
	for cur, q := range s.inverse {
		if q.IsPositive() {
			result = append(result, cur)
		}
	}
	sort.Strings(result)
	return result
}
