package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "balances", "orderbook", "place-order")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoMarketPairs is returned when a strategy is built without any pair.
	ErrNoMarketPairs = errors.New("no market pairs configured")

	// ErrUnknownMarket is returned when an order targets a market outside the
	// configured set. It indicates a programming error.
	ErrUnknownMarket = errors.New("market not in configured set")

	// ErrMalformedLevel is returned when an order book level has a non-positive
	// price or amount.
	ErrMalformedLevel = errors.New("malformed order book level")

	// ErrRateUnavailable is returned when a currency cannot be normalised.
	ErrRateUnavailable = errors.New("conversion rate unavailable")

	// ErrMarketNotReady is returned by markets that have not loaded their state yet.
	ErrMarketNotReady = errors.New("market not ready")

	// ErrInsufficientBalance is returned when an account cannot fund an order.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnknownSymbol is returned when a symbol is not tracked by a market.
	ErrUnknownSymbol = errors.New("unknown symbol")
)
