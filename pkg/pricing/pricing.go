// Package pricing defines the price lookup interface the verification cycle
// depends on. Adapters live in subpackages; the scheduler only sees Oracle.
package pricing

import "context"

// Oracle resolves the current price of a symbol on a market.
type Oracle interface {
	// CurrentPrice returns the latest known price. Implementations return
	// an error wrapping errors.ErrPriceUnavailable when no price can be
	// resolved; callers treat that as missing data, not a failure.
	CurrentPrice(ctx context.Context, market, symbol string) (float64, error)
}
