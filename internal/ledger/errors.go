package ledger

import "errors"

// Error taxonomy for order validation and matching. Validation errors are
// returned to the caller before any state mutation; matching failures are
// recorded on the order itself (status=rejected plus reject reason) so no
// order is ever lost.
var (
	// ErrInvalidParameter marks a malformed order request.
	ErrInvalidParameter = errors.New("invalid order parameter")

	// ErrNoPriceAvailable means no price is known for the symbol.
	ErrNoPriceAvailable = errors.New("no price available")

	// ErrInsufficientFunds means cash cannot cover a buy.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition means the held quantity cannot cover a sell.
	ErrInsufficientPosition = errors.New("insufficient position")
)
