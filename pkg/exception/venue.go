package exception

import "errors"

// Venue failure taxonomy. Adapters map raw venue error codes onto these
// sentinels so the reconciliation core can classify with errors.Is.
var (
	// ErrUnknownOrder means the target order already resolved at the venue
	// (filled, canceled, or expired). Benign on cancel and submit paths.
	ErrUnknownOrder = errors.New("venue: unknown order")

	// ErrRateLimited means the venue reported throttling. Triggers backoff.
	ErrRateLimited = errors.New("venue: rate limited")

	// ErrInsufficientBalance means the venue rejected the order for margin
	// or balance reasons. Triggers a timed entry cooldown.
	ErrInsufficientBalance = errors.New("venue: insufficient balance")

	// ErrBulkUnsupported is returned by venues without a batch submission
	// primitive; callers fall back to sequential submission.
	ErrBulkUnsupported = errors.New("venue: bulk orders unsupported")
)

var (
	ErrOrderInvalidRequest  = errors.New("order: invalid request")
	ErrOrderEmptyResponseID = errors.New("order: empty response order id")
)
