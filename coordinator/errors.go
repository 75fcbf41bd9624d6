package coordinator

import "errors"

// Sentinel errors returned by coordination operations. Transport handlers
// map these onto status codes; anything else is an internal error.
var (
	// ErrAuthentication covers unknown tokens, address mismatches, expired
	// heartbeats and closed registration.
	ErrAuthentication = errors.New("authentication failed")

	// ErrBackpressure tells the caller to retry the same call later.
	ErrBackpressure = errors.New("not ready")

	// ErrRoundsComplete is terminal: the configured number of rounds has
	// been reached and no further model will be granted.
	ErrRoundsComplete = errors.New("all rounds have been completed")
)
