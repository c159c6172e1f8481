package verification

import "errors"

var (
	// ErrAlreadyRunning is returned by RunExclusive when a run is in progress.
	ErrAlreadyRunning = errors.New("verification already running")

	// ErrStale marks a call that had no price data long after its target date.
	ErrStale = errors.New("no price history past staleness bound")
)
