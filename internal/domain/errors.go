package domain

import "errors"

// Error taxonomy. Everything except ErrInvalidConfig is recoverable for a
// single symbol or date and never aborts a run.
var (
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrInvalidRiskGeometry = errors.New("invalid risk geometry")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrBelowMinimumSize    = errors.New("quantity below minimum size")
	ErrExternalService     = errors.New("external service failure")
	ErrInvalidConfig       = errors.New("invalid config")
)
