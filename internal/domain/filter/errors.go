package filter

import "errors"

// Sentinel kinds for filter errors.
var (
	// ErrUnknownDimension reports a FilterSpec naming a tag dimension the
	// engine was not configured to recognize.
	ErrUnknownDimension = errors.New("unknown filter dimension")
)
