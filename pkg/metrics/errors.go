package metrics

import "errors"

// Sentinel errors for metrics export.
var (
	ErrNoGatherer    = errors.New("metrics: no gatherer configured")
	ErrWriteTextfile = errors.New("metrics: write textfile failed")
)
