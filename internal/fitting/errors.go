package fitting

import "errors"

// Sentinel errors for fit engines.
var (
	ErrFitFailed      = errors.New("fit failed")
	ErrTooFewPoints   = errors.New("too few points")
	ErrSingular       = errors.New("singular system")
	ErrNotAnEllipse   = errors.New("conic is not an ellipse")
	ErrNonFinite      = errors.New("non-finite result")
	ErrLengthMismatch = errors.New("xs and ys lengths differ")
)
