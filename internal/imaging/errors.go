package imaging

import "errors"

// Sentinel errors returned by the loaders and grid validation.
var (
	ErrInvalidGrid          = errors.New("invalid intensity grid")
	ErrUnknownIntensityMode = errors.New("unknown intensity mode")
	ErrDecode               = errors.New("failed to decode image")
)
