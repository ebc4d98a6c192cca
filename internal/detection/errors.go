package detection

import "errors"

// Sentinel errors for stages that cannot continue.
var (
	ErrNoComponent   = errors.New("no edge component found")
	ErrIsolation     = errors.New("droplet isolation failed")
	ErrContactPoints = errors.New("could not locate contact points reliably")
)
