package measure

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step at which a measurement aborted.
type Stage string

const (
	StageDecode    Stage = "decode_failure"
	StageContour   Stage = "insufficient_contour"
	StageIsolation Stage = "isolation_failure"
	StageContacts  Stage = "contact_point_failure"
	StageFitPoints Stage = "insufficient_fit_points"
)

// Stage sentinels. A *Failure matches the sentinel of its stage with errors.Is.
var (
	ErrDecode              = errors.New("intensity grid is unusable")
	ErrInsufficientContour = errors.New("not enough droplet edge points")
	ErrIsolation           = errors.New("could not isolate the droplet above the baseline")
	ErrContactPoints       = errors.New("could not locate contact points reliably")
	ErrInsufficientPoints  = errors.New("not enough points above the baseline to fit")
)

// Sentinel returns the error matched by failures at s.
func (s Stage) Sentinel() error {
	switch s {
	case StageDecode:
		return ErrDecode
	case StageContour:
		return ErrInsufficientContour
	case StageIsolation:
		return ErrIsolation
	case StageContacts:
		return ErrContactPoints
	case StageFitPoints:
		return ErrInsufficientPoints
	}
	return nil
}

// Failure is a terminal abort. Reason is short text for the end user; Err is
// the underlying cause, if any.
type Failure struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Stage, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Stage, f.Reason)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error { return f.Err }

// Is matches the stage sentinel.
func (f *Failure) Is(target error) bool {
	s := f.Stage.Sentinel()
	return s != nil && target == s
}

func fail(stage Stage, err error) *Failure {
	reason := "measurement failed"
	if s := stage.Sentinel(); s != nil {
		reason = s.Error()
	}
	return &Failure{Stage: stage, Reason: reason, Err: err}
}
