package fitting

import (
	"fmt"
	"math"
)

// Method names a fit engine.
type Method string

const (
	MethodCircle       Method = "circle"
	MethodEllipse      Method = "ellipse"
	MethodPolynomial   Method = "polynomial"
	MethodYoungLaplace Method = "young_laplace"
)

// Methods lists every engine in reporting order.
var Methods = []Method{MethodCircle, MethodEllipse, MethodPolynomial, MethodYoungLaplace}

// String returns the wire name.
func (m Method) String() string { return string(m) }

// ParseMethod maps a wire name to a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// Side selects the left or right contact.
type Side int

const (
	Left Side = iota
	Right
)

// InteriorAngle converts a tangent direction (dx, dy) at a contact into the
// contact angle in degrees. The direction is in the baseline frame (y down)
// and may point either way along the tangent.
//
// The direction is first flipped to point up the drop. On the left flank the
// angle is measured from +x, on the right flank from -x.
func InteriorAngle(dx, dy float64, side Side) float64 {
	h := -dy
	if h < 0 {
		dx, h = -dx, -h
	}
	if side == Right {
		dx = -dx
	}
	return math.Atan2(h, dx) * 180 / math.Pi
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clampFloat(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func checkInput(xs, ys []float64, min int) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("%w: %w: %d vs %d", ErrFitFailed, ErrLengthMismatch, len(xs), len(ys))
	}
	if len(xs) < min {
		return fmt.Errorf("%w: %w: have %d, need %d", ErrFitFailed, ErrTooFewPoints, len(xs), min)
	}
	return nil
}
