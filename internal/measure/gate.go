package measure

import (
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/detection"
	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
)

// InvalidReason says why the gate rejected a fit. The zero value means valid.
type InvalidReason string

const (
	ReasonNone            InvalidReason = ""
	ReasonFitFailed       InvalidReason = "fit_failed"
	ReasonAngleRange      InvalidReason = "angle_out_of_range"
	ReasonLowRSquared     InvalidReason = "low_r_squared"
	ReasonSmallRadius     InvalidReason = "degenerate_radius"
	ReasonCircleBelow     InvalidReason = "circle_below_baseline"
	ReasonContactMismatch InvalidReason = "contact_mismatch"
	ReasonDegenerateAxes  InvalidReason = "degenerate_axes"
	ReasonAxisRatio       InvalidReason = "axis_ratio"
	ReasonLowSupport      InvalidReason = "insufficient_support"
	ReasonSideDisagree    InvalidReason = "side_disagreement"
	ReasonInvalidBond     InvalidReason = "invalid_bond_number"
	ReasonHighResidual    InvalidReason = "high_residual"
)

// GateParams holds the per-method rejection thresholds.
type GateParams struct {
	MinAngle float64
	MaxAngle float64

	CircleMinRadius      float64
	CircleMinRSquared    float64
	ContactToleranceMin  float64
	ContactToleranceFrac float64

	EllipseMinRSquared float64
	EllipseMaxRatio    float64

	PolynomialMinRSquared   float64
	PolynomialMinSupport    int
	PolynomialMaxSideSpread float64

	YoungLaplaceMinRSquared float64
	YoungLaplaceMaxResidual float64
}

// DefaultGateParams returns the standard rejection rules.
func DefaultGateParams() GateParams {
	return GateParams{
		MinAngle:                1,
		MaxAngle:                179,
		CircleMinRadius:         2,
		CircleMinRSquared:       0.72,
		ContactToleranceMin:     5,
		ContactToleranceFrac:    0.16,
		EllipseMinRSquared:      0.72,
		EllipseMaxRatio:         4.5,
		PolynomialMinRSquared:   0.78,
		PolynomialMinSupport:    12,
		PolynomialMaxSideSpread: 45,
		YoungLaplaceMinRSquared: 0.68,
		YoungLaplaceMaxResidual: 0.35,
	}
}

// Fits carries every engine's outcome. An engine that failed leaves its
// value zero and sets the matching error.
type Fits struct {
	Circle     fitting.Circle
	CircleErr  error
	Ellipse    fitting.Ellipse
	EllipseErr error

	Polynomial    fitting.Polynomial
	PolynomialErr error

	YoungLaplace    fitting.YoungLaplace
	YoungLaplaceErr error
}

// MethodResult is one gated fit.
type MethodResult struct {
	Method        fitting.Method `json:"method"`
	AngleDeg      float64        `json:"angle_deg"`
	AngleLeftDeg  *float64       `json:"angle_left_deg,omitempty"`
	AngleRightDeg *float64       `json:"angle_right_deg,omitempty"`
	RSquared      float64        `json:"r_squared"`
	Valid         bool           `json:"is_valid"`
	InvalidReason InvalidReason  `json:"invalid_reason,omitempty"`

	// Support is the number of points behind the fit.
	Support int `json:"support"`

	// Error holds the engine error text for fit_failed results.
	Error string `json:"error,omitempty"`

	// Params is the raw engine output for diagnostics.
	Params any `json:"params,omitempty"`
}

// HasSides reports whether the method produced separate left and right angles.
func (r MethodResult) HasSides() bool {
	return r.AngleLeftDeg != nil && r.AngleRightDeg != nil
}

// Gate applies the validity rules to every engine and returns one result per
// method in fitting.Methods order.
func Gate(f Fits, contacts detection.Contacts, params GateParams) []MethodResult {
	return []MethodResult{
		gateCircle(f.Circle, f.CircleErr, contacts, params),
		gateEllipse(f.Ellipse, f.EllipseErr, params),
		gatePolynomial(f.Polynomial, f.PolynomialErr, params),
		gateYoungLaplace(f.YoungLaplace, f.YoungLaplaceErr, params),
	}
}

func failed(m fitting.Method, err error) MethodResult {
	return MethodResult{Method: m, InvalidReason: ReasonFitFailed, Error: err.Error()}
}

// finish runs the shared checks after the method rules and sets Valid.
func finish(r MethodResult, reason InvalidReason, params GateParams) MethodResult {
	if reason == ReasonNone && !angleInRange(r.AngleDeg, params) {
		reason = ReasonAngleRange
	}
	if reason == ReasonNone && r.HasSides() &&
		(!angleInRange(*r.AngleLeftDeg, params) || !angleInRange(*r.AngleRightDeg, params)) {
		reason = ReasonAngleRange
	}
	r.InvalidReason = reason
	r.Valid = reason == ReasonNone
	return r
}

func angleInRange(a float64, params GateParams) bool {
	return !math.IsNaN(a) && a >= params.MinAngle && a <= params.MaxAngle
}

func gateCircle(c fitting.Circle, err error, contacts detection.Contacts, params GateParams) MethodResult {
	if err != nil {
		return failed(fitting.MethodCircle, err)
	}
	r := MethodResult{
		Method:   fitting.MethodCircle,
		AngleDeg: c.AngleDeg,
		RSquared: c.RSquared,
		Support:  c.Points,
		Params:   c,
	}

	reason := ReasonNone
	tol := math.Max(params.ContactToleranceMin, params.ContactToleranceFrac*contacts.Span())
	left, right, ok := c.BaselineIntersections()
	switch {
	case math.IsNaN(c.R) || math.IsInf(c.R, 0) || c.R <= params.CircleMinRadius:
		reason = ReasonSmallRadius
	case !c.RisesAboveBaseline():
		reason = ReasonCircleBelow
	case !ok || math.Abs(left-contacts.LeftX) > tol || math.Abs(right-contacts.RightX) > tol:
		reason = ReasonContactMismatch
	case c.RSquared < params.CircleMinRSquared:
		reason = ReasonLowRSquared
	}
	return finish(r, reason, params)
}

func gateEllipse(e fitting.Ellipse, err error, params GateParams) MethodResult {
	if err != nil {
		return failed(fitting.MethodEllipse, err)
	}
	left, right := e.AngleLeftDeg, e.AngleRightDeg
	r := MethodResult{
		Method:        fitting.MethodEllipse,
		AngleDeg:      e.AngleDeg,
		AngleLeftDeg:  &left,
		AngleRightDeg: &right,
		RSquared:      e.RSquared,
		Support:       e.Points,
		Params:        e,
	}

	reason := ReasonNone
	switch {
	case !(e.SemiMinor > 0) || math.IsInf(e.SemiMajor, 0) || e.SemiMajor < e.SemiMinor:
		reason = ReasonDegenerateAxes
	case e.AxisRatio() > params.EllipseMaxRatio:
		reason = ReasonAxisRatio
	case e.RSquared < params.EllipseMinRSquared:
		reason = ReasonLowRSquared
	}
	return finish(r, reason, params)
}

func gatePolynomial(p fitting.Polynomial, err error, params GateParams) MethodResult {
	if err != nil {
		return failed(fitting.MethodPolynomial, err)
	}
	left, right := p.Left.AngleDeg, p.Right.AngleDeg
	r := MethodResult{
		Method:        fitting.MethodPolynomial,
		AngleDeg:      p.AngleDeg,
		AngleLeftDeg:  &left,
		AngleRightDeg: &right,
		RSquared:      p.RSquared,
		Support:       p.Support,
		Params:        p,
	}

	reason := ReasonNone
	switch {
	case p.Support < params.PolynomialMinSupport:
		reason = ReasonLowSupport
	case math.Abs(left-right) > params.PolynomialMaxSideSpread:
		reason = ReasonSideDisagree
	case p.RSquared < params.PolynomialMinRSquared:
		reason = ReasonLowRSquared
	}
	return finish(r, reason, params)
}

func gateYoungLaplace(yl fitting.YoungLaplace, err error, params GateParams) MethodResult {
	if err != nil {
		return failed(fitting.MethodYoungLaplace, err)
	}
	r := MethodResult{
		Method:   fitting.MethodYoungLaplace,
		AngleDeg: yl.AngleDeg,
		RSquared: yl.RSquared,
		Support:  yl.Points,
		Params:   yl,
	}

	reason := ReasonNone
	switch {
	case math.IsNaN(yl.Bond) || math.IsInf(yl.Bond, 0) || yl.Bond <= 0:
		reason = ReasonInvalidBond
	case yl.Residual > params.YoungLaplaceMaxResidual:
		reason = ReasonHighResidual
	case yl.RSquared < params.YoungLaplaceMinRSquared:
		reason = ReasonLowRSquared
	}
	return finish(r, reason, params)
}

// validAngles returns the angles of valid results.
func validAngles(results []MethodResult) []float64 {
	var out []float64
	for _, r := range results {
		if r.Valid {
			out = append(out, r.AngleDeg)
		}
	}
	return out
}
