package fitting

import (
	"fmt"
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/floats"
)

// PolynomialParams tunes the local tangent fit.
type PolynomialParams struct {
	// Window radius around each contact is HeightFraction of the drop
	// height, clamped to [MinRadius, MaxRadius].
	HeightFraction float64
	MinRadius      float64
	MaxRadius      float64

	// When fewer than MinWindowPoints fall in the window it is widened by
	// Expand once.
	MinWindowPoints int
	Expand          float64

	// Points closer than BaselineGap to the baseline sit in the blurred
	// corner at the contact. They are dropped while at least
	// MinWindowPoints remain.
	BaselineGap float64

	MinSidePoints int
	MaxDegree     int
	PointsPerTerm int

	// WeightDecay is the distance in pixels over which weights fall by 1/e.
	WeightDecay float64
}

// DefaultPolynomialParams returns the tuned defaults.
func DefaultPolynomialParams() PolynomialParams {
	return PolynomialParams{
		HeightFraction:  0.5,
		MinRadius:       15,
		MaxRadius:       60,
		MinWindowPoints: 8,
		Expand:          1.5,
		BaselineGap:     2,
		MinSidePoints:   3,
		MaxDegree:       3,
		PointsPerTerm:   5,
		WeightDecay:     28,
	}
}

// PolynomialSide is the local fit at one contact.
type PolynomialSide struct {
	ContactX float64 `json:"contact_x"`
	AngleDeg float64 `json:"angle_deg"`
	RSquared float64 `json:"r_squared"`
	Degree   int     `json:"degree"`
	Points   int     `json:"points"`

	// XOfY is true when the flank was fitted as x(y) rather than y(x).
	XOfY bool `json:"x_of_y"`

	coef       []float64
	scale      float64
	tMin, tMax float64
}

// Polynomial holds both flank fits.
type Polynomial struct {
	Left     PolynomialSide `json:"left"`
	Right    PolynomialSide `json:"right"`
	AngleDeg float64        `json:"angle_deg"`
	RSquared float64        `json:"r_squared"`
	Support  int            `json:"support"`
}

// FitPolynomial fits a weighted low-order polynomial to each flank near its
// contact and reads the angle from the derivative at the contact.
//
// Points left of the contact midpoint belong to the left flank. Each flank
// keeps points within a window of the contact, fits x(y) when the window is
// taller than wide and y(x) otherwise, and weights points by
// exp(-d/WeightDecay) with d the distance to the contact.
func FitPolynomial(xs, ys []float64, leftX, rightX float64, params PolynomialParams) (Polynomial, error) {
	if err := checkInput(xs, ys, 2*params.MinSidePoints); err != nil {
		return Polynomial{}, err
	}

	height := -floats.Min(ys)
	radius := clampFloat(params.HeightFraction*height, params.MinRadius, params.MaxRadius)
	mid := (leftX + rightX) / 2

	var lx, ly, rx, ry []float64
	for i := range xs {
		if xs[i] < mid {
			lx, ly = append(lx, xs[i]), append(ly, ys[i])
		} else {
			rx, ry = append(rx, xs[i]), append(ry, ys[i])
		}
	}

	left, err := fitFlank(lx, ly, leftX, radius, Left, params)
	if err != nil {
		return Polynomial{}, fmt.Errorf("left flank: %w", err)
	}
	right, err := fitFlank(rx, ry, rightX, radius, Right, params)
	if err != nil {
		return Polynomial{}, fmt.Errorf("right flank: %w", err)
	}

	return Polynomial{
		Left:     left,
		Right:    right,
		AngleDeg: (left.AngleDeg + right.AngleDeg) / 2,
		RSquared: (left.RSquared + right.RSquared) / 2,
		Support:  left.Points + right.Points,
	}, nil
}

func fitFlank(xs, ys []float64, contactX, radius float64, side Side, params PolynomialParams) (PolynomialSide, error) {
	wx, wy, dist := window(xs, ys, contactX, radius)
	if len(wx) < params.MinWindowPoints {
		radius *= params.Expand
		wx, wy, dist = window(xs, ys, contactX, radius)
	}
	wx, wy, dist = clearOfBaseline(wx, wy, dist, params.BaselineGap, params.MinWindowPoints)
	if len(wx) < params.MinSidePoints {
		return PolynomialSide{}, fmt.Errorf("%w: %w: %d points near contact", ErrFitFailed, ErrTooFewPoints, len(wx))
	}

	ps := PolynomialSide{
		ContactX: contactX,
		Points:   len(wx),
		XOfY:     floats.Max(wy)-floats.Min(wy) > floats.Max(wx)-floats.Min(wx),
		scale:    radius,
	}
	ps.Degree = params.MaxDegree
	if d := len(wx) / params.PointsPerTerm; d < ps.Degree {
		ps.Degree = max(1, d)
	}

	// Independent variable t is centered on the contact and scaled by the
	// window radius; f is the dependent coordinate.
	ts := make([]float64, len(wx))
	fs := make([]float64, len(wx))
	ws := make([]float64, len(wx))
	for i := range wx {
		if ps.XOfY {
			ts[i], fs[i] = wy[i]/radius, wx[i]
		} else {
			ts[i], fs[i] = (wx[i]-contactX)/radius, wy[i]
		}
		ws[i] = math.Exp(-dist[i] / params.WeightDecay)
	}
	ps.tMin, ps.tMax = floats.Min(ts), floats.Max(ts)

	coef, err := weightedNormalEquations(ts, fs, ws, ps.Degree)
	if err != nil {
		return PolynomialSide{}, err
	}
	ps.coef = coef

	slope := polyDeriv(coef, 0) / radius
	if ps.XOfY {
		ps.AngleDeg = InteriorAngle(slope, 1, side)
	} else {
		ps.AngleDeg = InteriorAngle(1, slope, side)
	}
	ps.RSquared = weightedRSquared(ts, fs, ws, coef)

	if !finite(ps.AngleDeg, ps.RSquared) {
		return PolynomialSide{}, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}
	return ps, nil
}

// window returns the points within radius of (contactX, 0) and their
// distances.
func window(xs, ys []float64, contactX, radius float64) (wx, wy, dist []float64) {
	for i := range xs {
		if d := math.Hypot(xs[i]-contactX, ys[i]); d <= radius {
			wx, wy, dist = append(wx, xs[i]), append(wy, ys[i]), append(dist, d)
		}
	}
	return wx, wy, dist
}

// clearOfBaseline drops points with y > -gap unless fewer than keep would
// remain.
func clearOfBaseline(xs, ys, dist []float64, gap float64, keep int) ([]float64, []float64, []float64) {
	if gap <= 0 {
		return xs, ys, dist
	}
	var cx, cy, cd []float64
	for i := range xs {
		if ys[i] <= -gap {
			cx, cy, cd = append(cx, xs[i]), append(cy, ys[i]), append(cd, dist[i])
		}
	}
	if len(cx) < keep {
		return xs, ys, dist
	}
	return cx, cy, cd
}

// weightedRSquared is 1 - SSres/SStot with weights, clamped to [0, 1]. A
// constant response scores 1 when the fit is exact and 0 otherwise.
func weightedRSquared(ts, fs, ws, coef []float64) float64 {
	var sw, swf float64
	for i := range fs {
		sw += ws[i]
		swf += ws[i] * fs[i]
	}
	if sw == 0 {
		return 0
	}
	mean := swf / sw

	var ssRes, ssTot float64
	for i := range fs {
		r := fs[i] - polyEval(coef, ts[i])
		ssRes += ws[i] * r * r
		d := fs[i] - mean
		ssTot += ws[i] * d * d
	}
	if ssTot < 1e-12 {
		if ssRes < 1e-12 {
			return 1
		}
		return 0
	}
	return clampFloat(1-ssRes/ssTot, 0, 1)
}

// Sample returns n points along the fitted flank over its window.
func (ps PolynomialSide) Sample(n int) []imaging.Point {
	if n < 2 || len(ps.coef) == 0 {
		return nil
	}
	pts := make([]imaging.Point, n)
	for i := range pts {
		t := ps.tMin + (ps.tMax-ps.tMin)*float64(i)/float64(n-1)
		f := polyEval(ps.coef, t)
		if ps.XOfY {
			pts[i] = imaging.Point{X: f, Y: t * ps.scale}
		} else {
			pts[i] = imaging.Point{X: ps.ContactX + t*ps.scale, Y: f}
		}
	}
	return pts
}

// ContactPoint returns the fitted curve position at the contact.
func (ps PolynomialSide) ContactPoint() imaging.Point {
	if len(ps.coef) == 0 {
		return imaging.Point{X: ps.ContactX}
	}
	if ps.XOfY {
		return imaging.Point{X: polyEval(ps.coef, 0)}
	}
	return imaging.Point{X: ps.ContactX, Y: polyEval(ps.coef, 0)}
}
