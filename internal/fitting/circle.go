package fitting

import (
	"fmt"
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/mat"
)

// Circle is a fitted circle in the baseline frame.
type Circle struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	R  float64 `json:"r"`

	RMSE     float64 `json:"rmse"`
	RSquared float64 `json:"r_squared"`
	AngleDeg float64 `json:"angle_deg"`
	Points   int     `json:"points"`
}

// FitCircle fits a circle by normalized algebraic least squares.
//
// # Algorithm
//
// Points are centered on their centroid and scaled by the largest radial
// extent, then the linear system 2·a·u + 2·b·v + c = u² + v² is solved by QR.
// The center is (a, b) and r² = c + a² + b², mapped back to pixels.
//
// Quality is exp(-25·(rmse/r)²) with rmse the RMS radial residual. The contact
// angle is 180° − acos(clamp(−cy/r, −1, 1)) for the baseline y = 0.
//
// Returns an error wrapping ErrFitFailed for fewer than three points or a
// degenerate system.
func FitCircle(xs, ys []float64) (Circle, error) {
	if err := checkInput(xs, ys, 3); err != nil {
		return Circle{}, err
	}

	norm, us, vs, err := normalize(xs, ys)
	if err != nil {
		return Circle{}, err
	}

	a := mat.NewDense(len(us), 3, nil)
	b := make([]float64, len(us))
	for i := range us {
		a.Set(i, 0, 2*us[i])
		a.Set(i, 1, 2*vs[i])
		a.Set(i, 2, 1)
		b[i] = us[i]*us[i] + vs[i]*vs[i]
	}

	sol, err := leastSquares(a, b)
	if err != nil {
		return Circle{}, err
	}

	r2 := sol[2] + sol[0]*sol[0] + sol[1]*sol[1]
	if r2 <= 0 {
		return Circle{}, fmt.Errorf("%w: negative radius squared %.3g", ErrFitFailed, r2)
	}

	c := Circle{
		CX:     norm.mx + sol[0]*norm.scale,
		CY:     norm.my + sol[1]*norm.scale,
		R:      math.Sqrt(r2) * norm.scale,
		Points: len(xs),
	}
	if !finite(c.CX, c.CY, c.R) || c.R <= 0 {
		return Circle{}, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}

	resid := make([]float64, len(xs))
	for i := range xs {
		resid[i] = math.Hypot(xs[i]-c.CX, ys[i]-c.CY) - c.R
	}
	c.RMSE = rms(resid)
	c.RSquared = exponentialQuality(c.RMSE, c.R)
	c.AngleDeg = 180 - math.Acos(clampFloat(-c.CY/c.R, -1, 1))*180/math.Pi

	return c, nil
}

// BaselineIntersections returns the x positions where the circle crosses
// y = 0. ok is false when the circle does not reach the baseline.
func (c Circle) BaselineIntersections() (left, right float64, ok bool) {
	d := c.R*c.R - c.CY*c.CY
	if d < 0 {
		return 0, 0, false
	}
	h := math.Sqrt(d)
	return c.CX - h, c.CX + h, true
}

// RisesAboveBaseline reports whether any part of the circle lies at y < 0.
func (c Circle) RisesAboveBaseline() bool {
	return c.CY-c.R < 0
}

// Sample returns n points on the part of the circle above the baseline, from
// the left intersection over the top to the right one. A circle lying wholly
// above the baseline is sampled in full.
func (c Circle) Sample(n int) []imaging.Point {
	if n < 2 || c.R <= 0 {
		return nil
	}
	// With t measured from +x and y down, the arc above y = 0 is
	// t in (-π-α, α) where sin α = -cy/r.
	s0 := -c.CY / c.R
	var start, end float64
	switch {
	case s0 <= -1:
		return nil
	case s0 >= 1:
		start, end = -3*math.Pi/2, math.Pi/2
	default:
		alpha := math.Asin(s0)
		start, end = -math.Pi-alpha, alpha
	}
	pts := make([]imaging.Point, n)
	for i := range pts {
		t := start + (end-start)*float64(i)/float64(n-1)
		pts[i] = imaging.Point{X: c.CX + c.R*math.Cos(t), Y: c.CY + c.R*math.Sin(t)}
	}
	return pts
}
