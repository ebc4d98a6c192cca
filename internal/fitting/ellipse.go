package fitting

import (
	"fmt"
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/mat"
)

const (
	powerIterations = 100

	// contactSamples is the parametric resolution used to find the ellipse
	// point nearest each contact.
	contactSamples = 1440
)

// Eigen solvers recorded in Ellipse.Solver.
const (
	SolverPowerIteration = "power_iteration"
	SolverEigen          = "eigen"
)

// Ellipse is a fitted ellipse in the baseline frame.
type Ellipse struct {
	CX        float64 `json:"cx"`
	CY        float64 `json:"cy"`
	SemiMajor float64 `json:"semi_major"`
	SemiMinor float64 `json:"semi_minor"`

	// Phi is the major-axis direction in radians from +x, y down.
	Phi float64 `json:"phi"`

	RMS           float64 `json:"rms"`
	RSquared      float64 `json:"r_squared"`
	AngleLeftDeg  float64 `json:"angle_left_deg"`
	AngleRightDeg float64 `json:"angle_right_deg"`
	AngleDeg      float64 `json:"angle_deg"`
	Points        int     `json:"points"`
	Solver        string  `json:"solver"`
}

// AxisRatio returns SemiMajor / SemiMinor.
func (e Ellipse) AxisRatio() float64 {
	if e.SemiMinor <= 0 {
		return math.Inf(1)
	}
	return e.SemiMajor / e.SemiMinor
}

// At returns the ellipse point at parameter t.
func (e Ellipse) At(t float64) imaging.Point {
	cp, sp := math.Cos(e.Phi), math.Sin(e.Phi)
	ca, sa := e.SemiMajor*math.Cos(t), e.SemiMinor*math.Sin(t)
	return imaging.Point{X: e.CX + ca*cp - sa*sp, Y: e.CY + ca*sp + sa*cp}
}

// tangent returns dP/dt at parameter t.
func (e Ellipse) tangent(t float64) (float64, float64) {
	cp, sp := math.Cos(e.Phi), math.Sin(e.Phi)
	da, db := -e.SemiMajor*math.Sin(t), e.SemiMinor*math.Cos(t)
	return da*cp - db*sp, da*sp + db*cp
}

// nearestParameter returns the sampled t whose point is closest to (x, y).
func (e Ellipse) nearestParameter(x, y float64) float64 {
	best, bestD := 0.0, math.Inf(1)
	for i := 0; i < contactSamples; i++ {
		t := 2 * math.Pi * float64(i) / contactSamples
		p := e.At(t)
		if d := math.Hypot(p.X-x, p.Y-y); d < bestD {
			best, bestD = t, d
		}
	}
	return best
}

// ContactAngle returns the interior angle at the ellipse point nearest
// (x, 0) on the given side.
func (e Ellipse) ContactAngle(x float64, side Side) float64 {
	dx, dy := e.tangent(e.nearestParameter(x, 0))
	return InteriorAngle(dx, dy, side)
}

// Sample returns n points of the ellipse at or above the baseline, in
// parametric order.
func (e Ellipse) Sample(n int) []imaging.Point {
	if n < 2 {
		return nil
	}
	// Start below the baseline when possible so the visible arc is contiguous.
	start := 0.0
	for i := 0; i < 360; i++ {
		t := 2 * math.Pi * float64(i) / 360
		if e.At(t).Y > 0 {
			start = t
			break
		}
	}
	var pts []imaging.Point
	for i := 0; i < n; i++ {
		p := e.At(start + 2*math.Pi*float64(i)/float64(n-1))
		if p.Y <= 0 {
			pts = append(pts, p)
		}
	}
	return pts
}

// FitEllipse fits an ellipse by direct least squares and reads contact angles
// at leftX and rightX on the baseline.
//
// # Algorithm
//
// The Fitzgibbon problem is solved with the Halir-Flusser split on
// centroid-normalized points:
//
//	S1 = D1ᵀD1, S2 = D1ᵀD2, S3 = D2ᵀD2
//	T  = −S3⁻¹·S2ᵀ
//	M  = C1⁻¹·(S1 + S2·T)
//
// where D1 holds the quadratic terms, D2 the linear terms and C1 the ellipse
// constraint. M has a single eigenvector with 4ac − b² > 0. It is found by
// power iteration on M shifted by its Frobenius norm; if that does not
// converge to a valid ellipse the full eigendecomposition is used instead.
//
// Quality is exp(-25·(rms/meanAxis)²) over Sampson distances.
//
// Returns an error wrapping ErrFitFailed for fewer than six points, singular
// scatter matrices, or a conic that is not an ellipse.
func FitEllipse(xs, ys []float64, leftX, rightX float64) (Ellipse, error) {
	if err := checkInput(xs, ys, 6); err != nil {
		return Ellipse{}, err
	}

	norm, us, vs, err := normalize(xs, ys)
	if err != nil {
		return Ellipse{}, err
	}

	s1 := mat.NewDense(3, 3, nil)
	s2 := mat.NewDense(3, 3, nil)
	s3 := mat.NewDense(3, 3, nil)
	for i := range us {
		d1 := [3]float64{us[i] * us[i], us[i] * vs[i], vs[i] * vs[i]}
		d2 := [3]float64{us[i], vs[i], 1}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				s1.Set(r, c, s1.At(r, c)+d1[r]*d1[c])
				s2.Set(r, c, s2.At(r, c)+d1[r]*d2[c])
				s3.Set(r, c, s3.At(r, c)+d2[r]*d2[c])
			}
		}
	}

	var s3inv mat.Dense
	if err := s3inv.Inverse(s3); err != nil {
		return Ellipse{}, fmt.Errorf("%w: %w: %v", ErrFitFailed, ErrSingular, err)
	}

	var t mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)

	var reduced mat.Dense
	reduced.Mul(s2, &t)
	reduced.Add(s1, &reduced)

	// C1⁻¹ = [[0, 0, 1/2], [0, -1, 0], [1/2, 0, 0]].
	m := mat.NewDense(3, 3, nil)
	for c := 0; c < 3; c++ {
		m.Set(0, c, reduced.At(2, c)/2)
		m.Set(1, c, -reduced.At(1, c))
		m.Set(2, c, reduced.At(0, c)/2)
	}

	solver := SolverPowerIteration
	a1, ok := powerIterate(m)
	if !ok {
		solver = SolverEigen
		if a1, ok = ellipseEigenvector(m); !ok {
			return Ellipse{}, fmt.Errorf("%w: %w: no eigenvector satisfies 4ac-b²>0", ErrFitFailed, ErrNotAnEllipse)
		}
	}

	a2 := mat.NewVecDense(3, nil)
	a2.MulVec(&t, mat.NewVecDense(3, a1))
	conic := [6]float64{a1[0], a1[1], a1[2], a2.AtVec(0), a2.AtVec(1), a2.AtVec(2)}

	e, err := conicToEllipse(conic, norm)
	if err != nil {
		return Ellipse{}, err
	}
	e.Points = len(xs)
	e.Solver = solver

	sampson := make([]float64, len(us))
	for i := range us {
		sampson[i] = sampsonDistance(conic, us[i], vs[i]) * norm.scale
	}
	e.RMS = rms(sampson)
	e.RSquared = exponentialQuality(e.RMS, (e.SemiMajor+e.SemiMinor)/2)

	e.AngleLeftDeg = e.ContactAngle(leftX, Left)
	e.AngleRightDeg = e.ContactAngle(rightX, Right)
	e.AngleDeg = (e.AngleLeftDeg + e.AngleRightDeg) / 2
	if !finite(e.AngleDeg, e.RMS) {
		return Ellipse{}, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}

	return e, nil
}

// powerIterate returns the eigenvector of m for its algebraically largest
// eigenvalue, or false when it does not converge to an ellipse.
func powerIterate(m *mat.Dense) ([]float64, bool) {
	sigma := mat.Norm(m, 2)
	if sigma == 0 || !finite(sigma) {
		return nil, false
	}

	shifted := mat.NewDense(3, 3, nil)
	shifted.Copy(m)
	for i := 0; i < 3; i++ {
		shifted.Set(i, i, shifted.At(i, i)+sigma)
	}

	// A circle (a = c, b = 0) is a good first guess for droplet arcs.
	v := mat.NewVecDense(3, []float64{math.Sqrt2 / 2, 0, math.Sqrt2 / 2})
	w := mat.NewVecDense(3, nil)
	for i := 0; i < powerIterations; i++ {
		w.MulVec(shifted, v)
		n := mat.Norm(w, 2)
		if n == 0 || !finite(n) {
			return nil, false
		}
		v.ScaleVec(1/n, w)
	}

	// Accept only a converged eigenpair of m itself.
	w.MulVec(m, v)
	lambda := mat.Dot(v, w)
	var resid float64
	for i := 0; i < 3; i++ {
		d := w.AtVec(i) - lambda*v.AtVec(i)
		resid += d * d
	}
	vec := []float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)}
	if math.Sqrt(resid) > 1e-8*sigma || 4*vec[0]*vec[2]-vec[1]*vec[1] <= 0 {
		return nil, false
	}
	return vec, true
}

// ellipseEigenvector runs a full eigendecomposition and returns the real
// eigenvector satisfying the ellipse constraint.
func ellipseEigenvector(m *mat.Dense) ([]float64, bool) {
	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		return nil, false
	}
	values := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	for j, val := range values {
		if math.Abs(imag(val)) > 1e-9*(1+math.Abs(real(val))) {
			continue
		}
		v := []float64{real(vecs.At(0, j)), real(vecs.At(1, j)), real(vecs.At(2, j))}
		if 4*v[0]*v[2]-v[1]*v[1] > 0 {
			return v, true
		}
	}
	return nil, false
}

// conicToEllipse converts A·u² + B·uv + C·v² + D·u + E·v + F = 0 in
// normalized coordinates to pixel-space center, axes and rotation.
func conicToEllipse(k [6]float64, norm normalization) (Ellipse, error) {
	a, b, c, d, e, f := k[0], k[1], k[2], k[3], k[4], k[5]
	den := b*b - 4*a*c
	if den >= 0 {
		return Ellipse{}, fmt.Errorf("%w: %w: discriminant %.3g", ErrFitFailed, ErrNotAnEllipse, den)
	}

	u0 := (2*c*d - b*e) / den
	v0 := (2*a*e - b*d) / den
	f0 := f + (d*u0+e*v0)/2
	if f0 > 0 {
		a, b, c, f0 = -a, -b, -c, -f0
	}

	mid := (a + c) / 2
	rad := math.Hypot((a-c)/2, b/2)
	lamMinor, lamMajor := mid+rad, mid-rad
	if lamMajor <= 0 || f0 >= 0 {
		return Ellipse{}, fmt.Errorf("%w: %w: imaginary axes", ErrFitFailed, ErrNotAnEllipse)
	}

	el := Ellipse{
		CX:        norm.mx + u0*norm.scale,
		CY:        norm.my + v0*norm.scale,
		SemiMajor: math.Sqrt(-f0/lamMajor) * norm.scale,
		SemiMinor: math.Sqrt(-f0/lamMinor) * norm.scale,
		Phi:       0.5*math.Atan2(b, a-c) + math.Pi/2,
	}
	if !finite(el.CX, el.CY, el.SemiMajor, el.SemiMinor, el.Phi) || el.SemiMinor <= 0 {
		return Ellipse{}, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}
	return el, nil
}

// sampsonDistance approximates the geometric distance from (u, v) to the
// conic as |Q| / |∇Q|.
func sampsonDistance(k [6]float64, u, v float64) float64 {
	q := k[0]*u*u + k[1]*u*v + k[2]*v*v + k[3]*u + k[4]*v + k[5]
	gu := 2*k[0]*u + k[1]*v + k[3]
	gv := k[1]*u + 2*k[2]*v + k[4]
	g := math.Hypot(gu, gv)
	if g == 0 {
		return math.Abs(q)
	}
	return math.Abs(q) / g
}
