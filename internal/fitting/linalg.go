package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// normalization maps coordinates to a centered unit-scale frame:
// u = (x - mx) / scale.
type normalization struct {
	mx, my, scale float64
}

// normalize centers on the centroid and scales by the largest radial extent
// so that least-squares systems stay well conditioned at large pixel
// coordinates.
func normalize(xs, ys []float64) (normalization, []float64, []float64, error) {
	n := normalization{mx: stat.Mean(xs, nil), my: stat.Mean(ys, nil)}
	for i := range xs {
		n.scale = math.Max(n.scale, math.Hypot(xs[i]-n.mx, ys[i]-n.my))
	}
	if n.scale == 0 || !finite(n.scale) {
		return n, nil, nil, fmt.Errorf("%w: %w: points coincide", ErrFitFailed, ErrSingular)
	}
	us := make([]float64, len(xs))
	vs := make([]float64, len(ys))
	for i := range xs {
		us[i] = (xs[i] - n.mx) / n.scale
		vs[i] = (ys[i] - n.my) / n.scale
	}
	return n, us, vs, nil
}

// leastSquares solves min ||A·x - b|| for a tall A using QR.
func leastSquares(a *mat.Dense, b []float64) ([]float64, error) {
	_, c := a.Dims()
	var x mat.VecDense
	if err := x.SolveVec(a, mat.NewVecDense(len(b), b)); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrFitFailed, ErrSingular, err)
	}
	out := make([]float64, c)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	if !finite(out...) {
		return nil, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}
	return out, nil
}

// weightedNormalEquations solves (AᵀWA)·c = AᵀW·f for polynomial
// coefficients c, where A is the Vandermonde matrix of ts up to degree.
func weightedNormalEquations(ts, fs, ws []float64, degree int) ([]float64, error) {
	k := degree + 1
	ata := mat.NewSymDense(k, nil)
	atf := mat.NewVecDense(k, nil)

	powers := make([]float64, 2*k-1)
	for i, t := range ts {
		p := 1.0
		for j := range powers {
			powers[j] = p
			p *= t
		}
		for r := 0; r < k; r++ {
			atf.SetVec(r, atf.AtVec(r)+ws[i]*powers[r]*fs[i])
			for c := r; c < k; c++ {
				ata.SetSym(r, c, ata.At(r, c)+ws[i]*powers[r+c])
			}
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(ata, atf); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrFitFailed, ErrSingular, err)
	}
	out := make([]float64, k)
	for i := range out {
		out[i] = coef.AtVec(i)
	}
	if !finite(out...) {
		return nil, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}
	return out, nil
}

// polyEval evaluates sum c[i]·t^i.
func polyEval(c []float64, t float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 0; i-- {
		v = v*t + c[i]
	}
	return v
}

// polyDeriv evaluates d/dt of sum c[i]·t^i.
func polyDeriv(c []float64, t float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 1; i-- {
		v = v*t + float64(i)*c[i]
	}
	return v
}

// exponentialQuality maps a residual normalized by a characteristic length
// to (0, 1]: exp(-25·(rms/length)²).
func exponentialQuality(rms, length float64) float64 {
	if length <= 0 {
		return 0
	}
	q := rms / length
	return math.Exp(-25 * q * q)
}

// rms returns sqrt(mean(v²)).
func rms(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(v, v) / float64(len(v)))
}
