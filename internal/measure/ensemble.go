package measure

import (
	"math"
	"sort"

	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
	"gonum.org/v1/gonum/stat"
)

// Ensemble fallbacks, recorded in Ensemble.Fallback.
const (
	FallbackNone       = ""
	FallbackPolynomial = "polynomial"
	FallbackMedian     = "median"
	FallbackNoData     = "no_valid_methods"
)

// NoInformationAngle is reported when no method is valid.
const NoInformationAngle = 90.0

// EnsembleParams tunes the method weights.
type EnsembleParams struct {
	// Fits with R² at or above HighQuality weigh R²² + HighQualityBonus;
	// others weigh MarginalFactor·R².
	HighQuality      float64
	HighQualityBonus float64
	MarginalFactor   float64

	// AgreementScale is the angle distance from the median, in degrees, over
	// which weight falls by 1/e.
	AgreementScale float64

	YoungLaplaceBoost     float64
	YoungLaplaceBoostAtR2 float64
	PolynomialPenalty     float64
	PolynomialMinSupport  int

	// MinTotalWeight is the total below which the weighted mean is not
	// trusted.
	MinTotalWeight float64
}

// DefaultEnsembleParams returns the standard weighting.
func DefaultEnsembleParams() EnsembleParams {
	return EnsembleParams{
		HighQuality:           0.85,
		HighQualityBonus:      0.05,
		MarginalFactor:        0.35,
		AgreementScale:        18,
		YoungLaplaceBoost:     1.1,
		YoungLaplaceBoostAtR2: 0.7,
		PolynomialPenalty:     0.7,
		PolynomialMinSupport:  12,
		MinTotalWeight:        1e-9,
	}
}

// Ensemble is the combined angle.
type Ensemble struct {
	AngleDeg      float64                    `json:"angle_deg"`
	AngleLeftDeg  float64                    `json:"angle_left_deg"`
	AngleRightDeg float64                    `json:"angle_right_deg"`
	Weights       map[fitting.Method]float64 `json:"weights"`
	Fallback      string                     `json:"fallback,omitempty"`
}

// HysteresisDeg returns |left − right|.
func (e Ensemble) HysteresisDeg() float64 {
	return math.Abs(e.AngleLeftDeg - e.AngleRightDeg)
}

// Combine merges the valid methods into one angle.
//
// Each valid method weighs base(R²)·exp(−|angle − median|/18), with a boost
// for a good Young-Laplace fit and a penalty for a thinly supported
// polynomial. Weights are normalized to sum to one. Left and right angles are
// weighted the same way over the methods that report sides, and default to
// the combined angle otherwise.
//
// When the total raw weight is negligible the result falls back to the
// polynomial angle if it is valid, then to the median of valid angles, then
// to NoInformationAngle.
func Combine(results []MethodResult, params EnsembleParams) Ensemble {
	angles := validAngles(results)
	if len(angles) == 0 {
		return Ensemble{
			AngleDeg:      NoInformationAngle,
			AngleLeftDeg:  NoInformationAngle,
			AngleRightDeg: NoInformationAngle,
			Weights:       map[fitting.Method]float64{},
			Fallback:      FallbackNoData,
		}
	}
	med := median(angles)

	raw := make(map[fitting.Method]float64)
	var total float64
	for _, r := range results {
		if !r.Valid {
			continue
		}
		w := methodWeight(r, med, params)
		raw[r.Method] = w
		total += w
	}

	if total < params.MinTotalWeight || math.IsNaN(total) {
		return fallbackEnsemble(results, angles)
	}

	e := Ensemble{Weights: make(map[fitting.Method]float64, len(raw))}
	var sideTotal, left, right float64
	for _, r := range results {
		w, ok := raw[r.Method]
		if !ok {
			continue
		}
		w /= total
		e.Weights[r.Method] = w
		e.AngleDeg += w * r.AngleDeg
		if r.HasSides() {
			sideTotal += w
			left += w * *r.AngleLeftDeg
			right += w * *r.AngleRightDeg
		}
	}

	e.AngleLeftDeg, e.AngleRightDeg = e.AngleDeg, e.AngleDeg
	if sideTotal > 0 {
		e.AngleLeftDeg, e.AngleRightDeg = left/sideTotal, right/sideTotal
	}
	return e
}

func methodWeight(r MethodResult, median float64, params EnsembleParams) float64 {
	r2 := r.RSquared
	w := params.MarginalFactor * r2
	if r2 >= params.HighQuality {
		w = r2*r2 + params.HighQualityBonus
	}
	w *= math.Exp(-math.Abs(r.AngleDeg-median) / params.AgreementScale)

	switch r.Method {
	case fitting.MethodYoungLaplace:
		if r2 > params.YoungLaplaceBoostAtR2 {
			w *= params.YoungLaplaceBoost
		}
	case fitting.MethodPolynomial:
		if r.Support < params.PolynomialMinSupport {
			w *= params.PolynomialPenalty
		}
	}
	return w
}

func fallbackEnsemble(results []MethodResult, angles []float64) Ensemble {
	for _, r := range results {
		if r.Method == fitting.MethodPolynomial && r.Valid {
			e := Ensemble{
				AngleDeg:      r.AngleDeg,
				AngleLeftDeg:  r.AngleDeg,
				AngleRightDeg: r.AngleDeg,
				Weights:       map[fitting.Method]float64{fitting.MethodPolynomial: 1},
				Fallback:      FallbackPolynomial,
			}
			if r.HasSides() {
				e.AngleLeftDeg, e.AngleRightDeg = *r.AngleLeftDeg, *r.AngleRightDeg
			}
			return e
		}
	}

	med := median(angles)
	e := Ensemble{
		AngleDeg:      med,
		AngleLeftDeg:  med,
		AngleRightDeg: med,
		Weights:       make(map[fitting.Method]float64),
		Fallback:      FallbackMedian,
	}
	for _, r := range results {
		if r.Valid {
			e.Weights[r.Method] = 1 / float64(len(angles))
		}
	}
	return e
}

// median is the empirical 0.5 quantile, averaged with the next value for even
// counts. vals is not modified.
func median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, vals)
	sort.Float64s(s)
	m := stat.Quantile(0.5, stat.Empirical, s, nil)
	if n%2 == 0 {
		m = (m + s[n/2]) / 2
	}
	return m
}
