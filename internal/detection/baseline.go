package detection

import (
	"math"
	"math/rand"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/stat"
)

// BaselineParams configures EstimateBaseline.
type BaselineParams struct {
	// The search band is BandFraction of the contour height, clamped to
	// [MinBand, MaxBand] pixels, measured up from the lowest point.
	BandFraction float64
	MinBand      float64
	MaxBand      float64

	Trials         int
	InlierDistance float64
	MaxTiltDeg     float64

	// Sample pairs closer than max(MinSeparation, SeparationFraction·bandWidth)
	// horizontally are skipped.
	MinSeparation      float64
	SeparationFraction float64

	// DistancePenalty scales the mean inlier distance in the trial score.
	DistancePenalty float64

	// MinInliers is the smallest consensus set accepted before falling back
	// to a flat baseline.
	MinInliers int
}

// DefaultBaselineParams returns the standard RANSAC settings.
func DefaultBaselineParams() BaselineParams {
	return BaselineParams{
		BandFraction:       0.1,
		MinBand:            8,
		MaxBand:            22,
		Trials:             160,
		InlierDistance:     2.2,
		MaxTiltDeg:         20,
		MinSeparation:      8,
		SeparationFraction: 0.1,
		DistancePenalty:    0.35,
		MinInliers:         6,
	}
}

// Baseline is the substrate line y = Slope·x + Intercept in image coordinates.
type Baseline struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	AngleDeg  float64 `json:"angle_deg"`
	RMS       float64 `json:"rms"`
	Inliers   int     `json:"inliers"`

	// Fallback marks a flat line at the contour's lowest point, used when
	// RANSAC found too few inliers or an excessive tilt.
	Fallback bool `json:"fallback"`
}

// YAt returns the baseline's y at image x.
func (b Baseline) YAt(x float64) float64 {
	return b.Slope*x + b.Intercept
}

// EstimateBaseline fits the substrate line to the bottom band of a contour.
//
// # Algorithm
//
//  1. Keep points within the bottom band (10% of contour height, 8..22 px).
//  2. RANSAC: draw two band points, skip pairs closer than the minimum
//     horizontal separation or tilted beyond ±20°, count inliers within
//     2.2 px perpendicular distance, score = inliers − 0.35·meanDistance.
//  3. Refit the best consensus set by ordinary least squares.
//  4. If the refit tilt still exceeds the bound, or the consensus is too
//     small, return a flat line at the contour's maximum y.
//
// rng drives sampling so runs are reproducible for a fixed seed.
func EstimateBaseline(points []imaging.Point, params BaselineParams, rng *rand.Rand) Baseline {
	if len(points) == 0 {
		return Baseline{Fallback: true}
	}

	b := boundsOf(points)
	band := clampFloat(params.BandFraction*b.Height(), params.MinBand, params.MaxBand)

	var bandPts []imaging.Point
	for _, p := range points {
		if p.Y >= b.MaxY-band {
			bandPts = append(bandPts, p)
		}
	}

	flat := func() Baseline {
		return flatBaseline(bandPts, b.MaxY, params.InlierDistance)
	}
	if len(bandPts) < 2 {
		return flat()
	}

	bandBounds := boundsOf(bandPts)
	minSep := math.Max(params.MinSeparation, params.SeparationFraction*bandBounds.Width())
	maxSlope := math.Tan(params.MaxTiltDeg * math.Pi / 180)

	var (
		bestInliers []imaging.Point
		bestScore   = math.Inf(-1)
	)
	for trial := 0; trial < params.Trials; trial++ {
		i := rng.Intn(len(bandPts))
		j := rng.Intn(len(bandPts))
		if i == j {
			continue
		}
		p, q := bandPts[i], bandPts[j]
		dx := q.X - p.X
		if math.Abs(dx) < minSep {
			continue
		}
		slope := (q.Y - p.Y) / dx
		if math.Abs(slope) > maxSlope {
			continue
		}
		intercept := p.Y - slope*p.X
		norm := math.Sqrt(slope*slope + 1)

		var inliers []imaging.Point
		var sumDist float64
		for _, r := range bandPts {
			d := math.Abs(slope*r.X-r.Y+intercept) / norm
			if d <= params.InlierDistance {
				inliers = append(inliers, r)
				sumDist += d
			}
		}
		if len(inliers) == 0 {
			continue
		}
		score := float64(len(inliers)) - params.DistancePenalty*sumDist/float64(len(inliers))
		if score > bestScore {
			bestScore, bestInliers = score, inliers
		}
	}

	if len(bestInliers) < params.MinInliers {
		return flat()
	}

	xs, ys := splitXY(bestInliers)
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) || math.Abs(slope) > maxSlope {
		return flat()
	}

	norm := math.Sqrt(slope*slope + 1)
	var ss float64
	for _, p := range bestInliers {
		d := (slope*p.X - p.Y + intercept) / norm
		ss += d * d
	}

	return Baseline{
		Slope:     slope,
		Intercept: intercept,
		AngleDeg:  math.Atan(slope) * 180 / math.Pi,
		RMS:       math.Sqrt(ss / float64(len(bestInliers))),
		Inliers:   len(bestInliers),
	}
}

func flatBaseline(band []imaging.Point, y, inlierDistance float64) Baseline {
	var ss float64
	inliers := 0
	for _, p := range band {
		d := p.Y - y
		ss += d * d
		if math.Abs(d) <= inlierDistance {
			inliers++
		}
	}
	rms := 0.0
	if len(band) > 0 {
		rms = math.Sqrt(ss / float64(len(band)))
	}
	return Baseline{
		Intercept: y,
		RMS:       rms,
		Inliers:   inliers,
		Fallback:  true,
	}
}
