package detection

import (
	"fmt"
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

// IsolationParams configures IsolateDroplet.
type IsolationParams struct {
	// AboveThreshold keeps aligned points with y < -AboveThreshold.
	AboveThreshold float64

	// Below PassthroughPoints above-baseline points no clustering is done.
	PassthroughPoints int

	LinkRadius float64
	MinPoints  int

	// NearBaseline counts a point as flank support when y > -NearBaseline.
	NearBaseline float64

	// MinFlankSupport near-baseline points are required on each side of the
	// apex for the winning arc to be used.
	MinFlankSupport int

	// MinIsolated is the smallest point set the pipeline can fit.
	MinIsolated int

	WidthOnset float64

	SizeWeight      float64
	HeightWeight    float64
	NearBaseWeight  float64
	CenterWeight    float64
	WidthWeight     float64
	FlankPenalty    float64
	ImbalanceWeight float64
}

// DefaultIsolationParams returns the calibrated arc score.
func DefaultIsolationParams() IsolationParams {
	return IsolationParams{
		AboveThreshold:    0.8,
		PassthroughPoints: 20,
		LinkRadius:        4.8,
		MinPoints:         14,
		NearBaseline:      10,
		MinFlankSupport:   2,
		MinIsolated:       24,
		WidthOnset:        0.85,
		SizeWeight:        1,
		HeightWeight:      6,
		NearBaseWeight:    1.8,
		CenterWeight:      35,
		WidthWeight:       120,
		FlankPenalty:      400,
		ImbalanceWeight:   25,
	}
}

// Isolation is the droplet arc in the baseline frame.
type Isolation struct {
	// Points are above-baseline aligned points belonging to the droplet.
	Points []imaging.Point

	// Above is every aligned point above the baseline, before clustering.
	Above []imaging.Point

	Candidates int

	// Fallback is true when no candidate arc passed the flank check and the
	// full above-baseline set was used.
	Fallback bool
}

// IsolateDroplet segments the aligned contour into arcs and returns the one
// that looks like a complete droplet.
//
// Each candidate arc is scored as
//
//	size + 6·height + 1.8·nearBaseline − 35·centerPenalty
//	     − 120·widthPenalty − flankPenalty − 25·flankImbalance
//
// where flankPenalty applies when either side of the apex has no near-baseline
// support. The winner must keep at least two near-baseline points on each
// side, otherwise every above-baseline point is used.
//
// Returns an error wrapping ErrIsolation when fewer than MinIsolated points
// remain.
func IsolateDroplet(aligned []imaging.Point, params IsolationParams) (Isolation, error) {
	var above []imaging.Point
	for _, p := range aligned {
		if p.Y < -params.AboveThreshold {
			above = append(above, p)
		}
	}

	iso := Isolation{Points: above, Above: above}
	if len(above) >= params.PassthroughPoints {
		iso = isolateArc(aligned, above, params)
	}

	if len(iso.Points) < params.MinIsolated {
		return iso, fmt.Errorf("%w: %d points above baseline, need %d", ErrIsolation, len(iso.Points), params.MinIsolated)
	}
	return iso, nil
}

func isolateArc(aligned, above []imaging.Point, params IsolationParams) Isolation {
	full := boundsOf(aligned)
	fullCenter := (full.MinX + full.MaxX) / 2
	fullWidth := math.Max(full.Width(), 1)

	var (
		best       []imaging.Point
		bestScore  = math.Inf(-1)
		candidates int
	)
	for _, idx := range clusterPoints(above, params.LinkRadius) {
		if len(idx) < params.MinPoints {
			continue
		}
		candidates++
		pts := gather(above, idx)
		b := boundsOf(pts)
		left, right := flankSupport(pts, params.NearBaseline)

		centroid := 0.0
		for _, p := range pts {
			centroid += p.X
		}
		centroid /= float64(len(pts))

		centerPenalty := math.Abs(centroid-fullCenter) / (fullWidth / 2)
		widthPenalty := clampFloat((b.Width()/fullWidth-params.WidthOnset)/(1-params.WidthOnset), 0, 1)
		flank := 0.0
		if left == 0 || right == 0 {
			flank = params.FlankPenalty
		}
		imbalance := 0.0
		if left+right > 0 {
			imbalance = math.Abs(float64(left-right)) / float64(left+right)
		}

		score := params.SizeWeight*float64(len(pts)) +
			params.HeightWeight*b.Height() +
			params.NearBaseWeight*float64(left+right) -
			params.CenterWeight*centerPenalty -
			params.WidthWeight*widthPenalty -
			flank -
			params.ImbalanceWeight*imbalance

		if score > bestScore {
			best, bestScore = pts, score
		}
	}

	iso := Isolation{Points: above, Above: above, Candidates: candidates, Fallback: true}
	if best == nil {
		return iso
	}
	left, right := flankSupport(best, params.NearBaseline)
	if left < params.MinFlankSupport || right < params.MinFlankSupport {
		return iso
	}
	iso.Points = best
	iso.Fallback = false
	return iso
}

// flankSupport counts near-baseline points left and right of the apex.
func flankSupport(pts []imaging.Point, nearBaseline float64) (left, right int) {
	apex := apexOf(pts)
	for _, p := range pts {
		if p.Y <= -nearBaseline {
			continue
		}
		switch {
		case p.X < apex.X:
			left++
		case p.X > apex.X:
			right++
		}
	}
	return left, right
}

// apexOf returns the point with minimum y (the droplet top in the aligned
// frame).
func apexOf(pts []imaging.Point) imaging.Point {
	apex := pts[0]
	for _, p := range pts[1:] {
		if p.Y < apex.Y {
			apex = p
		}
	}
	return apex
}
