package detection

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

// ContactParams configures LocateContacts.
type ContactParams struct {
	// Band and RelaxedBand bound |y| for contact candidates; the relaxed band
	// is used when a side has fewer than MinCandidates points.
	Band          float64
	RelaxedBand   float64
	MinCandidates int

	// TopK candidates per side enter the weighted mean.
	TopK int

	// WeightOffset softens 1/|y| weighting near the baseline.
	WeightOffset float64

	MinSeparation float64

	// Vertical support: SupportCount points with y < -SupportDepth within
	// SupportRadius horizontally of each contact.
	SupportDepth  float64
	SupportRadius float64
	SupportCount  int

	// FallbackBand selects fallback points with -FallbackBand <= y < -AboveThreshold.
	FallbackBand   float64
	AboveThreshold float64
}

// DefaultContactParams returns the standard locator settings.
func DefaultContactParams() ContactParams {
	return ContactParams{
		Band:           6,
		RelaxedBand:    14,
		MinCandidates:  3,
		TopK:           8,
		WeightOffset:   0.35,
		MinSeparation:  6,
		SupportDepth:   7,
		SupportRadius:  8,
		SupportCount:   3,
		FallbackBand:   5,
		AboveThreshold: 0.8,
	}
}

// Contacts are the triple-line x positions in the baseline frame.
type Contacts struct {
	LeftX  float64 `json:"left_x"`
	RightX float64 `json:"right_x"`

	// LeftSupport and RightSupport count points backing each estimate.
	LeftSupport  int `json:"left_support"`
	RightSupport int `json:"right_support"`

	Fallback bool `json:"fallback"`
}

// Span returns RightX - LeftX.
func (c Contacts) Span() float64 { return c.RightX - c.LeftX }

// LocateContacts estimates where the droplet arc meets the baseline.
//
// Parameters:
//   - arc: Isolated droplet points in the baseline frame.
//   - full: Every aligned contour point, used by the fallback estimator.
//   - params: Bands, weights and validation thresholds.
//
// # Primary estimator
//
// The arc is split at its apex x. On each side, points with |y| <= 6 (14 when
// fewer than three qualify) are ranked by closeness to the baseline, then by
// distance from the apex. The top-ranked points contribute
// 1/(0.35+|y|)·(1 + (k−rank)/k) to a weighted mean of x.
//
// The pair is accepted when both values are finite, more than 6 px apart, and
// each has at least three arc points with y < -7 within 8 px horizontally.
//
// # Fallback estimator
//
// Among full-contour points with -5 <= y < -0.8, take the rightmost point
// left of the apex and the leftmost point right of it. Only finiteness and
// separation are checked.
//
// Returns an error wrapping ErrContactPoints when neither estimator succeeds.
func LocateContacts(arc, full []imaging.Point, params ContactParams) (Contacts, error) {
	if len(arc) == 0 {
		return Contacts{}, fmt.Errorf("%w: empty arc", ErrContactPoints)
	}
	apex := apexOf(arc)

	left := sideCandidates(arc, params, func(p imaging.Point) bool { return p.X < apex.X })
	right := sideCandidates(arc, params, func(p imaging.Point) bool { return p.X > apex.X })

	c := Contacts{
		LeftX:  weightedContact(left, apex.X, params),
		RightX: weightedContact(right, apex.X, params),
	}
	c.LeftSupport = verticalSupport(arc, c.LeftX, params)
	c.RightSupport = verticalSupport(arc, c.RightX, params)

	if separated(c, params) && c.LeftSupport >= params.SupportCount && c.RightSupport >= params.SupportCount {
		return c, nil
	}

	fb := Contacts{LeftX: math.NaN(), RightX: math.NaN(), Fallback: true}
	for _, p := range full {
		if p.Y < -params.FallbackBand || p.Y >= -params.AboveThreshold {
			continue
		}
		switch {
		case p.X < apex.X:
			if math.IsNaN(fb.LeftX) || p.X > fb.LeftX {
				fb.LeftX = p.X
			}
			fb.LeftSupport++
		case p.X > apex.X:
			if math.IsNaN(fb.RightX) || p.X < fb.RightX {
				fb.RightX = p.X
			}
			fb.RightSupport++
		}
	}

	if separated(fb, params) {
		return fb, nil
	}
	return fb, fmt.Errorf("%w: primary left=%.2f right=%.2f, fallback left=%.2f right=%.2f",
		ErrContactPoints, c.LeftX, c.RightX, fb.LeftX, fb.RightX)
}

func sideCandidates(arc []imaging.Point, params ContactParams, onSide func(imaging.Point) bool) []imaging.Point {
	pick := func(band float64) []imaging.Point {
		var out []imaging.Point
		for _, p := range arc {
			if onSide(p) && math.Abs(p.Y) <= band {
				out = append(out, p)
			}
		}
		return out
	}
	pts := pick(params.Band)
	if len(pts) < params.MinCandidates {
		pts = pick(params.RelaxedBand)
	}
	return pts
}

// weightedContact returns the weighted mean x of the best-ranked candidates,
// or NaN when there are none.
func weightedContact(cands []imaging.Point, apexX float64, params ContactParams) float64 {
	if len(cands) == 0 {
		return math.NaN()
	}
	ranked := make([]imaging.Point, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := math.Abs(ranked[i].Y), math.Abs(ranked[j].Y)
		if ai != aj {
			return ai < aj
		}
		return math.Abs(ranked[i].X-apexX) > math.Abs(ranked[j].X-apexX)
	})

	k := params.TopK
	if k > len(ranked) {
		k = len(ranked)
	}
	var sumW, sumWX float64
	for rank, p := range ranked[:k] {
		w := 1 / (params.WeightOffset + math.Abs(p.Y)) * (1 + float64(k-rank)/float64(k))
		sumW += w
		sumWX += w * p.X
	}
	return sumWX / sumW
}

func verticalSupport(arc []imaging.Point, x float64, params ContactParams) int {
	if math.IsNaN(x) {
		return 0
	}
	n := 0
	for _, p := range arc {
		if p.Y < -params.SupportDepth && math.Abs(p.X-x) <= params.SupportRadius {
			n++
		}
	}
	return n
}

func separated(c Contacts, params ContactParams) bool {
	if math.IsNaN(c.LeftX) || math.IsNaN(c.RightX) || math.IsInf(c.LeftX, 0) || math.IsInf(c.RightX, 0) {
		return false
	}
	return c.RightX > c.LeftX+params.MinSeparation
}
