package measure

import (
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/detection"
	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

const (
	tangentLength = 40
	curveSamples  = 96
)

// Segment is a line segment in image coordinates.
type Segment struct {
	From imaging.Point `json:"from"`
	To   imaging.Point `json:"to"`
}

// Overlay is drawing data for an external renderer, in image coordinates.
type Overlay struct {
	ContourPoints []imaging.Point `json:"contour_points"`
	BaselineLine  Segment         `json:"baseline_line"`
	ContactPoints []imaging.Point `json:"contact_points"`

	// FittedCurves holds one or more polylines per valid method.
	FittedCurves    map[fitting.Method][][]imaging.Point `json:"fitted_curves"`
	TangentSegments []Segment                            `json:"tangent_segments"`
}

// BuildOverlay maps the fitted geometry back to image coordinates. Curves are
// drawn only for valid methods.
func BuildOverlay(frame detection.Frame, baseline detection.Baseline, imageWidth int,
	contour []imaging.Point, contacts detection.Contacts, fits Fits, results []MethodResult, ens Ensemble,
) Overlay {
	w := float64(imageWidth - 1)
	o := Overlay{
		ContourPoints: contour,
		BaselineLine: Segment{
			From: imaging.Point{X: 0, Y: baseline.YAt(0)},
			To:   imaging.Point{X: w, Y: baseline.YAt(w)},
		},
		FittedCurves: make(map[fitting.Method][][]imaging.Point),
	}

	left := imaging.Point{X: contacts.LeftX}
	right := imaging.Point{X: contacts.RightX}
	o.ContactPoints = []imaging.Point{frame.FromBaseline(left), frame.FromBaseline(right)}

	for _, r := range results {
		if !r.Valid {
			continue
		}
		var curves [][]imaging.Point
		switch r.Method {
		case fitting.MethodCircle:
			curves = [][]imaging.Point{fits.Circle.Sample(curveSamples)}
		case fitting.MethodEllipse:
			curves = [][]imaging.Point{fits.Ellipse.Sample(curveSamples)}
		case fitting.MethodPolynomial:
			curves = [][]imaging.Point{
				fits.Polynomial.Left.Sample(curveSamples / 4),
				fits.Polynomial.Right.Sample(curveSamples / 4),
			}
		case fitting.MethodYoungLaplace:
			curves = [][]imaging.Point{fits.YoungLaplace.Sample(curveSamples)}
		}
		for i, c := range curves {
			curves[i] = frame.Unalign(c)
		}
		o.FittedCurves[r.Method] = curves
	}

	o.TangentSegments = []Segment{
		tangent(frame, left, ens.AngleLeftDeg, fitting.Left),
		tangent(frame, right, ens.AngleRightDeg, fitting.Right),
	}
	return o
}

// tangent returns a segment from the contact up along the drop surface at
// the given contact angle.
func tangent(frame detection.Frame, contact imaging.Point, angleDeg float64, side fitting.Side) Segment {
	rad := angleDeg * math.Pi / 180
	dx := math.Cos(rad)
	if side == fitting.Right {
		dx = -dx
	}
	end := imaging.Point{
		X: contact.X + tangentLength*dx,
		Y: contact.Y - tangentLength*math.Sin(rad),
	}
	return Segment{From: frame.FromBaseline(contact), To: frame.FromBaseline(end)}
}
