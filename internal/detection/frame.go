package detection

import (
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

// Frame is the rigid transform from image coordinates to the baseline frame.
//
// The origin is the baseline point below the image's horizontal center and
// the x-axis runs along the baseline. Points above the substrate get y < 0.
type Frame struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Cos     float64 `json:"cos"`
	Sin     float64 `json:"sin"`
}

// NewFrame builds the baseline frame for an image of the given width.
func NewFrame(b Baseline, imageWidth int) Frame {
	ox := float64(imageWidth) / 2
	theta := math.Atan(b.Slope)
	return Frame{
		OriginX: ox,
		OriginY: b.YAt(ox),
		Cos:     math.Cos(theta),
		Sin:     math.Sin(theta),
	}
}

// ToBaseline maps an image point into the baseline frame.
func (f Frame) ToBaseline(p imaging.Point) imaging.Point {
	dx, dy := p.X-f.OriginX, p.Y-f.OriginY
	return imaging.Point{
		X: dx*f.Cos + dy*f.Sin,
		Y: -dx*f.Sin + dy*f.Cos,
	}
}

// FromBaseline maps a baseline-frame point back to image coordinates.
func (f Frame) FromBaseline(p imaging.Point) imaging.Point {
	return imaging.Point{
		X: f.OriginX + p.X*f.Cos - p.Y*f.Sin,
		Y: f.OriginY + p.X*f.Sin + p.Y*f.Cos,
	}
}

// Align maps every point into the baseline frame. The input is not modified.
func (f Frame) Align(points []imaging.Point) []imaging.Point {
	out := make([]imaging.Point, len(points))
	for i, p := range points {
		out[i] = f.ToBaseline(p)
	}
	return out
}

// Unalign maps baseline-frame points back to image coordinates.
func (f Frame) Unalign(points []imaging.Point) []imaging.Point {
	out := make([]imaging.Point, len(points))
	for i, p := range points {
		out[i] = f.FromBaseline(p)
	}
	return out
}
