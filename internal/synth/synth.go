// Package synth renders synthetic sessile-drop silhouettes with a known
// contact angle. The self-test command and the pipeline tests use it as
// ground truth.
package synth

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/noise"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

// supersample is the per-axis sample count for anti-aliasing.
const supersample = 4

// Rect is an axis-aligned dark block, used to draw frame artifacts.
// Min is inclusive, Max exclusive, in pixels.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Scene describes a backlit droplet resting on a substrate.
//
// The drop is a spherical cap whose contact circle is centered at
// (CenterX, SubstrateY). Both drop and substrate are drawn dark on a bright
// background.
type Scene struct {
	Width  int
	Height int

	CenterX    float64
	SubstrateY float64
	BaseRadius float64
	AngleDeg   float64

	// TiltDeg rotates substrate and drop together about the contact center.
	TiltDeg float64

	Bright uint8
	Dark   uint8

	// Blocks are extra dark rectangles, such as frame lines.
	Blocks []Rect

	// NoiseAmplitude adds monochrome noise of at most this many intensity
	// levels.
	NoiseAmplitude float64
}

// CleanDrop returns a centered drop with the given contact angle and base
// radius on a 400x300 frame.
func CleanDrop(angleDeg, baseRadius float64) Scene {
	return Scene{
		Width:      400,
		Height:     300,
		CenterX:    200,
		SubstrateY: 220,
		BaseRadius: baseRadius,
		AngleDeg:   angleDeg,
		Bright:     235,
		Dark:       25,
	}
}

// WithFrameBorder adds a full-width dark bar hugging the top of the frame,
// as left by a misaligned camera housing.
func (s Scene) WithFrameBorder() Scene {
	s.Blocks = append(s.Blocks, Rect{MinX: 0, MinY: 4, MaxX: s.Width, MaxY: 8})
	return s
}

// CapRadius returns the radius of the sphere the cap is cut from.
func (s Scene) CapRadius() float64 {
	return s.BaseRadius / math.Sin(s.AngleDeg*math.Pi/180)
}

// CapHeight returns the apex height above the substrate.
func (s Scene) CapHeight() float64 {
	r := s.CapRadius()
	return r * (1 - math.Cos(s.AngleDeg*math.Pi/180))
}

// Render draws the scene as an intensity grid.
func (s Scene) Render() *imaging.IntensityGrid {
	g := imaging.NewIntensityGrid(s.Width, s.Height)

	theta := s.AngleDeg * math.Pi / 180
	r := s.CapRadius()
	centerV := r * math.Cos(theta)
	tilt := s.TiltDeg * math.Pi / 180
	cosT, sinT := math.Cos(tilt), math.Sin(tilt)

	dark := func(px, py float64) bool {
		for _, b := range s.Blocks {
			if px >= float64(b.MinX)-0.5 && px < float64(b.MaxX)-0.5 &&
				py >= float64(b.MinY)-0.5 && py < float64(b.MaxY)-0.5 {
				return true
			}
		}
		dx, dy := px-s.CenterX, py-s.SubstrateY
		u := dx*cosT + dy*sinT
		v := -dx*sinT + dy*cosT
		if v >= 0 {
			return true
		}
		return math.Hypot(u, v-centerV) <= r
	}

	step := 1.0 / supersample
	first := -0.5 + step/2
	span := float64(s.Bright) - float64(s.Dark)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			inside := 0
			for sy := 0; sy < supersample; sy++ {
				for sx := 0; sx < supersample; sx++ {
					if dark(float64(x)+first+float64(sx)*step, float64(y)+first+float64(sy)*step) {
						inside++
					}
				}
			}
			frac := float64(inside) / (supersample * supersample)
			g.Pix[y*s.Width+x] = uint8(math.Round(float64(s.Bright) - span*frac))
		}
	}

	if s.NoiseAmplitude > 0 {
		addNoise(g, s.NoiseAmplitude)
	}
	return g
}

// Image renders the scene as an *image.Gray.
func (s Scene) Image() image.Image {
	return s.Render().ToImage()
}

func addNoise(g *imaging.IntensityGrid, amplitude float64) {
	n := noise.Generate(g.Width, g.Height, &noise.Options{NoiseFn: noise.Gaussian, Monochrome: true})
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			sample := float64(n.Pix[y*n.Stride+x*4])
			v := float64(g.Pix[y*g.Width+x]) + (sample-128)/128*amplitude
			g.Pix[y*g.Width+x] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
}
