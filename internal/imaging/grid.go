package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// IntensityMode selects how color pixels collapse to one intensity channel.
type IntensityMode string

const (
	// IntensityLuma uses ITU-R BT.601 luminance weights.
	IntensityLuma IntensityMode = "luma"

	// IntensityLab uses CIE L* lightness, which tracks perceived brightness
	// better on tinted backlights.
	IntensityLab IntensityMode = "lab"
)

// minGridSide is the smallest width or height the edge detector can work on.
const minGridSide = 3

// IntensityGrid is a row-major 8-bit intensity buffer.
//
// Pix[y*Width+x] holds the intensity of the pixel at (x, y).
type IntensityGrid struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewIntensityGrid allocates a zeroed grid.
func NewIntensityGrid(width, height int) *IntensityGrid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &IntensityGrid{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// Validate checks that the buffer matches the declared dimensions.
//
// Returns an error wrapping ErrInvalidGrid when the grid is nil, smaller than
// 3x3 or when len(Pix) != Width*Height.
func (g *IntensityGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrInvalidGrid)
	}
	if g.Width < minGridSide || g.Height < minGridSide {
		return fmt.Errorf("%w: %dx%d is smaller than %dx%d", ErrInvalidGrid, g.Width, g.Height, minGridSide, minGridSide)
	}
	if len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("%w: buffer holds %d values, want %d", ErrInvalidGrid, len(g.Pix), g.Width*g.Height)
	}
	return nil
}

// At returns the intensity at (x, y). Coordinates are clamped to the grid.
func (g *IntensityGrid) At(x, y int) uint8 {
	x = clamp(x, 0, g.Width-1)
	y = clamp(y, 0, g.Height-1)
	return g.Pix[y*g.Width+x]
}

// Set writes the intensity at (x, y). Out-of-range writes are ignored.
func (g *IntensityGrid) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// Mean returns the average intensity over the whole grid.
func (g *IntensityGrid) Mean() float64 {
	if len(g.Pix) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range g.Pix {
		sum += uint64(v)
	}
	return float64(sum) / float64(len(g.Pix))
}

// Clone returns a deep copy of the grid.
func (g *IntensityGrid) Clone() *IntensityGrid {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &IntensityGrid{Width: g.Width, Height: g.Height, Pix: pix}
}

// ToImage returns the grid as an *image.Gray.
func (g *IntensityGrid) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	copy(img.Pix, g.Pix)
	return img
}

// FromImage converts any image to an IntensityGrid.
//
// Parameters:
//   - img: Source image, any color model.
//   - mode: IntensityLuma or IntensityLab. The empty string means luma.
//
// Returns an error wrapping ErrUnknownIntensityMode for other modes.
//
// # Conversion
//
// Luma mode uses imaging.Grayscale (BT.601 weights). Lab mode converts each
// pixel through go-colorful and scales L* from [0,1] to [0,255]. Fully
// transparent pixels map to 0 in lab mode.
func FromImage(img image.Image, mode IntensityMode) (*IntensityGrid, error) {
	bounds := img.Bounds()
	grid := NewIntensityGrid(bounds.Dx(), bounds.Dy())

	switch mode {
	case IntensityLuma, "":
		gray := imaging.Grayscale(img)
		for y := 0; y < grid.Height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+grid.Width*4]
			for x := 0; x < grid.Width; x++ {
				grid.Pix[y*grid.Width+x] = row[x*4]
			}
		}
	case IntensityLab:
		for y := 0; y < grid.Height; y++ {
			for x := 0; x < grid.Width; x++ {
				c, ok := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
				if !ok {
					continue
				}
				l, _, _ := c.Lab()
				grid.Pix[y*grid.Width+x] = uint8(clampFloat(l*255+0.5, 0, 255))
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntensityMode, mode)
	}

	return grid, nil
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func clampFloat(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
