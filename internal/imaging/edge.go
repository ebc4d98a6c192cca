package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// minSubPixelEdges is the point count below which the detector falls back to
// plain Sobel-threshold edges.
const minSubPixelEdges = 40

// EdgeOptions configures DetectSubPixelEdges.
type EdgeOptions struct {
	// Low and High are hysteresis bounds on Sobel gradient magnitude, in
	// intensity units of the 0-255 scale.
	Low  float64
	High float64

	// Sigma is the Gaussian pre-blur in pixels. Zero disables blurring.
	Sigma float64
}

// DefaultEdgeOptions returns thresholds tuned for backlit silhouettes.
func DefaultEdgeOptions() EdgeOptions {
	return EdgeOptions{Low: 20, High: 45, Sigma: 1.2}
}

// EdgeResult is the output of DetectSubPixelEdges.
type EdgeResult struct {
	// Points is the unordered edge set.
	Points []Point

	// Fallback is true when too few sub-pixel edges were found and Points holds
	// integer Sobel-threshold edges instead.
	Fallback bool

	Width  int
	Height int
}

// DetectSubPixelEdges extracts edge points with sub-pixel precision.
//
// # Algorithm
//
//  1. Separable Gaussian blur with border-clamped convolution.
//
//  2. Sobel gradients Gx, Gy and magnitude sqrt(Gx² + Gy²).
//
//  3. For each interior pixel with magnitude above opts.Low, quantize the
//     gradient direction to one of four axes and keep the pixel only if it is
//     a local maximum against its two neighbors along that axis.
//
//  4. Fit a parabola through the three magnitudes along the axis; its vertex
//     gives an offset in [-0.5, 0.5] neighbor steps.
//
//  5. Hysteresis: accept when the pixel or any 8-neighbor exceeds opts.High.
//
// When fewer than 40 points survive, the detector returns every interior pixel
// whose magnitude exceeds opts.Low at integer precision and sets Fallback.
//
// The grid must already be validated.
func DetectSubPixelEdges(g *IntensityGrid, opts EdgeOptions) EdgeResult {
	width, height := g.Width, g.Height
	result := EdgeResult{Width: width, Height: height}
	if width < minGridSide || height < minGridSide {
		return result
	}

	src := make([]float64, width*height)
	for i, v := range g.Pix {
		src[i] = float64(v)
	}

	blurred := gaussianBlur(src, width, height, opts.Sigma)
	mag, gx, gy := sobel(blurred, width, height)

	points := make([]Point, 0, width+height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			m := mag[i]
			if m <= opts.Low {
				continue
			}

			dx, dy := quantizeDirection(gx[i], gy[i])
			mPlus := mag[(y+dy)*width+x+dx]
			mMinus := mag[(y-dy)*width+x-dx]
			if !(m > mMinus && m >= mPlus) {
				continue
			}

			if !hasStrongSupport(mag, width, x, y, opts.High) {
				continue
			}

			offset := parabolicOffset(mMinus, m, mPlus)
			points = append(points, Point{
				X: float64(x) + offset*float64(dx),
				Y: float64(y) + offset*float64(dy),
			})
		}
	}

	if len(points) >= minSubPixelEdges {
		result.Points = points
		return result
	}

	result.Fallback = true
	result.Points = thresholdEdges(mag, width, height, opts.Low)
	return result
}

// quantizeDirection maps a gradient to the neighbor step along one of the
// four principal axes. Y grows downward, so a 45 degree gradient points to
// (x+1, y+1).
func quantizeDirection(gx, gy float64) (int, int) {
	angle := math.Atan2(gy, gx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 1, 0
	case angle < 67.5:
		return 1, 1
	case angle < 112.5:
		return 0, 1
	default:
		return -1, 1
	}
}

// parabolicOffset returns the vertex of the parabola through (-1, a), (0, b),
// (1, c), clamped to [-0.5, 0.5].
func parabolicOffset(a, b, c float64) float64 {
	denom := a - 2*b + c
	if denom == 0 {
		return 0
	}
	return clampFloat((a-c)/(2*denom), -0.5, 0.5)
}

func hasStrongSupport(mag []float64, width, x, y int, high float64) bool {
	for ky := -1; ky <= 1; ky++ {
		row := (y + ky) * width
		for kx := -1; kx <= 1; kx++ {
			if mag[row+x+kx] > high {
				return true
			}
		}
	}
	return false
}

func thresholdEdges(mag []float64, width, height int, low float64) []Point {
	var points []Point
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			if mag[y*width+x] > low {
				points = append(points, Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	return points
}

// gaussianKernel returns normalized weights for radius ceil(3*sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianBlur applies a separable Gaussian blur. Border pixels use clamped
// (replicated) edge values so the image boundary does not darken.
// Rows are processed in parallel.
func gaussianBlur(src []float64, width, height int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	tmp := make([]float64, len(src))
	out := make([]float64, len(src))

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * width
			for x := 0; x < width; x++ {
				var sum float64
				for k := -radius; k <= radius; k++ {
					sum += src[row+clamp(x+k, 0, width-1)] * kernel[k+radius]
				}
				tmp[row+x] = sum
			}
		}
	})

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				var sum float64
				for k := -radius; k <= radius; k++ {
					sum += tmp[clamp(y+k, 0, height-1)*width+x] * kernel[k+radius]
				}
				out[y*width+x] = sum
			}
		}
	})

	return out
}

// sobel computes gradient magnitude and components. Border pixels are left 0.
func sobel(src []float64, width, height int) (mag, gx, gy []float64) {
	mag = make([]float64, len(src))
	gx = make([]float64, len(src))
	gy = make([]float64, len(src))

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			if y == 0 || y == height-1 {
				continue
			}
			up, row, down := (y-1)*width, y*width, (y+1)*width
			for x := 1; x < width-1; x++ {
				sx := (src[up+x+1] + 2*src[row+x+1] + src[down+x+1]) -
					(src[up+x-1] + 2*src[row+x-1] + src[down+x-1])
				sy := (src[down+x-1] + 2*src[down+x] + src[down+x+1]) -
					(src[up+x-1] + 2*src[up+x] + src[up+x+1])
				i := row + x
				gx[i] = sx
				gy[i] = sy
				mag[i] = math.Hypot(sx, sy)
			}
		}
	})

	return mag, gx, gy
}

// EdgeImageResult is an edge set rendered as a base64 PNG.
//
// White pixels (255) mark detected edges on a black background.
type EdgeImageResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// RenderEdges rasterizes points (rounded to the nearest pixel) into a PNG.
func RenderEdges(points []Point, width, height int) (*EdgeImageResult, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for _, p := range points {
		x, y := int(math.Round(p.X)), int(math.Round(p.Y))
		if x < 0 || y < 0 || x >= width || y >= height {
			continue
		}
		img.SetGray(x, y, color.Gray{Y: 255})
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode edge image: %w", err)
	}

	return &EdgeImageResult{
		Width:       width,
		Height:      height,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}
