package ocr

import (
	"fmt"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
)

// Bar is a horizontal scale bar in band coordinates.
type Bar struct {
	X0     int  `json:"x0"`
	X1     int  `json:"x1"`
	Y      int  `json:"y"`
	Rows   int  `json:"rows"`
	Bright bool `json:"bright"`
}

// Length is the bar length in pixels, both end pixels included.
func (b Bar) Length() float64 { return float64(b.X1 - b.X0 + 1) }

// FindBar returns the longest horizontal run of foreground pixels that is at
// least minRows thick.
//
// Foreground is whichever side of the mid-gray threshold the band's
// background is not, so dark bars on bright frames and bright bars on dark
// frames are both found. Rows of one bar must start and end within
// one pixel of each other, which keeps glyph strokes from merging into it.
//
// Returns ErrNoBar when no run reaches minLength.
func FindBar(g *imaging.IntensityGrid, minLength, minRows int) (Bar, error) {
	if err := g.Validate(); err != nil {
		return Bar{}, err
	}

	lo, hi := g.Pix[0], g.Pix[0]
	for _, v := range g.Pix {
		lo, hi = min(lo, v), max(hi, v)
	}
	mid := (int(lo) + int(hi)) / 2
	bright := g.Mean() < float64(mid)
	fg := func(v uint8) bool {
		if bright {
			return int(v) > mid
		}
		return int(v) < mid
	}

	type run struct{ x0, x1 int }
	longest := make([]run, g.Height)
	for y := 0; y < g.Height; y++ {
		start := -1
		for x := 0; x <= g.Width; x++ {
			on := x < g.Width && fg(g.At(x, y))
			switch {
			case on && start < 0:
				start = x
			case !on && start >= 0:
				if x-start > longest[y].x1-longest[y].x0 {
					longest[y] = run{start, x}
				}
				start = -1
			}
		}
	}

	var best Bar
	for y := 0; y < g.Height; y++ {
		r := longest[y]
		if r.x1-r.x0 < minLength {
			continue
		}
		rows := 1
		for k := y + 1; k < g.Height; k++ {
			n := longest[k]
			if abs(n.x0-r.x0) > 1 || abs(n.x1-r.x1) > 1 {
				break
			}
			rows++
		}
		b := Bar{X0: r.x0, X1: r.x1 - 1, Y: y, Rows: rows, Bright: bright}
		if rows >= minRows && b.Length() > best.Length() {
			best = b
		}
	}
	if best.Rows == 0 {
		return Bar{}, fmt.Errorf("%w: no run of %d px over %d rows", ErrNoBar, minLength, minRows)
	}
	return best, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
