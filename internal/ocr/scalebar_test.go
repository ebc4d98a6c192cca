package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawText draws text on an image using basicfont
func drawText(img draw.Image, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func fill(img draw.Image, r image.Rectangle, col color.Color) {
	draw.Draw(img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// scaleBarImage returns a 400x300 frame with a 100x4 px bar at x 250..349,
// y 285..288 and the label drawn above it.
func scaleBarImage(label string, bg, fg color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	fill(img, img.Bounds(), bg)
	fill(img, image.Rect(250, 285, 350, 289), fg)
	drawText(img, 262, 278, label, fg)
	return img
}

type fakeRecognizer struct {
	rec  Recognition
	err  error
	seen image.Rectangle
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	f.seen = img.Bounds()
	return f.rec, f.err
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		text   string
		value  float64
		unit   string
		meters float64
	}{
		{"500 µm", 500, "um", 500e-6},
		{"500 μm", 500, "um", 500e-6},
		{"200um", 200, "um", 200e-6},
		{"Scale: 1 mm", 1, "mm", 1e-3},
		{"0,5 mm", 0.5, "mm", 0.5e-3},
		{"2.5 MM", 2.5, "mm", 2.5e-3},
		{"100 nm", 100, "nm", 100e-9},
		{"1 cm", 1, "cm", 1e-2},
		{"x 0 um 50 um", 50, "um", 50e-6},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseLabel(tt.text)
			if err != nil {
				t.Fatalf("ParseLabel(%q) failed: %v", tt.text, err)
			}
			if got.Value != tt.value || got.Unit != tt.unit {
				t.Errorf("got %v %s, want %v %s", got.Value, got.Unit, tt.value, tt.unit)
			}
			if math.Abs(got.Meters-tt.meters) > 1e-15 {
				t.Errorf("meters = %g, want %g", got.Meters, tt.meters)
			}
		})
	}

	for _, text := range []string{"", "scale", "500", "500 px"} {
		if _, err := ParseLabel(text); !errors.Is(err, ErrNoLabel) {
			t.Errorf("ParseLabel(%q) error = %v, want ErrNoLabel", text, err)
		}
	}
}

func TestFindBar(t *testing.T) {
	grid := func(img image.Image) *imaging.IntensityGrid {
		t.Helper()
		g, err := imaging.FromImage(img, imaging.IntensityLuma)
		if err != nil {
			t.Fatalf("FromImage failed: %v", err)
		}
		return g
	}

	t.Run("dark bar", func(t *testing.T) {
		bar, err := FindBar(grid(scaleBarImage("500 um", color.White, color.Black)), 20, 2)
		if err != nil {
			t.Fatalf("FindBar failed: %v", err)
		}
		if bar.X0 != 250 || bar.X1 != 349 || bar.Y != 285 || bar.Rows != 4 {
			t.Errorf("bar = %+v, want x 250..349 at y 285 with 4 rows", bar)
		}
		if bar.Length() != 100 || bar.Bright {
			t.Errorf("length %.0f bright %v, want 100 false", bar.Length(), bar.Bright)
		}
	})

	t.Run("bright bar", func(t *testing.T) {
		bar, err := FindBar(grid(scaleBarImage("500 um", color.Black, color.White)), 20, 2)
		if err != nil {
			t.Fatalf("FindBar failed: %v", err)
		}
		if !bar.Bright || bar.Length() != 100 {
			t.Errorf("bar = %+v, want a bright 100 px bar", bar)
		}
	})

	t.Run("thin line ignored", func(t *testing.T) {
		img := scaleBarImage("", color.White, color.Black)
		fill(img, image.Rect(0, 200, 400, 201), color.Black)
		bar, err := FindBar(grid(img), 20, 2)
		if err != nil {
			t.Fatalf("FindBar failed: %v", err)
		}
		if bar.Length() != 100 {
			t.Errorf("length = %.0f, want the 100 px bar over the one-row line", bar.Length())
		}
	})

	t.Run("no bar", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 100, 40))
		fill(img, img.Bounds(), color.White)
		drawText(img, 10, 25, "500 um", color.Black)
		if _, err := FindBar(grid(img), 20, 2); !errors.Is(err, ErrNoBar) {
			t.Errorf("error = %v, want ErrNoBar", err)
		}
	})
}

func TestReadScaleBar(t *testing.T) {
	ctx := context.Background()
	img := scaleBarImage("500 um", color.White, color.Black)

	t.Run("calibrates from bar and label", func(t *testing.T) {
		rec := &fakeRecognizer{rec: Recognition{
			Text:  "500 um",
			Words: []Word{{Text: "500", Confidence: 0.9}, {Text: "um", Confidence: 0.7}},
		}}
		sb, err := ReadScaleBar(ctx, img, rec, DefaultOptions())
		if err != nil {
			t.Fatalf("ReadScaleBar failed: %v", err)
		}
		if math.Abs(sb.MetersPerPixel-5e-6) > 1e-12 {
			t.Errorf("meters per pixel = %g, want 5e-6", sb.MetersPerPixel)
		}
		if math.Abs(sb.RelativeUncertainty-0.02) > 1e-12 {
			t.Errorf("relative uncertainty = %g, want 0.02", sb.RelativeUncertainty)
		}
		if math.Abs(sb.Confidence-0.8) > 1e-12 {
			t.Errorf("confidence = %g, want 0.8", sb.Confidence)
		}
		if rec.seen.Dx() != 1200 || rec.seen.Dy() != 135 {
			t.Errorf("recognizer saw %v, want the 3x band 1200x135", rec.seen)
		}

		cal := sb.Calibration()
		if cal.Source != CalibrationSource || cal.MetersPerPixel != sb.MetersPerPixel {
			t.Errorf("calibration = %+v", cal)
		}
	})

	t.Run("unreadable label", func(t *testing.T) {
		rec := &fakeRecognizer{rec: Recognition{Text: "5OO"}}
		if _, err := ReadScaleBar(ctx, img, rec, DefaultOptions()); !errors.Is(err, ErrNoLabel) {
			t.Errorf("error = %v, want ErrNoLabel", err)
		}
	})

	t.Run("recognizer failure", func(t *testing.T) {
		rec := &fakeRecognizer{err: ErrUnavailable}
		if _, err := ReadScaleBar(ctx, img, rec, DefaultOptions()); !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("bar outside the band", func(t *testing.T) {
		opts := DefaultOptions()
		opts.BandFraction = 0.03
		rec := &fakeRecognizer{rec: Recognition{Text: "500 um"}}
		if _, err := ReadScaleBar(ctx, img, rec, opts); !errors.Is(err, ErrNoBar) {
			t.Errorf("error = %v, want ErrNoBar", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		rec := &fakeRecognizer{rec: Recognition{Text: "500 um"}}
		if _, err := ReadScaleBar(canceled, img, rec, DefaultOptions()); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}
