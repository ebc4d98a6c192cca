package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/internal/measure"
)

// CalibrationSource labels calibrations read from a scale bar.
const CalibrationSource = "scale_bar_ocr"

// Word is one recognized word with its confidence in [0, 1].
type Word struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Bounds     image.Rectangle `json:"bounds"`
}

// Recognition is the text found in an image.
type Recognition struct {
	Text  string `json:"text"`
	Words []Word `json:"words,omitempty"`
}

// Confidence is the mean word confidence, or 0 without words.
func (r Recognition) Confidence() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	var s float64
	for _, w := range r.Words {
		s += w.Confidence
	}
	return s / float64(len(r.Words))
}

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
}

// Options configures ReadScaleBar.
type Options struct {
	// BandFraction is the share of the image height searched, from the bottom.
	BandFraction float64

	// Upscale enlarges the band before recognition.
	Upscale float64

	MinBarLength int
	MinBarRows   int
}

// DefaultOptions searches the bottom 15% for a bar of at least 20 px.
func DefaultOptions() Options {
	return Options{
		BandFraction: 0.15,
		Upscale:      3,
		MinBarLength: 20,
		MinBarRows:   2,
	}
}

// ScaleBar is a calibration read from an image.
type ScaleBar struct {
	MetersPerPixel      float64 `json:"meters_per_pixel"`
	RelativeUncertainty float64 `json:"relative_uncertainty"`
	Label               Label   `json:"label"`
	Bar                 Bar     `json:"bar"`
	Confidence          float64 `json:"confidence"`
	Text                string  `json:"text"`
}

// Calibration converts the reading for the measurement pipeline.
func (s *ScaleBar) Calibration() *measure.Calibration {
	return &measure.Calibration{
		MetersPerPixel:      s.MetersPerPixel,
		RelativeUncertainty: s.RelativeUncertainty,
		Source:              CalibrationSource,
	}
}

// ReadScaleBar measures the scale bar in the bottom band of img and reads its
// label with rec.
//
// The relative uncertainty is one pixel at each bar end over the bar length.
//
// Returns an error wrapping ErrNoBar or ErrNoLabel when either part is
// missing, or the recognizer's error.
func ReadScaleBar(ctx context.Context, img image.Image, rec Recognizer, opts Options) (*ScaleBar, error) {
	band, err := imaging.CropBottomBand(img, opts.BandFraction, 1)
	if err != nil {
		return nil, err
	}
	grid, err := imaging.FromImage(band, imaging.IntensityLuma)
	if err != nil {
		return nil, err
	}
	bar, err := FindBar(grid, opts.MinBarLength, opts.MinBarRows)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := imaging.CropBottomBand(img, opts.BandFraction, opts.Upscale)
	if err != nil {
		return nil, err
	}
	found, err := rec.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("recognize scale-bar label: %w", err)
	}
	label, err := ParseLabel(found.Text)
	if err != nil {
		return nil, err
	}

	return &ScaleBar{
		MetersPerPixel:      label.Meters / bar.Length(),
		RelativeUncertainty: 2 / bar.Length(),
		Label:               label,
		Bar:                 bar,
		Confidence:          found.Confidence(),
		Text:                found.Text,
	}, nil
}
