package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropBottomBand extracts the bottom fraction of an image, where capture
// software usually stamps the scale bar, and upscales it for OCR.
//
// Parameters:
//   - img: Source image.
//   - fraction: Share of the image height to keep, in (0, 1].
//   - scale: Resize factor applied with a Lanczos filter. Values <= 0 or
//     exactly 1 leave the crop at native size.
//
// Returns an error if fraction is out of range or the band is empty.
func CropBottomBand(img image.Image, fraction, scale float64) (image.Image, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("band fraction %.3f outside (0, 1]", fraction)
	}

	bounds := img.Bounds()
	bandHeight := int(float64(bounds.Dy())*fraction + 0.5)
	if bandHeight < 1 || bounds.Dx() < 1 {
		return nil, fmt.Errorf("empty band for %dx%d image", bounds.Dx(), bounds.Dy())
	}

	band := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Max.Y-bandHeight, bounds.Max.X, bounds.Max.Y))

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(band.Bounds().Dx()) * scale)
		newHeight := int(float64(band.Bounds().Dy()) * scale)
		if newWidth > 0 && newHeight > 0 {
			band = imaging.Resize(band, newWidth, newHeight, imaging.Lanczos)
		}
	}

	return band, nil
}
