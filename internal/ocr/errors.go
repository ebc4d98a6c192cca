package ocr

import "errors"

var (
	// ErrUnavailable is returned when the binary was built without Tesseract.
	ErrUnavailable = errors.New("tesseract OCR is not available in this build")

	// ErrNoLabel is returned when no length with a unit was recognized.
	ErrNoLabel = errors.New("no scale-bar label found")

	// ErrNoBar is returned when the band holds no horizontal bar.
	ErrNoBar = errors.New("no scale bar found")
)
