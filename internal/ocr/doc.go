// Package ocr reads a pixel scale from the scale bar that capture software
// stamps near the bottom of a drop image.
//
// ReadScaleBar crops the bottom band of the image, measures the longest
// horizontal bar in it and reads the label next to the bar (for example
// "500 µm") with a Recognizer. The label length over the bar length in pixels
// gives meters per pixel.
//
// # Prerequisites
//
// The Tesseract recognizer needs cgo and the Tesseract libraries:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Without cgo, NewTesseract returns a recognizer that always fails with
// ErrUnavailable. ParseLabel and FindBar work everywhere.
package ocr
