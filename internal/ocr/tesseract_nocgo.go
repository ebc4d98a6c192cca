//go:build !cgo

package ocr

import (
	"context"
	"image"
)

// Tesseract is a placeholder in builds without cgo; Recognize always fails.
type Tesseract struct {
	Language    string
	TessdataDir string
}

// NewTesseract returns a recognizer that reports ErrUnavailable.
func NewTesseract(language, tessdataDir string) *Tesseract {
	return &Tesseract{Language: language, TessdataDir: tessdataDir}
}

// Available reports whether Tesseract was compiled in.
func Available() bool { return false }

// Version is empty without Tesseract.
func Version() string { return "" }

// Recognize always returns ErrUnavailable.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	return Recognition{}, ErrUnavailable
}
