//go:build cgo

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// labelCharacters limits recognition to what a length caption can hold.
const labelCharacters = "0123456789.,numcµμ "

// Tesseract recognizes text with the native Tesseract engine.
type Tesseract struct {
	Language string

	// TessdataDir overrides the training data location when set.
	TessdataDir string
}

// NewTesseract returns a recognizer for language, "eng" when empty.
func NewTesseract(language, tessdataDir string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language, TessdataDir: tessdataDir}
}

// Available reports whether Tesseract was compiled in.
func Available() bool { return true }

// Version returns the Tesseract library version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Recognize reads the text of img as a single block. Word boxes are returned
// when Tesseract provides them.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Recognition{}, fmt.Errorf("encode band: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.TessdataDir); err != nil {
			return Recognition{}, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(t.Language); err != nil {
		return Recognition{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return Recognition{}, fmt.Errorf("failed to set page mode: %w", err)
	}
	if err := client.SetWhitelist(labelCharacters); err != nil {
		return Recognition{}, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Recognition{}, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("OCR failed: %w", err)
	}
	rec := Recognition{Text: strings.TrimSpace(text)}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text alone is enough to parse the label.
		return rec, nil
	}
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		rec.Words = append(rec.Words, Word{
			Text:       box.Word,
			Confidence: box.Confidence / 100,
			Bounds:     box.Box,
		})
	}
	return rec, nil
}
