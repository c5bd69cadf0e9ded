package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes text with a local Tesseract install via
// gosseract. A fresh client per call keeps the engine safe for
// concurrent jobs.
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine constructs a Tesseract-backed engine.
func NewTesseractEngine(languages []string) *TesseractEngine {
	return &TesseractEngine{languages: languages}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on a single page image.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
