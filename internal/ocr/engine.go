// Package ocr provides the optical text-recognition backends the
// pipeline delegates per-page extraction to.
package ocr

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured reports that no recognition backend could be
// acquired. The pipeline treats it as fatal for the whole job.
var ErrNotConfigured = errors.New("recognition backend is not configured")

// Engine converts one page image into text.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Config selects and parameterizes a recognition backend.
type Config struct {
	Provider  string
	Languages []string
	Google    GoogleConfig
}

// GoogleConfig holds Cloud Vision settings.
type GoogleConfig struct {
	APIKey   string
	Endpoint string
}

// NewEngine builds the configured engine. A missing key or an unknown
// provider wraps ErrNotConfigured so callers can classify the failure.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "google":
		if cfg.Google.APIKey == "" {
			return nil, fmt.Errorf("%w: google provider requires an API key", ErrNotConfigured)
		}
		return NewGoogleEngine(cfg.Google, cfg.Languages), nil
	case "tesseract":
		return NewTesseractEngine(cfg.Languages), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.Provider)
	}
}
