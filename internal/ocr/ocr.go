// Package ocr extracts the text of the first page of a PDF guide.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/guias-cli/internal/config"
)

// Extractor returns the text of a PDF's first page.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath, cfg.Layout, timeout), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel, timeout, cfg.RatePerSec), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
