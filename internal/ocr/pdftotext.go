package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text using the pdftotext CLI tool (poppler).
type PdfToText struct {
	binPath string
	layout  bool
	timeout time.Duration
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used. A zero timeout means no limit beyond ctx.
func NewPdfToText(binPath string, layout bool, timeout time.Duration) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, layout: layout, timeout: timeout}
}

func (p *PdfToText) args(pdfPath string) []string {
	args := []string{"-f", "1", "-l", "1", "-enc", "UTF-8"}
	if p.layout {
		args = append(args, "-layout")
	}
	return append(args, pdfPath, "-")
}

// ExtractText runs pdftotext on the first page and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return stdout.String(), nil
}
