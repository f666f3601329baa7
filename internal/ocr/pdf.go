package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// PDFText extracts the embedded text layer of PDFs with pdftotext.
type PDFText struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPDFText(bin string, runner Runner, logger *slog.Logger) *PDFText {
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFText{bin: bin, runner: runner, logger: logger}
}

// Extract returns the normalized text of a PDF document.
func (p *PDFText) Extract(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "bp-pdf-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}()

	in := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", err
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.bin, p.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", in, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	return Normalize(string(out)), nil
}
