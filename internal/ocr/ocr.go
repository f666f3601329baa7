package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ErrEmptyImage is returned for a recognition request without bytes.
var ErrEmptyImage = errors.New("ocr: empty image")

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for uniform block of text
	OEM           int // 1 = LSTM; leave 0 to use default

	HeicConverter       string // "magick" | "heif-convert" | "sips"
	EnableTSVConfidence bool

	// Preprocess converts decodable images to grayscale PNG before recognition.
	Preprocess bool
	// MaxWidth downsizes wider images during preprocessing; 0 keeps the size.
	MaxWidth int
}

// Result is the outcome of recognizing one image.
type Result struct {
	Text       string
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// Engine hands out recognition sessions. A session is acquired once per batch.
type Engine interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session recognizes images until closed. Recognize may be called concurrently.
type Session interface {
	Recognize(ctx context.Context, data []byte, mediaType string) (Result, error)
	Close() error
}

// Tesseract is an Engine backed by the tesseract CLI.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Tesseract)

// WithRunner replaces the command runner, mostly for tests.
func WithRunner(r Runner) Option {
	return func(t *Tesseract) { t.runner = r }
}

func NewTesseract(cfg Config, logger *slog.Logger, opts ...Option) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	t := &Tesseract{cfg: cfg, runner: ExecRunner{}, logger: logger}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Acquire prepares a private working directory for one batch.
func (t *Tesseract) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := t.runner.(ExecRunner); ok {
		if _, err := exec.LookPath(t.cfg.Tesseract); err != nil {
			return nil, fmt.Errorf("ocr: tesseract not available: %w", err)
		}
	}
	dir, err := os.MkdirTemp("", "bp-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("ocr: create work dir: %w", err)
	}
	t.logger.Debug("ocr.session.acquired", "work_dir", dir)
	return &session{engine: t, dir: dir}, nil
}
