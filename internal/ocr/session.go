package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/billing-parser/constants"
)

type session struct {
	engine *Tesseract
	dir    string
	seq    atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func (s *session) Recognize(ctx context.Context, data []byte, mediaType string) (Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cfg := s.engine.cfg
	logger := s.engine.logger
	n := s.seq.Add(1)
	path := filepath.Join(s.dir, "img-"+strconv.FormatInt(n, 10)+extForMediaType(mediaType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Result{}, fmt.Errorf("ocr: stage image: %w", err)
	}

	var warns []string
	if mediaType == constants.MediaTypeHEIC {
		out, w, err := convertHEICtoPNG(ctx, s.engine.runner, logger, cfg.HeicConverter, path)
		warns = append(warns, w...)
		if err != nil {
			logger.Error("heic conversion failed", "path", path, "error", err)
			return Result{Warnings: warns}, err
		}
		path = out
	}

	if cfg.Preprocess {
		if out, err := preprocess(path, cfg.MaxWidth); err != nil {
			warns = append(warns, "preprocess skipped: "+err.Error())
		} else {
			path = out
		}
	}

	txt, w, err := s.tesseractOCR(ctx, path)
	warns = append(warns, w...)
	if err != nil {
		return Result{Warnings: warns, Duration: time.Since(start)}, err
	}
	txt = Normalize(txt)

	var engineConf float32
	if cfg.EnableTSVConfidence {
		if c, err := s.tesseractTSVConfidence(ctx, path); err == nil {
			engineConf = c
		} else {
			warns = append(warns, err.Error())
		}
	}

	res := Result{
		Text:       txt,
		Language:   cfg.TesseractLang,
		Duration:   time.Since(start),
		Warnings:   warns,
		Confidence: blendConfidence(engineConf, heuristicConfidence(txt)),
	}
	logger.Debug("ocr.recognized",
		"media_type", mediaType,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Close removes the session's working directory. Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = os.RemoveAll(s.dir)
		s.engine.logger.Debug("ocr.session.released", "work_dir", s.dir, "error", s.closeErr)
	})
	return s.closeErr
}

func (s *session) baseArgs(path string) []string {
	cfg := s.engine.cfg
	args := []string{path, "stdout", "-l", cfg.TesseractLang}
	if cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(cfg.PSM))
	}
	if cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(cfg.OEM))
	}
	if cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", cfg.TessdataDir)
	}
	return args
}

func (s *session) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := s.engine.runner.Run(ctx, s.engine.cfg.Tesseract, s.engine.logger, s.baseArgs(path)...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

func (s *session) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	args := append(s.baseArgs(path), "tsv")
	out, _, err := s.engine.runner.Run(ctx, s.engine.cfg.Tesseract, s.engine.logger, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}
	return tsvMeanConfidence(string(out)), nil
}

func extForMediaType(mediaType string) string {
	switch mediaType {
	case constants.MediaTypePNG:
		return ".png"
	case constants.MediaTypeJPEG:
		return ".jpg"
	case constants.MediaTypeHEIC:
		return ".heic"
	case "image/tiff":
		return ".tif"
	case "image/bmp":
		return ".bmp"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".img"
}
