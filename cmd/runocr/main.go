package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
	"github.com/joseph-ayodele/billing-parser/internal/ingest"
	"github.com/joseph-ayodele/billing-parser/internal/ocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "runocr <image> [image...]")
		os.Exit(2)
	}
	cfg := common.LoadConfig()

	var images []entity.FileDescriptor
	for _, p := range os.Args[1:] {
		fd, _, err := ingest.ReadFile(p)
		if err != nil {
			logger.Error("read image", "path", p, "error", err)
			os.Exit(1)
		}
		if !fd.IsImage() {
			logger.Error("not an image", "path", p, "media_type", fd.MediaType)
			os.Exit(2)
		}
		images = append(images, fd)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine := ocr.NewTesseract(ocr.Config{
		Tesseract:           cfg.OCR.TesseractBin,
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		PSM:                 6,
		HeicConverter:       cfg.OCR.HeicConverter,
		EnableTSVConfidence: true,
		Preprocess:          true,
	}, logger)
	recognizer := extract.NewOCRAdapter(engine, cfg.OCR.Workers, logger)

	start := time.Now()
	res := recognizer.Recognize(ctx, images)
	for _, it := range res.Items {
		name := filepath.Base(os.Args[it.Index+1])
		if it.Failed() {
			logger.Error("recognition failed", "file", name, "error", it.Err)
			continue
		}
		logger.Info("recognized", "file", name, "chars", it.Chars, "confidence", it.Confidence, "duration_ms", it.Duration.Milliseconds())
	}
	for i, txt := range res.Texts {
		fmt.Printf("--- text %d ---\n%s\n", i+1, txt)
	}
	logger.Info("ocr done", "images", len(images), "failed", len(res.Failures()), "duration_ms", time.Since(start).Milliseconds())
	if len(res.Texts) == 0 {
		os.Exit(1)
	}
}
