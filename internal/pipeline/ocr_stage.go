package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
)

type OCRStage struct {
	Recognizer extract.ImageRecognizer
	Logger     *slog.Logger
}

func NewOCRStage(r extract.ImageRecognizer, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{Recognizer: r, Logger: logger}
}

// Run recognizes every image, then reports each outcome in input order. Per-image
// failures are part of the summary, never an error.
func (p *OCRStage) Run(ctx context.Context, images []entity.FileDescriptor, scope *events.Scope) ([]string, map[string]any, error) {
	if err := scope.Started(ctx, "Running OCR on images"); err != nil {
		return nil, nil, err
	}

	res := p.Recognizer.Recognize(ctx, images)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for _, it := range res.Items {
		detail := map[string]any{"index": it.Index, "mediaType": it.MediaType}
		if it.Failed() {
			detail["event"] = "image-failed"
			detail["error"] = it.Err.Error()
		} else {
			detail["event"] = "image-recognized"
			detail["chars"] = it.Chars
			detail["confidence"] = it.Confidence
		}
		if err := scope.Progress(ctx, detail); err != nil {
			return nil, nil, err
		}
	}

	failed := len(res.Failures())
	if failed > 0 {
		p.Logger.Warn("processor.ocr.partial", "images", len(images), "failed", failed)
	}
	return res.Texts, map[string]any{
		"recognized": len(res.Texts),
		"failed":     failed,
	}, nil
}
