package extract

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/ocr"
)

// OCRAdapter recognizes a batch of images with one engine session. Failing
// images are dropped from the output; they never fail the batch.
type OCRAdapter struct {
	engine  ocr.Engine
	workers int
	logger  *slog.Logger
}

func NewOCRAdapter(engine ocr.Engine, workers int, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &OCRAdapter{engine: engine, workers: workers, logger: logger}
}

func (a *OCRAdapter) Recognize(ctx context.Context, images []entity.FileDescriptor) RecognitionResult {
	res := RecognitionResult{
		Texts: []string{},
		Items: make([]ItemOutcome, len(images)),
	}
	for i, img := range images {
		res.Items[i] = ItemOutcome{Index: i, MediaType: img.MediaType}
	}
	if len(images) == 0 {
		return res
	}

	log := a.logger.With("run_id", common.RunIDFromContext(ctx), "correlation_id", common.CorrelationIDFromContext(ctx))
	sess, err := a.engine.Acquire(ctx)
	if err != nil {
		log.Error("ocr.acquire.failed", "images", len(images), "error", err)
		for i := range res.Items {
			res.Items[i].Err = err
		}
		return res
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("ocr.release.failed", "error", cerr)
		}
	}()

	texts := make([]string, len(images))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			r, err := sess.Recognize(ctx, img.Payload, img.MediaType)
			item := &res.Items[i]
			item.Duration = r.Duration
			if err != nil {
				item.Err = err
				log.Warn("ocr.item.failed",
					"index", i,
					"media_type", img.MediaType,
					"name", img.Name,
					"error", err,
				)
				return nil
			}
			texts[i] = r.Text
			item.Chars = len(r.Text)
			item.Confidence = r.Confidence
			return nil
		})
	}
	_ = g.Wait()

	for i := range images {
		if !res.Items[i].Failed() {
			res.Texts = append(res.Texts, texts[i])
		}
	}
	log.Info("ocr.batch.ok",
		"images", len(images),
		"recognized", len(res.Texts),
		"failed", len(images)-len(res.Texts),
	)
	return res
}
