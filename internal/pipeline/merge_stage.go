package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
)

// MergeStage turns OCR output and native text files into document units, one
// per input item: OCR texts first, then text files, each in arrival order.
type MergeStage struct {
	Decoder extract.TextDecoder
	Logger  *slog.Logger
}

func NewMergeStage(d extract.TextDecoder, logger *slog.Logger) *MergeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeStage{Decoder: d, Logger: logger}
}

func (m *MergeStage) Run(ctx context.Context, ocrTexts []string, textFiles []entity.FileDescriptor, scope *events.Scope) ([]entity.DocumentUnit, map[string]any, error) {
	if err := scope.Started(ctx, "Merging document text"); err != nil {
		return nil, nil, err
	}

	units := make([]entity.DocumentUnit, 0, len(ocrTexts)+len(textFiles))
	for _, t := range ocrTexts {
		units = append(units, entity.DocumentUnit{Text: t})
	}

	fallbacks := 0
	for i, f := range textFiles {
		txt, err := m.Decoder.Decode(ctx, f)
		if err != nil {
			fallbacks++
			if perr := scope.Progress(ctx, map[string]any{"event": "decode-fallback", "index": i, "mediaType": f.MediaType, "error": err.Error()}); perr != nil {
				return nil, nil, perr
			}
		}
		units = append(units, entity.DocumentUnit{Text: txt})
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.Logger.Info("merge.ok", "units", len(units), "decode_fallbacks", fallbacks)
	return units, map[string]any{"units": len(units), "decodeFallbacks": fallbacks}, nil
}
