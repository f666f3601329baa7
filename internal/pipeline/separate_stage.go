package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
)

// SeparateStage partitions uploads into images and text-bearing files.
type SeparateStage struct {
	Logger *slog.Logger
}

func NewSeparateStage(logger *slog.Logger) *SeparateStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeparateStage{Logger: logger}
}

// Run keeps the input order inside each partition. Images whose payload is
// empty or whitespace are dropped; every other upload lands in exactly one list.
func (s *SeparateStage) Run(ctx context.Context, files []entity.FileDescriptor, scope *events.Scope) (entity.SeparatedBatch, map[string]any, error) {
	batch := entity.SeparatedBatch{
		Images:    []entity.FileDescriptor{},
		TextFiles: []entity.FileDescriptor{},
	}
	if err := scope.Started(ctx, "Separating uploads into images and text files"); err != nil {
		return batch, nil, err
	}

	dropped := 0
	for i, f := range files {
		if f.IsImage() {
			if f.IsEmpty() {
				dropped++
				s.Logger.Debug("separate.image.empty", "index", i, "name", f.Name)
				continue
			}
			batch.Images = append(batch.Images, f)
			if err := scope.Progress(ctx, map[string]any{"event": "image-detected", "index": i, "mediaType": f.MediaType}); err != nil {
				return batch, nil, err
			}
			continue
		}
		batch.TextFiles = append(batch.TextFiles, f)
		if err := scope.Progress(ctx, map[string]any{"event": "text-detected", "index": i, "mediaType": f.MediaType}); err != nil {
			return batch, nil, err
		}
	}

	s.Logger.Info("separate.ok", "images", len(batch.Images), "text_files", len(batch.TextFiles), "dropped", dropped)
	return batch, map[string]any{
		"images":          len(batch.Images),
		"textFiles":       len(batch.TextFiles),
		"dropped":         dropped,
		"imageMediaTypes": mediaTypes(batch.Images),
		"textMediaTypes":  mediaTypes(batch.TextFiles),
	}, nil
}

func mediaTypes(files []entity.FileDescriptor) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.MediaType
	}
	return out
}
