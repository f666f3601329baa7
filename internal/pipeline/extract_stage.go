package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/fields"
)

type ExtractStage struct {
	Logger *slog.Logger
}

func NewExtractStage(logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Logger: logger}
}

func (e *ExtractStage) Run(ctx context.Context, units []entity.DocumentUnit, verbose bool, scope *events.Scope) ([]entity.ClassifiedResult, map[string]any, error) {
	if err := scope.Started(ctx, "Extracting fields"); err != nil {
		return nil, nil, err
	}

	results := fields.ExtractAll(units)
	if verbose {
		for i, r := range results {
			if err := scope.Progress(ctx, map[string]any{"index": i, "classification": string(r.Classification), "fields": r.Fields}); err != nil {
				return nil, nil, err
			}
		}
	}

	e.Logger.Info("extract.ok", "results", len(results))
	return results, map[string]any{"results": len(results)}, nil
}
