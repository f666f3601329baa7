package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/classify"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
)

type ClassifyStage struct {
	Logger *slog.Logger
}

func NewClassifyStage(logger *slog.Logger) *ClassifyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyStage{Logger: logger}
}

// Run labels each unit. With verbose set, one progress event is emitted per unit.
func (c *ClassifyStage) Run(ctx context.Context, units []entity.DocumentUnit, verbose bool, scope *events.Scope) ([]entity.DocumentUnit, map[string]any, error) {
	if err := scope.Started(ctx, "Classifying documents"); err != nil {
		return nil, nil, err
	}

	out := classify.Units(units)
	counts := map[constants.Classification]int{}
	for i, u := range out {
		counts[u.Classification]++
		if !verbose {
			continue
		}
		if err := scope.Progress(ctx, map[string]any{"index": i, "classification": string(u.Classification)}); err != nil {
			return nil, nil, err
		}
	}

	c.Logger.Info("classify.ok",
		"units", len(out),
		"invoices", counts[constants.Invoice],
		"receipts", counts[constants.Receipt],
		"unknown", counts[constants.Unknown],
	)
	return out, map[string]any{
		"classified": len(out),
		"invoices":   counts[constants.Invoice],
		"receipts":   counts[constants.Receipt],
		"unknown":    counts[constants.Unknown],
	}, nil
}
