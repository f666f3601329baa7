package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// ResultLister is the slice of the run store an export needs.
type ResultLister interface {
	ListResults(ctx context.Context, from, to time.Time) ([]entity.RunResult, error)
}

// Service produces XLSX bytes for persisted results.
type Service struct {
	results ResultLister
	logger  *slog.Logger
}

func NewService(results ResultLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

const sheet = "Results"

var headers = []string{
	"Run ID",
	"Position",
	"Classification",
	"Invoice Number",
	"Due Date",
	"Total Amount",
	"Total Paid",
	"Payment Method",
	"Raw Text Preview",
	"Created At",
}

// ResultsXLSX returns a workbook of results created in [from, to). A nil
// bound is open.
func (s *Service) ResultsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var lo, hi time.Time
	if from != nil {
		lo = from.UTC()
	}
	if to != nil {
		hi = to.UTC()
	}
	rows, err := s.results.ListResults(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	buf, err := WriteResults(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// WriteResults renders rows into a fresh workbook.
func WriteResults(rows []entity.RunResult) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		runID := ""
		if r.RunID != uuid.Nil {
			runID = r.RunID.String()
		}
		write(1, runID)
		write(2, r.Position)
		write(3, string(r.Classification))
		write(4, deref(r.InvoiceNumber))
		write(5, deref(r.DueDate))
		write(6, deref(r.TotalAmount))
		write(7, deref(r.TotalPaid))
		write(8, deref(r.PaymentMethod))
		write(9, truncate(deref(r.RawTextPreview), 140))
		if !r.CreatedAt.IsZero() {
			write(10, r.CreatedAt.UTC().Format(time.RFC3339))
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // run id
	_ = f.SetColWidth(sheet, "B", "C", 14)
	_ = f.SetColWidth(sheet, "D", "H", 18)
	_ = f.SetColWidth(sheet, "I", "I", 60) // preview
	_ = f.SetColWidth(sheet, "J", "J", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
