package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// Run represents a persisted pipeline run for data transfer between layers.
type Run struct {
	ID           uuid.UUID           `json:"id"`
	Source       string              `json:"source"`
	Status       constants.RunStatus `json:"status"`
	FileCount    int                 `json:"file_count"`
	StepCount    int                 `json:"step_count"`
	ResultCount  int                 `json:"result_count"`
	ErrorKind    *string             `json:"error_kind,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// RunResult is one persisted ClassifiedResult row.
type RunResult struct {
	RunID          uuid.UUID                `json:"run_id"`
	Position       int                      `json:"position"`
	Classification constants.Classification `json:"classification"`
	InvoiceNumber  *string                  `json:"invoice_number,omitempty"`
	DueDate        *string                  `json:"due_date,omitempty"`
	TotalAmount    *string                  `json:"total_amount,omitempty"`
	TotalPaid      *string                  `json:"total_paid,omitempty"`
	PaymentMethod  *string                  `json:"payment_method,omitempty"`
	RawTextPreview *string                  `json:"raw_text_preview,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// NewRunResult flattens a ClassifiedResult into its persisted row shape.
func NewRunResult(runID uuid.UUID, position int, r ClassifiedResult) RunResult {
	out := RunResult{RunID: runID, Position: position, Classification: r.Classification}
	switch f := r.Fields.(type) {
	case InvoiceFields:
		out.InvoiceNumber, out.DueDate, out.TotalAmount = f.InvoiceNumber, f.DueDate, f.TotalAmount
	case ReceiptFields:
		out.TotalPaid, out.PaymentMethod = f.TotalPaid, f.PaymentMethod
	case UnknownFields:
		preview := f.RawTextPreview
		out.RawTextPreview = &preview
	}
	return out
}
