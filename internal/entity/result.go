package entity

import (
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// FieldSet is the classification-specific group of extracted fields.
type FieldSet interface {
	fieldSet()
}

// InvoiceFields are extracted from units classified as invoice.
type InvoiceFields struct {
	InvoiceNumber *string `json:"invoiceNumber"`
	DueDate       *string `json:"dueDate"`
	TotalAmount   *string `json:"totalAmount"`
}

// ReceiptFields are extracted from units classified as receipt.
type ReceiptFields struct {
	TotalPaid     *string `json:"totalPaid"`
	PaymentMethod *string `json:"paymentMethod"`
}

// UnknownFields carry a preview of text that matched neither signal set.
type UnknownFields struct {
	RawTextPreview string `json:"rawTextPreview"`
}

func (InvoiceFields) fieldSet() {}
func (ReceiptFields) fieldSet() {}
func (UnknownFields) fieldSet() {}

// ClassifiedResult is the per-unit output of the pipeline.
type ClassifiedResult struct {
	Classification constants.Classification `json:"classification"`
	Fields         FieldSet                 `json:"fields"`
}

// UnmarshalJSON picks the field set variant from the classification.
func (r *ClassifiedResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		Classification constants.Classification `json:"classification"`
		Fields         json.RawMessage          `json:"fields"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Classification = raw.Classification
	switch raw.Classification {
	case constants.Invoice:
		var f InvoiceFields
		if err := unmarshalFields(raw.Fields, &f); err != nil {
			return err
		}
		r.Fields = f
	case constants.Receipt:
		var f ReceiptFields
		if err := unmarshalFields(raw.Fields, &f); err != nil {
			return err
		}
		r.Fields = f
	case constants.Unknown:
		var f UnknownFields
		if err := unmarshalFields(raw.Fields, &f); err != nil {
			return err
		}
		r.Fields = f
	default:
		return fmt.Errorf("unknown classification %q", raw.Classification)
	}
	return nil
}

func unmarshalFields(b json.RawMessage, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

// Payload is the final structured output of a run.
type Payload struct {
	Classification []ClassifiedResult `json:"classification"`
}
