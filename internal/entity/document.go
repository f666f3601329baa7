package entity

import (
	"github.com/joseph-ayodele/billing-parser/constants"
)

// SeparatedBatch partitions the uploads of a run into images (OCR input) and
// everything else.
type SeparatedBatch struct {
	Images    []FileDescriptor `json:"images"`
	TextFiles []FileDescriptor `json:"textFiles"`
}

// DocumentUnit is the unit of classification: one logical document's text.
type DocumentUnit struct {
	Text           string                   `json:"text"`
	Classification constants.Classification `json:"classification,omitempty"`
}

// Classified reports whether the classifier has already set the unit's label.
func (u DocumentUnit) Classified() bool {
	return u.Classification != ""
}
