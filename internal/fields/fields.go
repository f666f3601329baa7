// Package fields pulls typed values out of classified document text with
// ordered regular expressions. The first pattern that matches wins.
package fields

import (
	"regexp"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// PreviewRunes is the length of the raw text preview kept for unknown units.
const PreviewRunes = 200

const amount = `(\d[\d,]*(?:\.\d+)?)`

var (
	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*(?:number|no)\.?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]*)`),
	}
	dueDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)due\s*date\s*[:\-]?\s*(\d{1,4}[/.\-]\d{1,2}[/.\-]\d{1,4}|[A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`),
	}
	totalAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)amount\s*due\s*[:\-]?\s*(?:[₦$€£]\s*)?` + amount),
	}
	totalPaidPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)total\s*[:\-]?\s*(?:[₦$€£]\s*)?` + amount),
		regexp.MustCompile(`([₦$€£])\s?` + amount),
		regexp.MustCompile(`(?i)paid\s*[:\-]?\s*` + amount),
	}
	paymentMethodPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(bill payment)`),
		regexp.MustCompile(`(?i)\b(cash|pos|card|transfer)\b`),
	}
)

// FirstMatch returns the capture of the first pattern that matches text, or nil.
// Within a match the second group wins when present and non-empty.
func FirstMatch(text string, patterns []*regexp.Regexp) *string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 2 && m[2] != "" {
			v := m[2]
			return &v
		}
		if len(m) > 1 {
			v := m[1]
			return &v
		}
	}
	return nil
}

// Extract builds the field set that matches the unit's classification.
// Unclassified units are treated as unknown.
func Extract(u entity.DocumentUnit) entity.ClassifiedResult {
	switch u.Classification {
	case constants.Invoice:
		return entity.ClassifiedResult{
			Classification: constants.Invoice,
			Fields: entity.InvoiceFields{
				InvoiceNumber: FirstMatch(u.Text, invoiceNumberPatterns),
				DueDate:       FirstMatch(u.Text, dueDatePatterns),
				TotalAmount:   FirstMatch(u.Text, totalAmountPatterns),
			},
		}
	case constants.Receipt:
		return entity.ClassifiedResult{
			Classification: constants.Receipt,
			Fields: entity.ReceiptFields{
				TotalPaid:     FirstMatch(u.Text, totalPaidPatterns),
				PaymentMethod: FirstMatch(u.Text, paymentMethodPatterns),
			},
		}
	default:
		return entity.ClassifiedResult{
			Classification: constants.Unknown,
			Fields:         entity.UnknownFields{RawTextPreview: Preview(u.Text)},
		}
	}
}

// ExtractAll maps Extract over units, preserving order.
func ExtractAll(units []entity.DocumentUnit) []entity.ClassifiedResult {
	out := make([]entity.ClassifiedResult, len(units))
	for i, u := range units {
		out[i] = Extract(u)
	}
	return out
}

// Preview returns the first PreviewRunes characters of text.
func Preview(text string) string {
	n := 0
	for i := range text {
		if n == PreviewRunes {
			return text[:i]
		}
		n++
	}
	return text
}
