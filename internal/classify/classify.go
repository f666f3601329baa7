// Package classify labels document text as invoice, receipt or unknown by
// keyword signals.
package classify

import (
	"strings"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
)

// InvoiceSignals are checked first; any hit makes the text an invoice.
var InvoiceSignals = []string{
	"invoice",
	"invoice number",
	"invoice no",
	"bill to",
	"due date",
	"amount due",
	"payment terms",
	"net 7",
	"net 14",
	"net 30",
}

// ReceiptSignals only apply when no invoice signal matched.
var ReceiptSignals = []string{
	"receipt",
	"paid",
	"payment received",
	"thank you for your purchase",
	"cash",
	"change",
	"balance 0",
	"pos",
	"terminal",
	"transaction was successful",
	"quickteller",
	"bill payment",
}

// Text classifies a single text. Matching is case-insensitive substring search.
func Text(text string) constants.Classification {
	lower := strings.ToLower(text)
	if containsAny(lower, InvoiceSignals) {
		return constants.Invoice
	}
	if containsAny(lower, ReceiptSignals) {
		return constants.Receipt
	}
	return constants.Unknown
}

// Units labels every unit from its text alone. Any label already on a unit is
// overwritten, so classifying twice gives the same result.
func Units(units []entity.DocumentUnit) []entity.DocumentUnit {
	out := make([]entity.DocumentUnit, len(units))
	for i, u := range units {
		out[i] = u
		out[i].Classification = Text(u.Text)
	}
	return out
}

// MatchedSignals lists the signals found in text, invoice signals first.
func MatchedSignals(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, set := range [][]string{InvoiceSignals, ReceiptSignals} {
		for _, s := range set {
			if strings.Contains(lower, s) {
				hits = append(hits, s)
			}
		}
	}
	return hits
}

func containsAny(s string, signals []string) bool {
	for _, sig := range signals {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
