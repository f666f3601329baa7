package constants

import (
	"strings"
)

type Classification string

const (
	Invoice Classification = "invoice"
	Receipt Classification = "receipt"
	Unknown Classification = "unknown"
)

var allClassifications = []Classification{
	Invoice,
	Receipt,
	Unknown,
}

// Canonicalize maps loosely typed input onto a Classification. Anything
// unrecognized collapses to Unknown with ok=false.
func Canonicalize(input string) (Classification, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Unknown, false
	}

	synonyms := map[string]Classification{
		"bill":        Invoice,
		"statement":   Invoice,
		"proof":       Receipt,
		"payment":     Receipt,
		"transaction": Receipt,
	}
	if c, ok := synonyms[normalized]; ok {
		return c, true
	}

	for _, c := range allClassifications {
		if normalized == string(c) {
			return c, true
		}
	}
	return Unknown, false
}
