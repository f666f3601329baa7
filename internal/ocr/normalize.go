package ocr

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	with string
}

// cleanup runs in order; later rules assume earlier ones already applied.
var cleanup = []rewrite{
	{regexp.MustCompile(`\r\n?`), "\n"},
	{regexp.MustCompile(`\f`), "\n\n"}, // pdftotext page breaks
	{regexp.MustCompile(`(?m)^[ \t]*[_\-=]{3,}[ \t]*$`), ""},
	{regexp.MustCompile(`[ \t]+`), " "},
	{regexp.MustCompile(`(?m) +$`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
	{regexp.MustCompile(`\b0([A-Za-z]{2,})\b`), "O$1"}, // "0RDER" style zero-for-O swaps
}

// Normalize collapses noisy whitespace and fixes common OCR artifacts so the
// classifier and field patterns see one space between words and at most one
// blank line between blocks.
func Normalize(s string) string {
	for _, r := range cleanup {
		if s == "" {
			return s
		}
		s = r.re.ReplaceAllString(s, r.with)
	}
	return strings.TrimSpace(s)
}
