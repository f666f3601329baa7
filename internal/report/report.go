package report

import (
	"fmt"
	"strings"

	"github.com/tyler-sommer/stick"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
)

// DefaultTemplate is the plain-text batch summary.
const DefaultTemplate = `Batch {{ title }}: {{ total }} runs, {{ succeeded }} succeeded, {{ failed }} failed
{% for r in runs %}- {{ r.name }} [{{ r.state }}] steps={{ r.steps }} invoices={{ r.invoices }} receipts={{ r.receipts }} unknown={{ r.unknown }}{% if r.kind %} kind={{ r.kind }} error={{ r.error }}{% endif %}
{% endfor %}`

// Entry is one finished run in a batch.
type Entry struct {
	Name    string
	Outcome pipeline.Outcome
	Err     error
}

// Render summarizes entries with tpl, or DefaultTemplate when tpl is empty.
func Render(title string, entries []Entry, tpl string) (string, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	runs := make([]map[string]stick.Value, 0, len(entries))
	failed := 0
	for _, e := range entries {
		counts := map[constants.Classification]int{}
		for _, r := range e.Outcome.Payload.Classification {
			counts[r.Classification]++
		}
		row := map[string]stick.Value{
			"name":     e.Name,
			"state":    string(e.Outcome.State),
			"steps":    e.Outcome.Steps,
			"invoices": counts[constants.Invoice],
			"receipts": counts[constants.Receipt],
			"unknown":  counts[constants.Unknown],
			"kind":     "",
			"error":    "",
		}
		if e.Err != nil {
			failed++
			row["kind"] = common.KindOf(e.Err)
			row["error"] = e.Err.Error()
		}
		runs = append(runs, row)
	}

	ctx := map[string]stick.Value{
		"title":     title,
		"total":     len(entries),
		"succeeded": len(entries) - failed,
		"failed":    failed,
		"runs":      runs,
	}
	var out strings.Builder
	if err := stick.New(nil).Execute(tpl, &out, ctx); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out.String(), nil
}
