// Package output describes and validates the structured result of a run.
package output

import (
	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/fields"
)

// BuildPayloadJSONSchema returns the JSON-Schema of {"classification": [...]} as a generic map.
func BuildPayloadJSONSchema() map[string]any {
	invoice := variant(constants.Invoice, map[string]any{
		"invoiceNumber": nullableString(),
		"dueDate":       nullableString(),
		"totalAmount":   nullableString(),
	})
	receipt := variant(constants.Receipt, map[string]any{
		"totalPaid":     nullableString(),
		"paymentMethod": nullableString(),
	})
	unknown := variant(constants.Unknown, map[string]any{
		"rawTextPreview": map[string]any{"type": "string", "maxLength": fields.PreviewRunes},
	})

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"classification"},
		"properties": map[string]any{
			"classification": map[string]any{
				"type":  "array",
				"items": map[string]any{"oneOf": []any{invoice, receipt, unknown}},
			},
		},
	}
}

func variant(c constants.Classification, props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"classification", "fields"},
		"properties": map[string]any{
			"classification": map[string]any{"const": string(c)},
			"fields": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             required,
				"properties":           props,
			},
		},
	}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}
