package llm

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReportJSONSchema returns the JSON-Schema the model output must satisfy.
// Deliberately lenient: only the report flag's type and the entry shape are
// constrained; field content is trusted from the model. Entry fields accept
// null so a sloppy model response still classifies as a report.
func BuildReportJSONSchema() map[string]any {
	entryProps := map[string]any{}
	for _, k := range []string{
		"client_name", "client_department", "client_person",
		"employee_name", "product_name", "content",
	} {
		entryProps[k] = map[string]any{"type": []string{"string", "null"}}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_report":   map[string]any{"type": "boolean"},
			"reporter":    map[string]any{"type": []string{"string", "null"}},
			"report_date": map[string]any{"type": []string{"string", "null"}},
			"entries": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"properties":           entryProps,
					"additionalProperties": true,
				},
			},
		},
		"additionalProperties": true,
	}
}

var reportSchema = jsonschema.MustCompileString("report.schema.json", mustJSON(BuildReportJSONSchema()))

// validateShape checks doc against the report schema. The caller has already
// confirmed doc is valid JSON.
func validateShape(doc any) error {
	return reportSchema.Validate(doc)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
