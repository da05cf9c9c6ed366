package validator

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaFromExample compiles an example response into a JSON Schema that
// accepts any document with the same shape: same types, objects carry at
// least the declared keys, arrays match the first element, null accepts anything.
func SchemaFromExample(example any) map[string]any {
	switch v := example.(type) {
	case map[string]any:
		props := make(map[string]any, len(v))
		required := make([]string, 0, len(v))
		for k, child := range v {
			props[k] = SchemaFromExample(child)
			required = append(required, k)
		}
		sort.Strings(required)
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	case []any:
		schema := map[string]any{"type": "array"}
		if len(v) > 0 {
			schema["items"] = SchemaFromExample(v[0])
		}
		return schema
	case string:
		return map[string]any{"type": "string"}
	case bool:
		return map[string]any{"type": "boolean"}
	case float64, float32, int, int32, int64, json.Number:
		return map[string]any{"type": "number"}
	default:
		return map[string]any{}
	}
}

// CheckFormat reports whether raw matches the shape of outputSchema and,
// if not, why. An empty schema accepts everything.
func CheckFormat(raw []byte, outputSchema map[string]any) (bool, string) {
	if len(outputSchema) == 0 {
		return true, ""
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(SchemaFromExample(outputSchema)),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return false, "response is not valid JSON: " + err.Error()
	}
	if result.Valid() {
		return true, ""
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	return false, strings.Join(reasons, "; ")
}

// ValidateFormat reports whether raw contains at least the fields declared
// by outputSchema with compatible types.
func ValidateFormat(raw []byte, outputSchema map[string]any) bool {
	ok, _ := CheckFormat(raw, outputSchema)
	return ok
}
