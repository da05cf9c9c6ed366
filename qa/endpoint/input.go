package endpoint

// placeholders mark where the utterance goes in an input schema.
var placeholders = map[string]struct{}{
	"{{message}}": {},
	"{message}":   {},
	"$message":    {},
	"":            {},
}

// conventionalKeys receive the utterance when the schema has no placeholder.
var conventionalKeys = []string{"message", "input", "prompt", "query", "text", "content"}

// FormatInput maps an utterance into the caller-declared request layout.
//
// String leaves that are a placeholder (or empty) are replaced by utterance,
// nested objects and arrays are walked, other leaves are copied verbatim.
// If no placeholder exists the utterance is written to the first
// conventional key present in the schema, else to "message". The schema is
// never modified, so the result is the same no matter how often it is applied.
func FormatInput(utterance string, schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return map[string]any{"message": utterance}
	}

	placed := false
	body, _ := fill(schema, utterance, &placed).(map[string]any)
	if body == nil {
		body = map[string]any{}
	}
	if placed {
		return body
	}

	for _, k := range conventionalKeys {
		if _, ok := body[k]; ok {
			body[k] = utterance
			return body
		}
	}
	body["message"] = utterance
	return body
}

func fill(v any, utterance string, placed *bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = fill(child, utterance, placed)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = fill(child, utterance, placed)
		}
		return out
	case string:
		if _, ok := placeholders[t]; ok {
			*placed = true
			return utterance
		}
		return t
	default:
		return t
	}
}
