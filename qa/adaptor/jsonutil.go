package adaptor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?(.*?)```")

// ExtractJSONObject finds the JSON object in a model reply. It accepts a
// markdown fence, prose around the object, // comments and trailing commas.
// It returns "" when the reply holds no object.
func ExtractJSONObject(content string) string {
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		if raw := firstObject(m[1]); raw != "" {
			return raw
		}
	}
	return firstObject(content)
}

// DecodeJSONObject extracts and unmarshals the JSON object in content into v.
func DecodeJSONObject(content string, v any) error {
	raw := ExtractJSONObject(content)
	if raw == "" {
		return errors.New("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.Wrap(err, "unmarshal model output")
	}
	return nil
}

// firstObject returns the first balanced {...} in content that is valid JSON
// once cleaned. When none is valid the first balanced candidate is returned
// so the caller reports the decode error.
func firstObject(content string) string {
	content = stripComments(content)
	var fallback string
	for offset := 0; offset < len(content); {
		idx := strings.IndexByte(content[offset:], '{')
		if idx < 0 {
			break
		}
		start := offset + idx
		candidate := extractBalanced(content[start:])
		if candidate == "" {
			break
		}
		cleaned := stripTrailingCommas(candidate)
		if json.Valid([]byte(cleaned)) {
			return cleaned
		}
		if fallback == "" {
			fallback = cleaned
		}
		offset = start + 1
	}
	return fallback
}

// extractBalanced returns the prefix of content, which starts with '{', that
// ends at the brace closing it. Braces inside string literals are ignored.
func extractBalanced(content string) string {
	depth := 0
	var inString, escaped bool
	for i := range len(content) {
		depth, inString, escaped = advanceScanner(content[i], depth, inString, escaped)
		if depth == 0 && !inString {
			return content[:i+1]
		}
	}
	return ""
}

func advanceScanner(ch byte, depth int, inString, escaped bool) (int, bool, bool) {
	if escaped {
		return depth, inString, false
	}
	switch {
	case ch == '\\' && inString:
		return depth, inString, true
	case ch == '"':
		return depth, !inString, false
	case ch == '{' && !inString:
		return depth + 1, inString, false
	case ch == '}' && !inString:
		return depth - 1, inString, false
	default:
		return depth, inString, false
	}
}

// stripTrailingCommas drops a comma that is followed, after whitespace, by
// a closing bracket. Commas inside string literals are kept.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	var inString, escaped bool
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if !inString && ch == ',' {
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		_, inString, escaped = advanceScanner(ch, 0, inString, escaped)
		b.WriteByte(ch)
	}
	return b.String()
}

func stripComments(content string) string {
	if !strings.Contains(content, "//") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return strings.Join(lines, "\n")
}

// stripLineComment drops a // comment that starts outside a string literal.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
