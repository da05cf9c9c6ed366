package endpoint

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// NormalizePath converts the accessor forms users write in rules
// ("$.data.items[0].name", "data/items/0") into gjson dot syntax.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = bracketIndex.ReplaceAllString(path, ".$1")
	if !strings.Contains(path, ".") && strings.Contains(path, "/") {
		path = strings.ReplaceAll(path, "/", ".")
	}
	return strings.Trim(path, ".")
}

// Lookup resolves path against a raw JSON document. The bool is false when
// the path is empty, the document is not JSON, or nothing exists at path.
func Lookup(raw []byte, path string) (gjson.Result, bool) {
	path = NormalizePath(path)
	if path == "" || !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	res := gjson.GetBytes(raw, path)
	return res, res.Exists()
}
