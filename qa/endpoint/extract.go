package endpoint

import (
	"github.com/tidwall/gjson"

	"github.com/qaforge/convotest/qa/model"
)

// conventionalReplyPaths are tried after the rule paths, in order.
var conventionalReplyPaths = []string{
	"text",
	"message",
	"output",
	"reply",
	"answer",
	"content",
	"choices.0.message.content",
	"content.0.text",
}

// ExtractReplyText pulls the endpoint's reply out of an arbitrary response
// shape. It tries response.text, then each rule path, then the conventional
// paths, and returns "" when none resolve to a string or number.
func ExtractReplyText(raw []byte, rules []model.Rule) string {
	if text, ok := scalarAt(raw, "response.text"); ok {
		return text
	}
	for _, r := range rules {
		if text, ok := scalarAt(raw, r.Path); ok {
			return text
		}
	}
	for _, p := range conventionalReplyPaths {
		if text, ok := scalarAt(raw, p); ok {
			return text
		}
	}
	return ""
}

func scalarAt(raw []byte, path string) (string, bool) {
	res, ok := Lookup(raw, path)
	if !ok {
		return "", false
	}
	switch res.Type {
	case gjson.String, gjson.Number:
		return res.String(), true
	default:
		return "", false
	}
}
