package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/qa/model"
)

func TestExtractReplyText(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		rules []model.Rule
		want  string
	}{
		{name: "response.text wins", raw: `{"response":{"text":"a"},"text":"b"}`, want: "a"},
		{name: "rule path", raw: `{"data":{"answer":"from rule"}}`, rules: []model.Rule{{Path: "data.answer"}}, want: "from rule"},
		{name: "rule path with brackets", raw: `{"items":[{"v":"x"}]}`, rules: []model.Rule{{Path: "$.items[0].v"}}, want: "x"},
		{name: "rule path pointing at object is skipped", raw: `{"data":{"a":1},"reply":"r"}`, rules: []model.Rule{{Path: "data"}}, want: "r"},
		{name: "openai shape", raw: `{"choices":[{"message":{"content":"oa"}}]}`, want: "oa"},
		{name: "anthropic shape", raw: `{"content":[{"type":"text","text":"an"}]}`, want: "an"},
		{name: "numbers are stringified", raw: `{"output":42}`, want: "42"},
		{name: "nothing resolves", raw: `{"foo":{"bar":true}}`, want: ""},
		{name: "not json", raw: `<html>`, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExtractReplyText([]byte(tc.raw), tc.rules))
		})
	}
}

func TestLookup(t *testing.T) {
	raw := []byte(`{"a":{"b":[1,{"c":"d"}]}}`)

	res, ok := Lookup(raw, "a.b[1].c")
	require.True(t, ok)
	require.Equal(t, "d", res.String())

	res, ok = Lookup(raw, "a/b/0")
	require.True(t, ok)
	require.Equal(t, int64(1), res.Int())

	_, ok = Lookup(raw, "a.missing")
	require.False(t, ok)

	_, ok = Lookup(raw, "  ")
	require.False(t, ok)
}
