package adaptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "Here you go:\n```json\n{\"a\":1}\n```\nthanks", want: `{"a":1}`},
		{name: "prose around", in: `Sure! {"a":"b"} Let me know.`, want: `{"a":"b"}`},
		{name: "trailing comma", in: `{"plan":["x","y",],}`, want: `{"plan":["x","y"]}`},
		{name: "comment kept inside string", in: "{\"url\":\"http://x\" // the url\n}", want: "{\"url\":\"http://x\"\n}"},
		{name: "no object", in: "I cannot do that.", want: ""},
		{
			name: "brace in trailing prose",
			in:   "{\"message\": \"Hi\", \"plan\": [\"ask for refund\"]}\n\n(Next I will mention the {order_id} placeholder.)",
			want: `{"message": "Hi", "plan": ["ask for refund"]}`,
		},
		{name: "brace in leading prose", in: `Using the {name} template: {"a":1}`, want: `{"a":1}`},
		{name: "braces inside strings", in: `{"a":"}{"} done}`, want: `{"a":"}{"}`},
		{name: "commas inside strings kept", in: `{"e":"listed [a, ] and {b, }",}`, want: `{"e":"listed [a, ] and {b, }"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExtractJSONObject(tc.in))
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	var out struct {
		IsCorrect bool `json:"isCorrect"`
	}
	require.NoError(t, DecodeJSONObject("```\n{\"isCorrect\": true,}\n```", &out))
	require.True(t, out.IsCorrect)

	require.Error(t, DecodeJSONObject("plain words", &out))
	require.Error(t, DecodeJSONObject("{not json}", &out))
}

func TestDecodeJSONObjectKeepsStringContent(t *testing.T) {
	var verdict struct {
		IsCorrect   bool   `json:"isCorrect"`
		Explanation string `json:"explanation"`
	}
	require.NoError(t, DecodeJSONObject(`{"isCorrect": false, "explanation": "bot listed [a, ] and {b, }"}`, &verdict))
	require.False(t, verdict.IsCorrect)
	require.Equal(t, "bot listed [a, ] and {b, }", verdict.Explanation)

	var plan struct {
		Message string   `json:"message"`
		Plan    []string `json:"plan"`
	}
	reply := "{\"message\": \"Hi, I need to cancel my order\", \"plan\": [\"ask for refund\"]}\n\n(Next I will mention the {order_id} placeholder.)"
	require.NoError(t, DecodeJSONObject(reply, &plan))
	require.Equal(t, "Hi, I need to cancel my order", plan.Message)
	require.Equal(t, []string{"ask for refund"}, plan.Plan)
}
