package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFormat(t *testing.T) {
	schema := map[string]any{
		"reply": "example",
		"meta":  map[string]any{"confidence": 0.9, "escalate": false},
		"tags":  []any{"string"},
		"extra": nil,
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "exact shape", raw: `{"reply":"hi","meta":{"confidence":1,"escalate":true},"tags":["a"],"extra":{"x":1}}`, want: true},
		{name: "additional fields allowed", raw: `{"reply":"hi","meta":{"confidence":1,"escalate":true,"id":7},"tags":[],"extra":null,"debug":true}`, want: true},
		{name: "missing top-level key", raw: `{"meta":{"confidence":1,"escalate":true},"tags":[],"extra":1}`, want: false},
		{name: "missing nested key", raw: `{"reply":"hi","meta":{"confidence":1},"tags":[],"extra":1}`, want: false},
		{name: "wrong leaf type", raw: `{"reply":3,"meta":{"confidence":1,"escalate":true},"tags":[],"extra":1}`, want: false},
		{name: "wrong array item type", raw: `{"reply":"hi","meta":{"confidence":1,"escalate":true},"tags":[1],"extra":1}`, want: false},
		{name: "not json", raw: `nope`, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ValidateFormat([]byte(tc.raw), schema))
		})
	}
}

func TestValidateFormatEmptySchema(t *testing.T) {
	require.True(t, ValidateFormat([]byte(`{"anything":1}`), nil))
	require.True(t, ValidateFormat([]byte(`{"anything":1}`), map[string]any{}))
}

func TestCheckFormatExplainsFailure(t *testing.T) {
	ok, reason := CheckFormat([]byte(`{"other":1}`), map[string]any{"reply": "x"})
	require.False(t, ok)
	require.Contains(t, reason, "reply")
}
