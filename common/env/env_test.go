package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Setenv("CONVOTEST_STR", "  ")
	require.Equal(t, "fallback", String("CONVOTEST_STR", "fallback"))

	t.Setenv("CONVOTEST_STR", "value")
	require.Equal(t, "value", String("CONVOTEST_STR", "fallback"))
}

func TestInt(t *testing.T) {
	t.Setenv("CONVOTEST_INT", "not-a-number")
	require.Equal(t, 7, Int("CONVOTEST_INT", 7))

	t.Setenv("CONVOTEST_INT", " 42 ")
	require.Equal(t, 42, Int("CONVOTEST_INT", 7))
}

func TestBool(t *testing.T) {
	for input, want := range map[string]bool{"true": true, "1": true, "FALSE": false, "0": false, "maybe": true} {
		t.Setenv("CONVOTEST_BOOL", input)
		require.Equal(t, want, Bool("CONVOTEST_BOOL", true), input)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("CONVOTEST_DUR", "15")
	require.Equal(t, 15*time.Second, Duration("CONVOTEST_DUR", time.Second))

	t.Setenv("CONVOTEST_DUR", "250ms")
	require.Equal(t, 250*time.Millisecond, Duration("CONVOTEST_DUR", time.Second))

	t.Setenv("CONVOTEST_DUR", "soon")
	require.Equal(t, time.Second, Duration("CONVOTEST_DUR", time.Second))
}
