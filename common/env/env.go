package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the trimmed value of env, or defaultValue when it is unset or blank.
func String(env string, defaultValue string) string {
	v, ok := os.LookupEnv(env)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	return v
}

// Int parses env as an integer, falling back to defaultValue on absence or parse failure.
func Int(env string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return defaultValue
	}
	num, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return num
}

// Float64 parses env as a float, falling back to defaultValue on absence or parse failure.
func Float64(env string, defaultValue float64) float64 {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return defaultValue
	}
	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return num
}

// Bool reports whether env is "true" (case-insensitive) or "1".
func Bool(env string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// Duration accepts either a Go duration string ("1m30s") or a bare number of seconds.
func Duration(env string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
