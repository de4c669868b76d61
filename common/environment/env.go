// Package environment reads configuration knobs from environment variables.
//
// Every helper returns a fallback instead of exiting so that callers decide
// what a missing value means. Only RequiredString reports an error.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StringOr returns the named variable, or fallback when it is unset or empty.
func StringOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// FirstString returns the first non-empty value among the named variables.
// It is used for credentials that may live under a provider-specific name
// (e.g. SENSEI_LLM_API_KEY, then OPENAI_API_KEY).
func FirstString(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// RequiredString returns the named variable or an error when it is unset or empty.
func RequiredString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable with strconv.ParseBool.
// Unset, empty, or unparseable values yield fallback.
func BoolOr(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntOr parses the named variable as a base-10 integer.
func IntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// Float64Or parses the named variable as a float (e.g. a sampling temperature).
func Float64Or(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// DurationOr parses the named variable with time.ParseDuration ("30s", "2m").
func DurationOr(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

// StringSliceOr splits the named variable on commas and drops blank entries.
// When nothing remains, fallback is returned.
func StringSliceOr(name string, fallback []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
