// Package redact keeps credentials out of log output.
//
// Sensei reads API keys and the Matrix access token from the environment and
// passes them to SDK clients. They must never reach a log line, a chat reply,
// or the /status endpoint.
package redact

import (
	"log/slog"
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are ignored so that short
// common substrings are left alone.
func String(s string, sensitive ...string) string {
	for _, v := range sensitive {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Secret is a credential that prints as [REDACTED] through fmt and slog.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return placeholder
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Reveal returns the raw credential for handing to an SDK client.
func (s Secret) Reveal() string {
	return string(s)
}
