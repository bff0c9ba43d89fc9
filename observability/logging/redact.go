package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values such as payee addresses and UTRs.
const RedactedValue = "[REDACTED]"

// Keys that identify ledger records rather than people or payment rails.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"op":        {},
	"account":   {},
	"tx":        {},
	"kind":      {},
	"attempt":   {},
	"actor":     {},
}

func loggedInClear(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns an attribute whose value is replaced by RedactedValue
// unless key names a ledger identifier. Blank values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || loggedInClear(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
