// Package normalize converts raw provider payloads into the canonical
// NormalizedTransaction shape. Mapping functions are pure and never fail:
// malformed or missing fields fall back to safe defaults (amount 0, status
// Needs Review, generated external id) rather than erroring, so a bad field
// can never drop a payment event.
package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Provider payloads arrive as decoded JSON of arbitrary, partial shape, and
// field names drift across exports of the same provider. Every read goes
// through these helpers, which tolerate absence and wrong types and try each
// listed key in order.

// getString returns the first non-empty trimmed string under any of keys.
func getString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// getNumber returns the first numeric value under any of keys. JSON decoding
// yields float64, but json.Number and integer types are accepted too.
func getNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// getMinorUnits reads an amount the provider already expresses in minor
// units (processor charge amounts, bank-feed minorUnits).
func getMinorUnits(m map[string]any, keys ...string) int64 {
	f, ok := getNumber(m, keys...)
	if !ok {
		return 0
	}
	return int64(math.Round(f))
}

// getBool returns the boolean under key, false when absent or mistyped.
func getBool(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// getMap returns the object under key, or nil.
func getMap(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	child, _ := v.(map[string]any)
	return child
}

// getList returns the array under key, or nil.
func getList(m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

// getUnixTime reads an epoch-seconds field. Returns the zero time when the
// field is absent; callers substitute their own fallback.
func getUnixTime(m map[string]any, keys ...string) time.Time {
	f, ok := getNumber(m, keys...)
	if !ok || f <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(f), 0).UTC()
}

// getTime reads a timestamp that may arrive as an RFC 3339 string, a
// YYYY-MM-DD date, or epoch seconds/milliseconds.
func getTime(m map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed
			}
			if parsed, err := time.Parse("2006-01-02", t); err == nil {
				return parsed.UTC()
			}
		case float64:
			if t <= 0 {
				continue
			}
			// Millisecond epochs are 13 digits; second epochs 10.
			if t > 1e12 {
				return time.UnixMilli(int64(t)).UTC()
			}
			return time.Unix(int64(t), 0).UTC()
		}
	}
	return time.Time{}
}

// currencyOr upper-cases the currency under keys, falling back when absent.
func currencyOr(m map[string]any, fallback string, keys ...string) string {
	if c := getString(m, keys...); c != "" {
		return strings.ToUpper(c)
	}
	return fallback
}
