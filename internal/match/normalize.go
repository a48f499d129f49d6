package match

import "strings"

// companySuffixes is the stoplist of organizational suffixes dropped during
// name normalization, so "J Smith Ltd" and "J Smith" compare equal.
var companySuffixes = map[string]bool{
	"ltd":     true,
	"limited": true,
	"inc":     true,
	"llc":     true,
	"co":      true,
	"company": true,
	"plc":     true,
	"gmbh":    true,
}

// NormalizeEmail lower-cases and trims an email for exact comparison.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizePhone strips everything but digits. Matching compares only the
// last four digits, tolerating country-code and formatting noise.
func NormalizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneTail returns the last four digits of a phone number, or the whole
// digit string when shorter.
func PhoneTail(value string) string {
	digits := NormalizePhone(value)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// NormalizeName prepares a free-text name for fuzzy comparison: punctuation
// becomes spaces, everything lower-cases, and organizational suffixes drop.
func NormalizeName(value string) string {
	cleaned := strings.NewReplacer(".", " ", ",", " ").Replace(value)
	parts := strings.Fields(strings.ToLower(cleaned))
	kept := parts[:0]
	for _, part := range parts {
		if !companySuffixes[part] {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}
