package dispatch

import "strings"

// ChatAddress derives the canonical recipient identifier from a raw phone
// number: strip every non-digit, prepend the default country code when 10
// or fewer digits remain, then append the transport's server suffix.
func ChatAddress(phone, countryCode, suffix string) string {
	digits := stripNonDigits(phone)
	if len(digits) <= 10 {
		digits = countryCode + digits
	}
	return digits + "@" + suffix
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
