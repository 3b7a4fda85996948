package pii

import (
	"strings"
	"unicode/utf8"
)

const maskRune = "*"

// Mask returns the redacted representation of a plaintext value. It never
// returns more than the policy allows: a leading character, an email domain,
// the last four phone digits, or a birth year.
func Mask(f Field, v string) string {
	switch f {
	case FieldEmail:
		return maskEmail(v)
	case FieldPhone:
		return maskPhone(v)
	case FieldDateOfBirth:
		return maskDate(v)
	default:
		return maskName(v)
	}
}

func maskEmail(v string) string {
	local, domain, ok := strings.Cut(v, "@")
	if !ok || local == "" || domain == "" {
		return strings.Repeat(maskRune, 3)
	}
	first, _ := utf8.DecodeRuneInString(local)
	return string(first) + strings.Repeat(maskRune, 3) + "@" + domain
}

func maskPhone(v string) string {
	digits := Normalize(FieldPhone, v)
	digits = strings.TrimPrefix(digits, "+")
	if len(digits) <= 4 {
		return strings.Repeat(maskRune, 4)
	}
	return strings.Repeat(maskRune, len(digits)-4) + digits[len(digits)-4:]
}

func maskName(v string) string {
	if v == "" {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(v)
	return string(first) + "."
}

// maskDate keeps the year of an ISO date, enough for age cohorts.
func maskDate(v string) string {
	if len(v) >= 4 && strings.Count(v, "-") == 2 {
		return v[:4] + "-**-**"
	}
	return "****-**-**"
}
