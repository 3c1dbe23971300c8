package bridge

import "strings"

// SanitizePhone reduces a phone number to digits with a leading plus. An
// 11 digit number with the domestic trunk prefix 8 becomes +7.
func SanitizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "+"):
		return digits
	case len(digits) == 11 && digits[0] == '8':
		return "+7" + digits[1:]
	default:
		return "+" + digits
	}
}
