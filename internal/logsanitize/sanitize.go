// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import "strings"

// Sanitize removes control characters from log field values to reduce
// the risk of log injection (CWE-117).
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
}

// Email sanitizes s and masks the local part of an email address, keeping
// its first character and the domain: "alice@example.com" -> "a***@example.com".
// Values without an '@' (provider ids) are only sanitized.
func Email(s string) string {
	s = Sanitize(s)

	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return s
	}
	if at == 0 {
		return "***" + s[at:]
	}

	local := []rune(s[:at])
	return string(local[0]) + "***" + s[at:]
}
