// Package sanitize strips disallowed bytes from inbound printer-bound text
// (spec.md §4.3).
package sanitize

import "strings"

// Text drops every byte outside the printable ASCII range except line feed,
// carriage return, and tab. Pure and idempotent: Text(Text(x)) == Text(x).
func Text(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7e) {
			b.WriteByte(c)
		}
	}
	return b.String()
}
