// Package platform canonicalizes printer hardware platform strings and
// expands a canonical platform into the variant spellings firmware binaries
// may have been uploaded under (spec.md §4.6 step 6, §6).
package platform

import "strings"

// Canonicalize maps a raw platform string to its canonical dashed lowercase
// form, e.g. "esp32_c3" -> "esp32-c3". Unknown platforms are lowercased and
// returned with underscores converted to dashes, on the theory that new
// hardware families will follow the same convention.
func Canonicalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")

	// Insert a dash between "esp32"/"esp8266" and a following variant suffix
	// when the separator was omitted entirely (e.g. "esp32c3").
	for _, base := range []string{"esp32", "esp8266"} {
		if strings.HasPrefix(s, base) && s != base {
			rest := s[len(base):]
			if rest != "" && rest[0] != '-' {
				s = base + "-" + rest
			}
		}
	}
	return s
}

// Variants returns every accepted spelling for a canonical platform string:
// the canonical dashed form, the no-separator form, and the underscore form.
// Used to widen a firmware lookup query across however a binary may have
// been filed.
func Variants(canonical string) []string {
	canonical = Canonicalize(canonical)
	noSep := strings.ReplaceAll(canonical, "-", "")
	underscore := strings.ReplaceAll(canonical, "-", "_")

	seen := map[string]bool{}
	var out []string
	for _, v := range []string{canonical, noSep, underscore} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Equal reports whether two raw platform strings canonicalize to the same
// platform.
func Equal(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}
