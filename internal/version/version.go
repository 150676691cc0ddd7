// Package version compares dotted firmware version strings (spec.md §4.6:
// "dotted-integer lexicographic" comparisons on min/max/target version).
package version

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Compare returns -1, 0, or 1 as a compares less than, equal to, or greater
// than b. Versions that fail to parse as semver (e.g. a four-part
// "1.2.3.4") fall back to a lexicographic dotted-integer comparison instead
// of erroring the whole evaluation; a two-part "1.2" parses as 1.2.0.
func Compare(a, b string) int {
	va, aerr := semver.NewVersion(a)
	vb, berr := semver.NewVersion(b)
	if aerr == nil && berr == nil {
		return va.Compare(vb)
	}
	return compareDotted(a, b)
}

// GreaterThan reports whether a > b.
func GreaterThan(a, b string) bool { return Compare(a, b) > 0 }

// GreaterOrEqual reports whether a >= b.
func GreaterOrEqual(a, b string) bool { return Compare(a, b) >= 0 }

// LessOrEqual reports whether a <= b.
func LessOrEqual(a, b string) bool { return Compare(a, b) <= 0 }

// Valid reports whether s parses as a dotted numeric version.
func Valid(s string) bool {
	_, err := semver.NewVersion(s)
	return err == nil
}

func compareDotted(a, b string) int {
	pa := splitParts(a)
	pb := splitParts(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitParts(v string) []int {
	var parts []int
	cur := 0
	started := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= '0' && c <= '9':
			cur = cur*10 + int(c-'0')
			started = true
		case c == '.':
			parts = append(parts, cur)
			cur = 0
			started = false
		default:
			// ignore any non-numeric, non-dot suffix (pre-release tags etc.)
		}
	}
	if started || len(parts) == 0 {
		parts = append(parts, cur)
	}
	return parts
}

// String re-renders a parsed semver for canonical display; falls back to the
// raw input when it doesn't parse.
func String(v string) string {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return fmt.Sprintf("%d.%d.%d", parsed.Major(), parsed.Minor(), parsed.Patch())
}
