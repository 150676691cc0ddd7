package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"hi\x00there", "hithere"},
		{"tab\ttab", "tab\ttab"},
		{"line\r\none", "line\r\none"},
		{"emoji\xF0\x9F\x98\x80end", "emojiend"},
		{"", ""},
	}
	for _, c := range cases {
		got := Text(c.in)
		if got != c.want {
			t.Errorf("Text(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{"plain", "bad\x01bytes\x02here", "café", "\t\r\nmixed\x7f"}
	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("Text not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}
