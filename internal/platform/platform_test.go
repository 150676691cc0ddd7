package platform

import (
	"reflect"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"esp8266":   "esp8266",
		"ESP32":     "esp32",
		"esp32-c3":  "esp32-c3",
		"esp32c3":   "esp32-c3",
		"esp32_c3":  "esp32-c3",
		"ESP32_S3":  "esp32-s3",
		" esp32-s3": "esp32-s3",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVariants(t *testing.T) {
	got := Variants("esp32-c3")
	want := []string{"esp32-c3", "esp32c3", "esp32_c3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants() = %v, want %v", got, want)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("esp32_c3", "esp32c3") {
		t.Error("expected esp32_c3 to equal esp32c3 after canonicalization")
	}
	if Equal("esp32", "esp8266") {
		t.Error("expected esp32 and esp8266 to differ")
	}
}
