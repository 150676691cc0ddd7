package bucket

import "testing"

func TestOfDeterministic(t *testing.T) {
	id := "00000000-0000-0000-0000-000000000001"
	a := Of(id)
	b := Of(id)
	if a != b {
		t.Fatalf("Of(%q) not deterministic: %d != %d", id, a, b)
	}
	if a < 0 || a > 99 {
		t.Fatalf("Of(%q) = %d, want 0-99", id, a)
	}
}

func TestOfRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := randomish(i)
		b := Of(id)
		if b < 0 || b > 99 {
			t.Fatalf("Of(%q) = %d out of [0,99]", id, b)
		}
	}
}

func randomish(i int) string {
	return string(rune('a'+(i%26))) + string(rune('0'+(i%10))) + "-printer"
}
