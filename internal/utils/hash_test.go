package utils

import "testing"

func TestHashString(t *testing.T) {
	inputs := []string{
		"hello world",
		"",
		"!@#$%^&*()_+-={}[]|:;<>?,./",
		"lecture notes on thermodynamics, chapter 4",
	}

	for _, input := range inputs {
		hash := HashString(input)

		// SHA256 produces 64 hex characters
		if len(hash) != 64 {
			t.Errorf("HashString(%q) length = %d, want 64", input, len(hash))
		}

		if hash != HashString(input) {
			t.Errorf("HashString(%q) not deterministic", input)
		}

		for _, c := range hash {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
				t.Errorf("HashString(%q) contains non-hex character: %c", input, c)
				break
			}
		}
	}
}

func TestHashStringDistinguishesInputs(t *testing.T) {
	pairs := []struct {
		s1 string
		s2 string
	}{
		{"abc", "abd"},
		{"test", "Test"},
		{"hello", "hello "},
		{"doc-1|1", "doc-1|2"},
	}

	for _, p := range pairs {
		if HashString(p.s1) == HashString(p.s2) {
			t.Errorf("HashString() collision for %q and %q", p.s1, p.s2)
		}
	}
}

func TestHashBytesMatchesHashString(t *testing.T) {
	if HashBytes([]byte("summary")) != HashString("summary") {
		t.Error("HashBytes() and HashString() disagree on the same input")
	}
}
