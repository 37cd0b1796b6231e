package code

import (
	"errors"
	"strings"
	"testing"
)

func TestNewGenerator_RejectsBadLength(t *testing.T) {
	for _, n := range []int{0, 3, 33, -1} {
		if _, err := NewGenerator(n); !errors.Is(err, ErrInvalidLength) {
			t.Errorf("NewGenerator(%d) err = %v, want ErrInvalidLength", n, err)
		}
	}
}

func TestGenerator_Generate_LengthAndAlphabet(t *testing.T) {
	g, err := NewGenerator(DefaultLength)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	for i := 0; i < 200; i++ {
		c, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(c) != DefaultLength {
			t.Fatalf("len = %d, want %d", len(c), DefaultLength)
		}
		for _, r := range c {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("code %q contains %q outside alphabet", c, r)
			}
		}
		if !g.Valid(c) {
			t.Fatalf("Valid(%q) = false for generated code", c)
		}
	}
}

func TestGenerator_Generate_Distinct(t *testing.T) {
	g, _ := NewGenerator(DefaultLength)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		c, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		seen[c] = struct{}{}
	}
	if len(seen) < 999 {
		t.Errorf("expected near-unique codes, got %d distinct of 1000", len(seen))
	}
}

func TestGenerator_Valid(t *testing.T) {
	g, _ := NewGenerator(8)
	cases := map[string]bool{
		"ABCD1234":  true,
		"abcd1234":  false,
		"ABCD123":   false,
		"ABCD12345": false,
		"ABCD-234":  false,
		"":          false,
	}
	for in, want := range cases {
		if got := g.Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  abcd1234\n"); got != "ABCD1234" {
		t.Errorf("Normalize = %q, want ABCD1234", got)
	}
}
