package ids

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestHashContentDeterministic(t *testing.T) {
	data := []byte("git version 2.43.0\n")
	h1 := HashContent(data)
	h2 := HashContent(data)
	if h1 != h2 {
		t.Errorf("same input must produce same hash: %x != %x", h1, h2)
	}
}

func TestHashContentDiffersForDifferentInput(t *testing.T) {
	h1 := HashContent([]byte("output1\n"))
	h2 := HashContent([]byte("output2\n"))
	if h1 == h2 {
		t.Errorf("different input must produce different hash")
	}
}

func TestHashContentEmptyInput(t *testing.T) {
	h := HashContent(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h.String() != want {
		t.Errorf("String() = %q, want %q", h.String(), want)
	}
}

func TestHashContentFormatting(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		buf := make([]byte, r.Intn(512))
		r.Read(buf)
		h := HashContent(buf)
		s := h.String()
		if len(s) != 64 {
			t.Fatalf("hash string length = %d, want 64 (input %x)", len(s), buf)
		}
		for _, c := range s {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
				t.Fatalf("hash string %q contains non-hex character %q", s, c)
			}
		}
	}
}

func TestHashContentOrderMatters(t *testing.T) {
	a := []byte("alpha")
	b := []byte("beta")
	ab := HashContent(append(bytes.Clone(a), b...))
	ba := HashContent(append(bytes.Clone(b), a...))
	if ab == ba {
		t.Errorf("hash(a||b) must differ from hash(b||a) for a != b")
	}
}
