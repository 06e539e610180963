package renderer_test

import (
	"testing"

	"github.com/tgmone/folio/internal/renderer"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello-world"},
		{"  Spaced   Out  ", "spaced-out"},
		{"Already-slugged", "already-slugged"},
		{"Ünïcödé stripped", "ncd-stripped"},
		{"123 Numbers", "123-numbers"},
		{"!!!", ""},
		{"", ""},
		{"Tabs\tand\nnewlines", "tabs-and-newlines"},
	}

	for _, tc := range tests {
		if got := renderer.Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Hello, World!", "The Render Function", "a  b   c"} {
		once := renderer.Slugify(in)
		if twice := renderer.Slugify(once); twice != once {
			t.Errorf("Slugify not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
