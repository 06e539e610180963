package renderer_test

import (
	"testing"

	"github.com/tgmone/folio/internal/renderer"
)

func TestExtractHeadings(t *testing.T) {
	t.Parallel()

	markdown := "# Title\n\ntext\n\n## Section One\n\n### Sub, Section!\n"
	headings := renderer.ExtractHeadings(markdown)

	want := []renderer.Heading{
		{Text: "Title", ID: "title", Level: 1},
		{Text: "Section One", ID: "section-one", Level: 2},
		{Text: "Sub, Section!", ID: "sub-section", Level: 3},
	}

	if len(headings) != len(want) {
		t.Fatalf("expected %d headings, got %d: %#v", len(want), len(headings), headings)
	}
	for i, w := range want {
		if headings[i] != w {
			t.Fatalf("heading %d: expected %#v, got %#v", i, w, headings[i])
		}
	}
}

func TestExtractHeadingsEmpty(t *testing.T) {
	t.Parallel()
	if got := renderer.ExtractHeadings(""); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
}
