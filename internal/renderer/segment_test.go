package renderer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tgmone/folio/internal/renderer"
	"github.com/tgmone/folio/internal/renderer/transform"
)

func TestSplitSegments(t *testing.T) {
	t.Parallel()

	blocks := []transform.DiagramBlock{
		{ID: "diagram-0", Code: "graph TD\nA-->B"},
		{ID: "diagram-1", Code: "pie\n\"a\": 1"},
	}

	tests := []struct {
		name     string
		html     string
		blocks   []transform.DiagramBlock
		wantKeys []string
	}{
		{
			name:     "interleaved",
			html:     "<p>a</p><!--__MERMAID_PLACEHOLDER__0--><p>b</p><!--__MERMAID_PLACEHOLDER__1--><p>c</p>",
			blocks:   blocks,
			wantKeys: []string{"html-0", "diagram-0", "html-1", "diagram-1", "html-2"},
		},
		{
			name:     "whitespace between placeholders dropped",
			html:     "<!--__MERMAID_PLACEHOLDER__0-->\n\n  <!--__MERMAID_PLACEHOLDER__1-->",
			blocks:   blocks,
			wantKeys: []string{"diagram-0", "diagram-1"},
		},
		{
			name:     "out of range index elided",
			html:     "<p>a</p><!--__MERMAID_PLACEHOLDER__5--><p>b</p>",
			blocks:   blocks,
			wantKeys: []string{"html-0", "html-1"},
		},
		{
			name:     "token free input",
			html:     "<p>only html</p>",
			blocks:   nil,
			wantKeys: []string{"html-0"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			segments := renderer.SplitSegments(tc.html, tc.blocks)
			if len(segments) != len(tc.wantKeys) {
				t.Fatalf("expected %d segments, got %d: %#v", len(tc.wantKeys), len(segments), segments)
			}
			for i, key := range tc.wantKeys {
				if segments[i].Key != key {
					t.Fatalf("segment %d: expected key %q, got %q", i, key, segments[i].Key)
				}
			}
		})
	}
}

func TestSplitSegmentsEmptyInput(t *testing.T) {
	t.Parallel()
	if got := renderer.SplitSegments("", nil); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
}

func TestSplitSegmentsWhitespaceOnlyInputFallsBack(t *testing.T) {
	t.Parallel()
	segments := renderer.SplitSegments("   \n", nil)
	if len(segments) != 1 || segments[0].Type != renderer.SegmentHTML {
		t.Fatalf("whitespace-only input should fall back to one HTML segment: %#v", segments)
	}
	if segments[0].Content != "   \n" {
		t.Fatalf("fallback segment should carry the input verbatim: %q", segments[0].Content)
	}
}

func TestSplitSegmentsDiagramFields(t *testing.T) {
	t.Parallel()
	blocks := []transform.DiagramBlock{{ID: "diagram-0", Code: "graph TD\nA-->B"}}
	segments := renderer.SplitSegments("<!--__MERMAID_PLACEHOLDER__0-->", blocks)

	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %#v", segments)
	}
	seg := segments[0]
	if seg.Type != renderer.SegmentDiagram || seg.ID != "diagram-0" || seg.Key != "diagram-0" {
		t.Fatalf("unexpected diagram segment: %#v", seg)
	}
	if seg.Code != "graph TD\nA-->B" {
		t.Fatalf("diagram code altered: %q", seg.Code)
	}
}

// Splitting must lose nothing: concatenating the HTML segments with the
// diagram placeholders re-expanded has to reproduce the single-string render
// byte for byte.
func TestSegmentsReconstructRenderOutput(t *testing.T) {
	t.Parallel()
	svc := renderer.NewService(testLogger())

	tests := []struct {
		name     string
		markdown string
	}{
		{
			name:     "no diagrams",
			markdown: "# Title\n\nPlain text with [a link](https://example.com).\n",
		},
		{
			name: "interleaved",
			markdown: "intro\n\n```mermaid\ngraph TD\nA-->B\n```\n\nmiddle\n\n" +
				"```mermaid\npie\n\"a\": 1\n```\n\noutro\n",
		},
		{
			name:     "adjacent fences",
			markdown: "```mermaid\ngraph TD\nA-->B\n```\n\n```mermaid\npie\n\"a\": 1\n```\n",
		},
		{
			name:     "leading diagram",
			markdown: "```mermaid\ngraph LR\nX-->Y\n```\n\nbetween\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rendered := svc.Render(tc.markdown)
			segments := svc.RenderContent(tc.markdown)

			var b strings.Builder
			diagrams := 0
			for _, seg := range segments {
				switch seg.Type {
				case renderer.SegmentHTML:
					b.WriteString(seg.Content)
				case renderer.SegmentDiagram:
					fmt.Fprintf(&b, "<!--%s%d-->", transform.PlaceholderPrefix, diagrams)
					diagrams++
				}
			}

			if b.String() != rendered {
				t.Fatalf("reconstruction diverged from direct render:\nwant %q\ngot  %q", rendered, b.String())
			}
		})
	}
}

func TestSegmentContainerHTML(t *testing.T) {
	t.Parallel()

	diagram := renderer.Segment{
		Type: renderer.SegmentDiagram,
		Code: "graph TD\nA-->B",
		ID:   "diagram-0",
		Key:  "diagram-0",
	}
	html := diagram.ContainerHTML()

	if !strings.HasPrefix(html, `<pre class="mermaid" id="diagram-0" data-mermaid-code="`) {
		t.Fatalf("unexpected container shape: %s", html)
	}
	if !strings.Contains(html, "A--&gt;B") {
		t.Fatalf("source should be entity-escaped: %s", html)
	}

	// Round trip: the container must segment back to the same code.
	segments := renderer.SegmentPrerendered(html)
	if len(segments) != 1 || segments[0].Type != renderer.SegmentDiagram {
		t.Fatalf("container did not round-trip: %#v", segments)
	}
	if segments[0].Code != diagram.Code {
		t.Fatalf("round-trip code mismatch: %q != %q", segments[0].Code, diagram.Code)
	}

	plain := renderer.Segment{Type: renderer.SegmentHTML, Content: "<p>x</p>", Key: "html-0"}
	if plain.ContainerHTML() != "<p>x</p>" {
		t.Fatalf("HTML segment should pass through: %q", plain.ContainerHTML())
	}
}
