package renderer_test

import (
	"testing"

	"github.com/tgmone/folio/internal/renderer"
)

func TestSegmentPrerendered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		wantCode []string
		wantKeys []string
	}{
		{
			name:     "attribute preferred with numeric entity",
			html:     `<p>before</p><pre class="mermaid" data-mermaid-code="graph TD&#10;A--&gt;B">graph TD A--B</pre><p>after</p>`,
			wantCode: []string{"graph TD\nA-->B"},
			wantKeys: []string{"html-0", "mermaid-html-0", "html-1"},
		},
		{
			name:     "inner text fallback strips nested markup",
			html:     `<pre class="mermaid"><code>graph LR\nX--&gt;Y</code></pre>`,
			wantCode: []string{`graph LR\nX-->Y`},
			wantKeys: []string{"mermaid-html-0"},
		},
		{
			name:     "empty container dropped",
			html:     `<p>a</p><pre class="mermaid" data-mermaid-code=""></pre><p>b</p>`,
			wantCode: nil,
			wantKeys: []string{"html-0", "html-1"},
		},
		{
			name:     "id counter advances only on emitted diagrams",
			html:     `<pre class="mermaid"></pre><pre class="mermaid" data-mermaid-code="pie">pie</pre>`,
			wantCode: []string{"pie"},
			wantKeys: []string{"mermaid-html-0"},
		},
		{
			name:     "container free input",
			html:     `<p>plain</p>`,
			wantCode: nil,
			wantKeys: []string{"html-0"},
		},
		{
			name:     "case insensitive multiline container",
			html:     "<PRE class=\"mermaid\" data-extra=\"x\">graph TD\nA--&gt;B\n</PRE>",
			wantCode: []string{"graph TD\nA-->B"},
			wantKeys: []string{"mermaid-html-0"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			segments := renderer.SegmentPrerendered(tc.html)

			if len(segments) != len(tc.wantKeys) {
				t.Fatalf("expected %d segments, got %d: %#v", len(tc.wantKeys), len(segments), segments)
			}
			codeIdx := 0
			for i, key := range tc.wantKeys {
				if segments[i].Key != key {
					t.Fatalf("segment %d: expected key %q, got %q", i, key, segments[i].Key)
				}
				if segments[i].Type == renderer.SegmentDiagram {
					if codeIdx >= len(tc.wantCode) {
						t.Fatalf("unexpected diagram segment: %#v", segments[i])
					}
					if segments[i].Code != tc.wantCode[codeIdx] {
						t.Fatalf("diagram %d: expected code %q, got %q", codeIdx, tc.wantCode[codeIdx], segments[i].Code)
					}
					codeIdx++
				}
			}
		})
	}
}

func TestSegmentPrerenderedEmptyInput(t *testing.T) {
	t.Parallel()
	if got := renderer.SegmentPrerendered(""); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
}
