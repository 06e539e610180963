package diagram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRenderer struct {
	mu          sync.Mutex
	available   bool
	err         error
	errBySource map[string]error
	svg         string
	calls       []string
}

func (f *fakeRenderer) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeRenderer) Render(_ context.Context, id, source string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, source)
	if err := f.errBySource[source]; err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	if f.svg != "" {
		return f.svg, nil
	}
	return "<svg id=\"" + id + "\"></svg>", nil
}

type fakeElement struct {
	attrs    map[string]string
	text     string
	filtered string
	inner    string
	hasSVG   bool
	replaced []string
}

func newFakeElement() *fakeElement {
	return &fakeElement{attrs: map[string]string{}}
}

func (e *fakeElement) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) SetAttr(name, value string) { e.attrs[name] = value }

func (e *fakeElement) Text() string { return e.text }

func (e *fakeElement) TextExcluding(...string) string { return e.filtered }

func (e *fakeElement) InnerMarkup() string { return e.inner }

func (e *fakeElement) ReplaceContent(markup string) error {
	e.replaced = append(e.replaced, markup)
	return nil
}

func (e *fakeElement) HasDescendant(tag string) bool {
	return tag == "svg" && e.hasSVG
}

type fakeRoot struct {
	batches [][]Element
	queries int
}

func (r *fakeRoot) UnprocessedDiagrams() []Element {
	var batch []Element
	if r.queries < len(r.batches) {
		batch = r.batches[r.queries]
	}
	r.queries++
	return batch
}

func fastOptions() *Options {
	return &Options{
		NewID:        func() string { return "mermaid-test" },
		PollInterval: time.Millisecond,
		PollAttempts: 2,
		SettleDelay:  time.Millisecond,
	}
}

func TestMaterializeRendersFromDataAttribute(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.attrs["data-mermaid-code"] = "graph TD&#10;A--&gt;B"
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if len(rend.calls) != 1 || rend.calls[0] != "graph TD\nA-->B" {
		t.Fatalf("expected entity-decoded source, got %#v", rend.calls)
	}
	if el.attrs[processedAttr] != "true" {
		t.Fatal("element should be claimed")
	}
	if el.attrs["data-original-code"] != "graph TD\nA-->B" {
		t.Fatalf("original code not persisted: %q", el.attrs["data-original-code"])
	}
	if el.attrs["id"] != "mermaid-test" {
		t.Fatalf("unexpected id: %q", el.attrs["id"])
	}
	if len(el.replaced) != 1 || !strings.Contains(el.replaced[0], "<svg") {
		t.Fatalf("expected SVG mounted, got %#v", el.replaced)
	}
}

func TestMaterializeSourceRecoveryOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*fakeElement)
		want  string
	}{
		{
			name: "data attribute wins",
			setup: func(e *fakeElement) {
				e.attrs["data-mermaid-code"] = "graph TD"
				e.text = "ignored"
			},
			want: "graph TD",
		},
		{
			name: "original code attribute next",
			setup: func(e *fakeElement) {
				e.attrs["data-original-code"] = "pie"
				e.text = "ignored"
			},
			want: "pie",
		},
		{
			name:  "text content",
			setup: func(e *fakeElement) { e.text = "  graph LR  " },
			want:  "graph LR",
		},
		{
			name:  "filtered text when plain text empty",
			setup: func(e *fakeElement) { e.filtered = "mindmap" },
			want:  "mindmap",
		},
		{
			name:  "decoded inner markup last",
			setup: func(e *fakeElement) { e.inner = "<code>timeline&#10;x</code>" },
			want:  "timeline\nx",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			el := newFakeElement()
			tc.setup(el)
			rend := &fakeRenderer{available: true}
			m := NewMaterializer(rend, testLogger(), fastOptions())

			root := &fakeRoot{batches: [][]Element{{el}}}
			if err := m.Materialize(context.Background(), root); err != nil {
				t.Fatalf("Materialize returned error: %v", err)
			}
			if len(rend.calls) != 1 || rend.calls[0] != tc.want {
				t.Fatalf("expected source %q, got %#v", tc.want, rend.calls)
			}
		})
	}
}

func TestMaterializeClaimsElementWithSVGChild(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.hasSVG = true
	el.text = "graph TD"
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if len(rend.calls) != 0 {
		t.Fatalf("rendered element must not be re-rendered: %#v", rend.calls)
	}
	if el.attrs[processedAttr] != "true" {
		t.Fatal("rendered element should still be claimed")
	}
}

func TestMaterializeSkipsRenderedLookingContent(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.text = "#mermaid-123 .node { fill: red; } @keyframes spin {}"
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if len(rend.calls) != 0 {
		t.Fatalf("rendered leftovers must not be fed to the renderer: %#v", rend.calls)
	}
	if _, claimed := el.attrs[processedAttr]; claimed {
		t.Fatal("skipped element must stay unclaimed for a later pass")
	}
}

func TestMaterializeKeywordOverridesRenderedSniff(t *testing.T) {
	t.Parallel()

	// Starts with a diagram keyword, so the rendered-content markers inside
	// must not block it.
	el := newFakeElement()
	el.text = "graph TD\nA[label with font-family: mono]-->B"
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(rend.calls) != 1 {
		t.Fatalf("keyword-led source should render: %#v", rend.calls)
	}
}

func TestMaterializeErrorPanel(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.text = "graph TD\nA-->B"
	rend := &fakeRenderer{available: true, err: errors.New("parse error near line 2")}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if len(el.replaced) != 1 {
		t.Fatalf("expected error panel mount, got %#v", el.replaced)
	}
	panel := el.replaced[0]
	if !strings.Contains(panel, "mermaid-error") ||
		!strings.Contains(panel, "parse error near line 2") ||
		!strings.Contains(panel, "<details>") ||
		!strings.Contains(panel, "graph TD") {
		t.Fatalf("unexpected error panel: %s", panel)
	}
	if el.attrs[processedAttr] != "true" {
		t.Fatal("failed element is terminal and should stay claimed")
	}
}

func TestMaterializeErrorContainment(t *testing.T) {
	t.Parallel()

	first := newFakeElement()
	first.text = "graph TD\nA-->B"
	broken := newFakeElement()
	broken.text = "graph TD\nbroken"
	last := newFakeElement()
	last.text = "pie\n\"a\": 1"

	rend := &fakeRenderer{
		available:   true,
		errBySource: map[string]error{"graph TD\nbroken": errors.New("boom")},
	}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	// All three are candidates in the same pass; only the middle one fails.
	root := &fakeRoot{batches: [][]Element{{first, broken, last}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if len(rend.calls) != 3 {
		t.Fatalf("every candidate should reach the renderer: %#v", rend.calls)
	}
	for i, el := range []*fakeElement{first, last} {
		if len(el.replaced) != 1 || !strings.Contains(el.replaced[0], "<svg") {
			t.Fatalf("sibling %d must still render: %#v", i, el.replaced)
		}
		if el.attrs[processedAttr] != "true" {
			t.Fatalf("sibling %d should be claimed", i)
		}
	}
	if len(broken.replaced) != 1 || !strings.Contains(broken.replaced[0], "mermaid-error") {
		t.Fatalf("failing diagram should get an error panel: %#v", broken.replaced)
	}
	if !strings.Contains(broken.replaced[0], "graph TD\nbroken") {
		t.Fatalf("error panel should retain the original source: %s", broken.replaced[0])
	}
}

func TestMaterializeAbandonsWhenRendererUnavailable(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.text = "graph TD"
	rend := &fakeRenderer{available: false}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if root.queries != 0 {
		t.Fatal("candidates must not be queried when the renderer never comes up")
	}
	if len(rend.calls) != 0 {
		t.Fatalf("nothing should render: %#v", rend.calls)
	}
}

func TestMaterializeSettleDelayRequery(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	el.text = "graph TD"
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	// First query comes back empty, the re-query after the settle delay
	// finds the element.
	root := &fakeRoot{batches: [][]Element{nil, {el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if root.queries != 2 {
		t.Fatalf("expected exactly one re-query, got %d", root.queries)
	}
	if len(rend.calls) != 1 {
		t.Fatalf("late-arriving element should render: %#v", rend.calls)
	}
}

func TestMaterializeNilInputs(t *testing.T) {
	t.Parallel()

	m := NewMaterializer(nil, testLogger(), nil)
	if err := m.Materialize(context.Background(), &fakeRoot{}); err != nil {
		t.Fatalf("nil renderer should be a no-op, got %v", err)
	}

	m = NewMaterializer(&fakeRenderer{available: true}, testLogger(), nil)
	if err := m.Materialize(context.Background(), nil); err != nil {
		t.Fatalf("nil root should be a no-op, got %v", err)
	}
}

func TestMaterializeLeavesEmptyElementUnclaimed(t *testing.T) {
	t.Parallel()

	el := newFakeElement()
	rend := &fakeRenderer{available: true}
	m := NewMaterializer(rend, testLogger(), fastOptions())

	root := &fakeRoot{batches: [][]Element{{el}}}
	if err := m.Materialize(context.Background(), root); err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}

	if _, claimed := el.attrs[processedAttr]; claimed {
		t.Fatal("element without recoverable source must stay unclaimed")
	}
}
