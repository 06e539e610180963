// Package renderer converts markdown content into HTML and diagram-aware segments.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	d2renderer "github.com/tgmone/folio/internal/renderer/d2"
	"github.com/tgmone/folio/internal/renderer/transform"
)

// Metadata captures frontmatter data rendered alongside a project page.
type Metadata struct {
	Raw     map[string]any
	Title   string
	Excerpt string
	Tags    []string
	Related []string
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Excerpt != "" || len(m.Tags) > 0 || len(m.Related) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// Document represents a rendered project markdown file.
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
}

type cacheEntry struct {
	modTime time.Time
	doc     Document
}

// Service renders markdown in two profiles sharing one immutable configuration:
//
//   - the content profile used for blog posts, which extracts mermaid fences
//     into placeholder tokens so the result can be split into HTML and diagram
//     segments for deferred client-side rendering;
//   - the project profile used for locally authored project pages, with
//     chroma syntax highlighting, YAML frontmatter, heading anchors, and
//     server-rendered d2 diagrams.
//
// Both goldmark instances are configured once at construction and never
// mutated afterwards. All per-call state (the diagram side-table) travels
// through the parser context of a single Convert invocation, so concurrent
// renders never share mutable state.
type Service struct {
	content goldmark.Markdown
	project goldmark.Markdown
	logger  *slog.Logger
	cache   sync.Map // map[string]cacheEntry, keyed by project path
}

var (
	defaultOnce    sync.Once
	defaultService *Service
)

// Default returns the shared process-wide renderer, constructing it on first use.
func Default() *Service {
	defaultOnce.Do(func() {
		defaultService = NewService(nil)
	})
	return defaultService
}

// NewService constructs the renderer. If logger is nil the default slog
// logger is used.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "renderer")

	content := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(&externalLinkTransformer{}, 80),
				util.Prioritized(&headingIDTransformer{}, 90),
				util.Prioritized(transform.NewMermaidExtractor(), 100),
			),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			gmrenderer.WithNodeRenderers(
				util.Prioritized(transform.NewPlaceholderRenderer(), 100),
				util.Prioritized(transform.NewCodeBlockRenderer(), 200),
				util.Prioritized(transform.NewImageRenderer(), 200),
			),
		),
	)

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle("github-dark"),
		highlighting.WithFormatOptions(
			chromahtml.WithLineNumbers(false),
			chromahtml.WithClasses(true),
		),
		highlighting.WithWrapperRenderer(plainFenceWrapper()),
	)

	d2svc := d2renderer.New(logger, nil)

	project := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After,
			},
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
			parser.WithASTTransformers(
				util.Prioritized(&externalLinkTransformer{}, 80),
				util.Prioritized(&headingIDTransformer{}, 90),
				util.Prioritized(transform.NewMermaidExtractor(), 100),
				util.Prioritized(transform.NewD2Transformer(d2svc, logger), 110),
			),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			gmrenderer.WithNodeRenderers(
				util.Prioritized(transform.NewContainerRenderer(), 100),
				util.Prioritized(transform.NewD2BlockRenderer(), 100),
				util.Prioritized(transform.NewImageRenderer(), 200),
			),
		),
	)

	return &Service{
		content: content,
		project: project,
		logger:  logger,
	}
}

// Render converts blog markdown to a single HTML string. Diagram fences are
// replaced by placeholder tokens; callers that need the diagrams should use
// RenderContent instead.
func (s *Service) Render(markdown string) string {
	html, _, err := s.renderContent(markdown)
	if err != nil {
		s.logger.Error("render markdown failed", slog.Any("err", err))
		return ""
	}
	return html
}

// RenderContent converts blog markdown into an ordered segment sequence:
// HTML chunks interleaved with diagram segments in document order.
func (s *Service) RenderContent(markdown string) []Segment {
	html, blocks, err := s.renderContent(markdown)
	if err != nil {
		s.logger.Error("render markdown failed", slog.Any("err", err))
		return nil
	}
	return SplitSegments(html, blocks)
}

// RenderHTML derives a segment sequence from HTML that already contains
// pre-rendered diagram containers, e.g. content served out of a server-side
// cache instead of raw markdown.
func (s *Service) RenderHTML(html string) []Segment {
	return SegmentPrerendered(html)
}

func (s *Service) renderContent(markdown string) (string, []transform.DiagramBlock, error) {
	if markdown == "" {
		return "", nil, nil
	}

	env := &transform.Env{}
	pc := parser.NewContext()
	transform.WithDiagramEnv(pc, env)

	var buf bytes.Buffer
	if err := s.content.Convert([]byte(markdown), &buf, parser.WithContext(pc)); err != nil {
		return "", nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), env.Blocks, nil
}

// RenderProject converts a project markdown file to HTML with frontmatter
// metadata, caching results by path and modification time.
func (s *Service) RenderProject(ctx context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	if entry, ok := s.cache.Load(path); ok {
		if cached, ok := entry.(cacheEntry); ok {
			if !cached.modTime.IsZero() && modTime.Equal(cached.modTime) {
				return cached.doc, nil
			}
		}
	}

	pc := parser.NewContext()
	var buf bytes.Buffer
	if err := s.project.Convert(content, &buf, parser.WithContext(pc)); err != nil {
		return Document{}, fmt.Errorf("render project markdown: %w", err)
	}

	doc := Document{
		HTML:     buf.String(),
		Metadata: extractMetadata(pc),
		Modified: modTime,
		Raw:      string(content),
	}

	s.cache.Store(path, cacheEntry{modTime: modTime, doc: doc})
	return doc, nil
}

// Invalidate removes the cached project render for the given path.
func (s *Service) Invalidate(path string) {
	s.cache.Delete(path)
}

// plainFenceWrapper emits the default <pre><code> pair with a language class
// for fences the highlighter leaves untouched. Mermaid and d2 fences never
// reach it; they are replaced during parsing.
func plainFenceWrapper() highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}

		if entering {
			_, _ = w.WriteString("<pre><code")
			if lang, _ := ctx.Language(); len(bytes.TrimSpace(lang)) > 0 {
				_, _ = w.WriteString(` class="language-`)
				_, _ = w.Write(util.EscapeHTML(lang))
				_, _ = w.WriteString(`"`)
			}
			_, _ = w.WriteString(">")
			return
		}
		_, _ = w.WriteString("</code></pre>\n")
	}
}

// externalLinkTransformer makes absolute http(s) links open in a new browsing
// context with opener isolation. Relative and in-page links are untouched.
type externalLinkTransformer struct{}

func (t *externalLinkTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch typed := n.(type) {
		case *ast.Link:
			if isExternalURL(string(typed.Destination)) {
				setNewTabAttributes(typed)
			}
		case *ast.AutoLink:
			if isExternalURL(string(typed.URL(source))) {
				setNewTabAttributes(typed)
			}
		}
		return ast.WalkContinue, nil
	})
}

func setNewTabAttributes(n ast.Node) {
	n.SetAttributeString("target", []byte("_blank"))
	n.SetAttributeString("rel", []byte("noopener noreferrer"))
}

func isExternalURL(dest string) bool {
	lower := strings.ToLower(dest)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// headingIDTransformer assigns each heading a stable id derived from its
// literal text and inline-code content. Headings whose computed slug is empty
// receive no id. Author-supplied ids (attribute syntax) win.
type headingIDTransformer struct{}

func (t *headingIDTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if _, exists := heading.AttributeString("id"); exists {
			return ast.WalkContinue, nil
		}
		if slug := Slugify(headingLabel(heading, source)); slug != "" {
			heading.SetAttributeString("id", []byte(slug))
		}
		return ast.WalkContinue, nil
	})
}

// headingLabel joins the heading's literal text fragments with spaces,
// matching the input the slug function is defined over.
func headingLabel(heading *ast.Heading, source []byte) string {
	var parts []string
	_ = ast.Walk(heading, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := n.(type) {
		case *ast.Text:
			if s := string(typed.Segment.Value(source)); s != "" {
				parts = append(parts, s)
			}
		case *ast.String:
			if len(typed.Value) > 0 {
				parts = append(parts, string(typed.Value))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(parts, " ")
}

func extractMetadata(pc parser.Context) Metadata {
	raw := goldmarkmeta.Get(pc)
	var meta Metadata
	if raw == nil {
		return meta
	}

	meta.Raw = make(map[string]any)
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			if str, ok := toString(v); ok {
				meta.Title = str
			}
		case "excerpt", "description", "summary":
			if str, ok := toString(v); ok {
				meta.Excerpt = str
			}
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		case "related":
			meta.Related = toStringSlice(v)
		}
	}

	if len(meta.Raw) == 0 {
		meta.Raw = nil
	}
	return meta
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str, ok := toString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str, ok := toString(v); ok {
			return []string{str}
		}
		return nil
	}
}
