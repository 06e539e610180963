// Package transform provides custom parsing and rendering hooks for markdown elements.
package transform

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const mermaidLanguage = "mermaid"

// PlaceholderPrefix is the marker embedded in an HTML comment standing in for
// an extracted diagram. The format is chosen to resemble nothing an author
// would legitimately write in markdown.
const PlaceholderPrefix = "__MERMAID_PLACEHOLDER__"

// DiagramBlock is raw diagram source extracted from one fenced block,
// indexed by order of appearance within a single render invocation.
type DiagramBlock struct {
	ID   string
	Code string
}

// Env accumulates the diagram side-table for exactly one render call. It is
// threaded through the parser context rather than stored on the shared
// renderer instance so concurrent renders cannot observe each other's blocks.
type Env struct {
	Blocks []DiagramBlock
}

var diagramEnvKey = parser.NewContextKey()

// WithDiagramEnv attaches a per-invocation diagram side-table to the parser context.
func WithDiagramEnv(pc parser.Context, env *Env) {
	pc.Set(diagramEnvKey, env)
}

// DiagramEnv returns the side-table previously attached with WithDiagramEnv, or nil.
func DiagramEnv(pc parser.Context) *Env {
	if v := pc.Get(diagramEnvKey); v != nil {
		if env, ok := v.(*Env); ok {
			return env
		}
	}
	return nil
}

// MermaidExtractor pulls ```mermaid fences out of the normal rendering path.
// Each matching fence is replaced with a MermaidBlock node carrying the raw
// source byte-for-byte, and a DiagramBlock is appended to the invocation's
// side-table when one is attached.
type MermaidExtractor struct{}

// NewMermaidExtractor constructs the AST transformer.
func NewMermaidExtractor() parser.ASTTransformer {
	return &MermaidExtractor{}
}

// Transform implements parser.ASTTransformer.
func (t *MermaidExtractor) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	if node == nil {
		return
	}
	env := DiagramEnv(pc)
	index := 0
	t.walk(node, reader, env, &index)
}

func (t *MermaidExtractor) walk(parent ast.Node, reader text.Reader, env *Env, index *int) {
	for child := parent.FirstChild(); child != nil; {
		next := child.NextSibling()

		if block, ok := child.(*ast.FencedCodeBlock); ok && isMermaidBlock(block, reader.Source()) {
			code := blockSource(block, reader)
			replacement := &MermaidBlock{Index: *index, Code: code}
			replacement.SetBlankPreviousLines(block.HasBlankPreviousLines())
			copyAttributes(block, replacement)
			parent.ReplaceChild(parent, block, replacement)

			if env != nil {
				env.Blocks = append(env.Blocks, DiagramBlock{
					ID:   fmt.Sprintf("diagram-%d", *index),
					Code: code,
				})
			}
			*index++
			child = next
			continue
		}

		if child.HasChildren() {
			t.walk(child, reader, env, index)
		}
		child = next
	}
}

func isMermaidBlock(block *ast.FencedCodeBlock, source []byte) bool {
	lang := strings.TrimSpace(string(block.Language(source)))
	return strings.EqualFold(lang, mermaidLanguage)
}

func blockSource(block *ast.FencedCodeBlock, reader text.Reader) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		segment := block.Lines().At(i)
		buf.Write(segment.Value(reader.Source()))
	}
	return buf.String()
}

func copyAttributes(src ast.Node, dst ast.Node) {
	if src == nil || dst == nil || src.Attributes() == nil {
		return
	}
	for _, attr := range src.Attributes() {
		dst.SetAttribute(attr.Name, attr.Value)
	}
}

// MermaidBlock is an extracted diagram fence held in the AST until rendering.
type MermaidBlock struct {
	ast.BaseBlock
	Code  string
	Index int
}

// KindMermaidBlock identifies extracted diagram nodes.
var KindMermaidBlock = ast.NewNodeKind("MermaidBlock")

// Kind implements ast.Node.
func (b *MermaidBlock) Kind() ast.NodeKind {
	return KindMermaidBlock
}

// IsRaw marks the node as raw output.
func (b *MermaidBlock) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *MermaidBlock) Dump(source []byte, level int) {
	ast.DumpHelper(b, source, level, map[string]string{
		"Index": strconv.Itoa(b.Index),
		"Code":  fmt.Sprintf("%d bytes", len(b.Code)),
	}, nil)
}

// PlaceholderRenderer writes extracted diagram nodes as inert placeholder
// tokens. The token survives any later HTML handling untouched because it is
// comment-shaped; the segment splitter recovers the diagram by index.
type PlaceholderRenderer struct{}

// NewPlaceholderRenderer returns a renderer emitting placeholder tokens.
func NewPlaceholderRenderer() renderer.NodeRenderer {
	return &PlaceholderRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *PlaceholderRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMermaidBlock, r.renderPlaceholder)
}

func (r *PlaceholderRenderer) renderPlaceholder(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*MermaidBlock)
	if _, err := fmt.Fprintf(w, "<!--%s%d-->", PlaceholderPrefix, block.Index); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// ContainerRenderer writes extracted diagram nodes as fully-formed
// <pre class="mermaid"> containers with the source embedded entity-escaped in
// a data attribute. This is the shape consumed by the pre-rendered segmenter
// and by the in-browser bootstrap script.
type ContainerRenderer struct{}

// NewContainerRenderer returns a renderer emitting pre-rendered diagram containers.
func NewContainerRenderer() renderer.NodeRenderer {
	return &ContainerRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *ContainerRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMermaidBlock, r.renderContainer)
}

func (r *ContainerRenderer) renderContainer(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := node.(*MermaidBlock)
	_, err := fmt.Fprintf(w, `<pre class="mermaid" data-mermaid-code="%s">%s</pre>%s`,
		EscapeAttribute(block.Code), EscapeText(block.Code), "\n")
	if err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

var (
	attributeEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")
	textEscaper      = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// EscapeAttribute escapes a string for use inside a double-quoted HTML attribute.
func EscapeAttribute(s string) string { return attributeEscaper.Replace(s) }

// EscapeText escapes a string for use as HTML text content.
func EscapeText(s string) string { return textEscaper.Replace(s) }
