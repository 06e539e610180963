package transform

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// CodeBlockRenderer renders fenced code blocks as a <pre><code> pair carrying
// a language-<lang> class on both elements, with the body HTML-escaped.
// Mermaid fences never reach this renderer; the extractor replaces them
// during parsing.
type CodeBlockRenderer struct{}

// NewCodeBlockRenderer returns the fenced-code renderer.
func NewCodeBlockRenderer() renderer.NodeRenderer {
	return &CodeBlockRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *CodeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
}

func (r *CodeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	block := node.(*ast.FencedCodeBlock)

	if !entering {
		if _, err := w.WriteString("</code></pre>\n"); err != nil {
			return ast.WalkStop, err
		}
		return ast.WalkContinue, nil
	}

	class := ""
	if lang := strings.ToLower(strings.TrimSpace(string(block.Language(source)))); lang != "" {
		class = ` class="language-` + string(util.EscapeHTML([]byte(lang))) + `"`
	}

	if _, err := w.WriteString("<pre" + class + "><code" + class + ">"); err != nil {
		return ast.WalkStop, err
	}
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		if _, err := w.Write(util.EscapeHTML(line.Value(source))); err != nil {
			return ast.WalkStop, err
		}
	}
	return ast.WalkContinue, nil
}
