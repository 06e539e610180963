package transform

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// defaultImageAlt is injected when an author leaves the alt text empty, so
// images are never announced as nameless by assistive technology.
const defaultImageAlt = "Content image"

// imageClass is applied to every content image for consistent presentation.
const imageClass = "rounded-lg shadow-sm"

// ImageRenderer renders markdown images with a fixed presentational class and
// a guaranteed non-empty alt attribute.
type ImageRenderer struct{}

// NewImageRenderer returns the image renderer.
func NewImageRenderer() renderer.NodeRenderer {
	return &ImageRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *ImageRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindImage, r.renderImage)
}

func (r *ImageRenderer) renderImage(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	img := node.(*ast.Image)

	if _, err := w.WriteString(`<img src="`); err != nil {
		return ast.WalkStop, err
	}
	if !htmlrenderer.IsDangerousURL(img.Destination) {
		if _, err := w.Write(util.EscapeHTML(util.URLEscape(img.Destination, true))); err != nil {
			return ast.WalkStop, err
		}
	}

	alt := textContent(img, source)
	if alt == "" {
		alt = defaultImageAlt
	}
	if _, err := w.WriteString(`" alt="` + EscapeAttribute(alt) + `" class="` + imageClass + `"`); err != nil {
		return ast.WalkStop, err
	}

	if img.Title != nil {
		if _, err := w.WriteString(` title="`); err != nil {
			return ast.WalkStop, err
		}
		if _, err := w.Write(util.EscapeHTML(img.Title)); err != nil {
			return ast.WalkStop, err
		}
		if err := w.WriteByte('"'); err != nil {
			return ast.WalkStop, err
		}
	}
	if img.Attributes() != nil {
		htmlrenderer.RenderAttributes(w, img, htmlrenderer.ImageAttributeFilter)
	}
	if _, err := w.WriteString(">"); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// textContent flattens the literal text beneath a node.
func textContent(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := n.(type) {
		case *ast.Text:
			buf.Write(typed.Segment.Value(source))
		case *ast.String:
			buf.Write(typed.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
