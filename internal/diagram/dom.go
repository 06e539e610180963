// Package diagram upgrades embedded diagram placeholders in rendered
// documents into SVG, using an injected rendering capability. The traversal
// operates over a small element-tree abstraction so the materialization
// algorithm can run against parsed HTML documents and in-memory fakes alike.
package diagram

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// diagramContainerClass marks elements that carry diagram source awaiting
// materialization. The class is part of the container markup contract shared
// with the renderer and the pre-rendered segmenter.
const diagramContainerClass = "mermaid"

// processedAttr flags containers that have been claimed by a materialization
// pass, successfully or terminally. It is the only mutual-exclusion marker
// between overlapping passes.
const processedAttr = "data-processed"

// Renderer turns diagram source text into SVG markup. Implementations may be
// backed by a headless browser and become available only after startup, which
// Available reports.
type Renderer interface {
	Available() bool
	Render(ctx context.Context, id, source string) (string, error)
}

// Element is a minimal mutable view over one node of a markup tree.
type Element interface {
	// Attr returns the named attribute and whether it is present.
	Attr(name string) (string, bool)
	// SetAttr sets or replaces the named attribute.
	SetAttr(name, value string)
	// Text returns the concatenated text content of the subtree.
	Text() string
	// TextExcluding returns the text content with the named element subtrees
	// removed, defending against leftovers from earlier render passes.
	TextExcluding(tags ...string) string
	// InnerMarkup returns the serialized child content.
	InnerMarkup() string
	// ReplaceContent swaps the element's children for the parsed markup.
	ReplaceContent(markup string) error
	// HasDescendant reports whether any descendant element has the given tag.
	HasDescendant(tag string) bool
}

// Root enumerates materialization candidates in document order.
type Root interface {
	UnprocessedDiagrams() []Element
}

// Tree is an element tree parsed from an HTML document.
type Tree struct {
	doc *html.Node
}

// Parse reads an HTML document into a Tree.
func Parse(r io.Reader) (*Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Tree{doc: doc}, nil
}

// ParseString reads an HTML document from a string.
func ParseString(s string) (*Tree, error) {
	return Parse(strings.NewReader(s))
}

// HTML serializes the tree back to markup.
func (t *Tree) HTML() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, t.doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// UnprocessedDiagrams implements Root: every diagram container not yet
// claimed by a materialization pass, in document order.
func (t *Tree) UnprocessedDiagrams() []Element {
	var found []Element
	walk(t.doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "pre" {
			return
		}
		if !hasClass(n, diagramContainerClass) {
			return
		}
		if _, processed := nodeAttr(n, processedAttr); processed {
			return
		}
		found = append(found, &treeElement{n: n})
	})
	return found
}

type treeElement struct {
	n *html.Node
}

func (e *treeElement) Attr(name string) (string, bool) {
	return nodeAttr(e.n, name)
}

func (e *treeElement) SetAttr(name, value string) {
	for i := range e.n.Attr {
		if strings.EqualFold(e.n.Attr[i].Key, name) {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *treeElement) Text() string {
	var buf strings.Builder
	collectText(e.n, nil, &buf)
	return buf.String()
}

func (e *treeElement) TextExcluding(tags ...string) string {
	var buf strings.Builder
	collectText(e.n, tags, &buf)
	return buf.String()
}

func (e *treeElement) InnerMarkup() string {
	var buf bytes.Buffer
	for child := e.n.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return ""
		}
	}
	return buf.String()
}

func (e *treeElement) ReplaceContent(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.n)
	if err != nil {
		return err
	}
	for e.n.FirstChild != nil {
		e.n.RemoveChild(e.n.FirstChild)
	}
	for _, node := range nodes {
		e.n.AppendChild(node)
	}
	return nil
}

func (e *treeElement) HasDescendant(tag string) bool {
	match := false
	for child := e.n.FirstChild; child != nil && !match; child = child.NextSibling {
		walk(child, func(n *html.Node) {
			if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
				match = true
			}
		})
	}
	return match
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func collectText(n *html.Node, skipTags []string, buf *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buf.WriteString(child.Data)
			continue
		}
		if child.Type == html.ElementNode && tagIn(child.Data, skipTags) {
			continue
		}
		collectText(child, skipTags, buf)
	}
}

func tagIn(tag string, tags []string) bool {
	for _, t := range tags {
		if strings.EqualFold(tag, t) {
			return true
		}
	}
	return false
}

func nodeAttr(n *html.Node, name string) (string, bool) {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	val, ok := nodeAttr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(val) {
		if c == class {
			return true
		}
	}
	return false
}
