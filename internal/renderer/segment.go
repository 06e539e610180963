package renderer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tgmone/folio/internal/renderer/transform"
)

// SegmentType discriminates the two kinds of content segments.
type SegmentType string

const (
	// SegmentHTML marks inert markup rendered verbatim by the presentation layer.
	SegmentHTML SegmentType = "html"
	// SegmentDiagram marks diagram source awaiting client-side materialization.
	SegmentDiagram SegmentType = "diagram"
)

// Segment is one ordered unit of a split document: either inert HTML or a
// diagram whose source must be rendered in a later pass. Key is unique within
// one segment sequence and stable for a given input, so the presentation
// layer can use it for node identity.
type Segment struct {
	Type    SegmentType `json:"type"`
	Content string      `json:"content,omitempty"`
	Code    string      `json:"code,omitempty"`
	ID      string      `json:"id,omitempty"`
	Key     string      `json:"key"`
}

// ContainerHTML serializes the segment for static delivery. Diagram segments
// become the pre-rendered container form that SegmentPrerendered and the
// client-side materializer both understand; HTML segments pass through.
func (s Segment) ContainerHTML() string {
	if s.Type != SegmentDiagram {
		return s.Content
	}
	var b strings.Builder
	b.WriteString(`<pre class="mermaid"`)
	if s.ID != "" {
		b.WriteString(` id="` + transform.EscapeAttribute(s.ID) + `"`)
	}
	b.WriteString(` data-mermaid-code="` + transform.EscapeAttribute(s.Code) + `">`)
	b.WriteString(transform.EscapeText(s.Code))
	b.WriteString("</pre>")
	return b.String()
}

var placeholderPattern = regexp.MustCompile(`<!--` + transform.PlaceholderPrefix + `(\d+)-->`)

// SplitSegments scans rendered HTML for diagram placeholder tokens and splits
// it into an ordered segment sequence. Each placeholder is resolved against
// blocks by index; a token referencing a missing block is elided. HTML chunks
// that are pure whitespace are dropped so the presentation layer does not
// mount empty nodes. Token-free non-empty input yields a single HTML segment.
func SplitSegments(html string, blocks []transform.DiagramBlock) []Segment {
	if html == "" {
		return nil
	}

	var segments []Segment
	last := 0
	htmlKey := 0

	flush := func(chunk string) {
		if strings.TrimSpace(chunk) == "" {
			return
		}
		segments = append(segments, Segment{
			Type:    SegmentHTML,
			Content: chunk,
			Key:     fmt.Sprintf("html-%d", htmlKey),
		})
		htmlKey++
	}

	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(html, -1) {
		flush(html[last:m[0]])

		index, err := strconv.Atoi(html[m[2]:m[3]])
		if err == nil && index >= 0 && index < len(blocks) {
			block := blocks[index]
			segments = append(segments, Segment{
				Type: SegmentDiagram,
				Code: block.Code,
				ID:   block.ID,
				Key:  block.ID,
			})
		}

		last = m[1]
	}

	flush(html[last:])

	if len(segments) == 0 {
		segments = append(segments, Segment{
			Type:    SegmentHTML,
			Content: html,
			Key:     fmt.Sprintf("html-%d", htmlKey),
		})
	}

	return segments
}
