package renderer

import (
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"
)

// Patterns for the pre-rendered diagram container contract. The container is
// matched structurally rather than through a full HTML parse: the producing
// render path emits exactly this shape and nothing in between can nest
// another pre element inside it.
var (
	prerenderedContainerPattern = regexp.MustCompile(`(?is)<pre class="mermaid".*?</pre>`)
	diagramCodeAttrPattern      = regexp.MustCompile(`(?i)data-mermaid-code="([^"]*)"`)
	innerTagPattern             = regexp.MustCompile(`(?i)</?(?:pre|code)[^>]*>`)
)

// SegmentPrerendered re-derives a segment sequence from HTML that was
// produced by a render path which embeds diagrams directly as
// <pre class="mermaid"> containers. The diagram source is taken from the
// entity-escaped data-mermaid-code attribute when present, otherwise from the
// container's inner text with nested pre/code markup stripped. Containers
// yielding no decoded source are dropped entirely: there is nothing to
// materialize for them.
func SegmentPrerendered(html string) []Segment {
	if html == "" {
		return nil
	}

	var segments []Segment
	last := 0
	htmlKey := 0
	diagramCount := 0

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

	for _, m := range prerenderedContainerPattern.FindAllStringIndex(html, -1) {
		flush(html[last:m[0]])

		container := html[m[0]:m[1]]
		var code string
		if attr := diagramCodeAttrPattern.FindStringSubmatch(container); attr != nil {
			code = stdhtml.UnescapeString(attr[1])
		} else {
			inner := innerTagPattern.ReplaceAllString(container, "")
			code = strings.TrimSpace(stdhtml.UnescapeString(inner))
		}

		if code != "" {
			id := fmt.Sprintf("mermaid-html-%d", diagramCount)
			diagramCount++
			segments = append(segments, Segment{
				Type: SegmentDiagram,
				Code: code,
				ID:   id,
				Key:  id,
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
