package renderer

import (
	"regexp"
	"strings"
)

// Heading is one table-of-contents entry extracted from markdown source.
type Heading struct {
	Text  string `json:"text"`
	ID    string `json:"id"`
	Level int    `json:"level"`
}

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ExtractHeadings pulls ATX headings out of raw markdown for table-of-contents
// navigation. IDs are computed with the same slug function the renderer uses
// for heading anchors, so generated links always resolve.
func ExtractHeadings(markdown string) []Heading {
	if markdown == "" {
		return nil
	}

	var headings []Heading
	for _, m := range headingPattern.FindAllStringSubmatch(markdown, -1) {
		text := strings.TrimSpace(m[2])
		headings = append(headings, Heading{
			Level: len(m[1]),
			Text:  text,
			ID:    Slugify(text),
		})
	}
	return headings
}
