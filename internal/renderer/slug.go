package renderer

import (
	"regexp"
	"strings"
)

var (
	slugStripPattern      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespacePattern = regexp.MustCompile(`\s+`)
)

// Slugify derives a URL- and anchor-safe identifier from heading text.
// The exact transformation is shared between heading id generation and
// table-of-contents extraction; the two must agree or in-page links break.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStripPattern.ReplaceAllString(s, "")
	return slugWhitespacePattern.ReplaceAllString(s, "-")
}
