// Command generate-chroma-css prints the stylesheet for the chroma style the
// highlighted code blocks use. Run through go generate; the output is
// committed at static/css/chroma.css.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

const styleName = "github-dark"

func main() {
	style := styles.Get(styleName)
	if style == nil {
		fmt.Fprintf(os.Stderr, "unknown chroma style %q\n", styleName)
		os.Exit(1)
	}

	formatter := html.New(
		html.WithClasses(true),
		html.ClassPrefix(""),
	)
	if err := formatter.WriteCSS(os.Stdout, style); err != nil {
		fmt.Fprintf(os.Stderr, "write css: %v\n", err)
		os.Exit(1)
	}
}
