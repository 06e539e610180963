// Package folio provides a personal portfolio and blog site with
// diagram-aware markdown rendering.
//
// Regenerate the syntax highlighting stylesheet using:
//
//	go generate
package folio

//go:generate sh -c "go run ./tools/generate-chroma-css > static/css/chroma.css"
