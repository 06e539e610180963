package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/tgmone/folio/internal/blog"
	"github.com/tgmone/folio/internal/content"
	"github.com/tgmone/folio/internal/renderer"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	funcs := template.FuncMap{
		"dict": func(values ...any) (map[string]any, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("dict requires an even number of args")
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				m[key] = values[i+1]
			}
			return m, nil
		},
		"urlquery": template.URLQueryEscaper,
		"isActive": strings.EqualFold,
		"joinTags": func(tags []string) string {
			return strings.Join(tags, ", ")
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("Jan 2, 2006")
		},
		"formatDate": func(raw string) string {
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, raw); err == nil {
					return t.Format("Jan 2, 2006")
				}
			}
			return raw
		},
	}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}
	return &templateRenderer{tmpl: base}, nil
}

func (r *templateRenderer) render(w io.Writer, name string, data any) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

type pageViewData struct {
	Title string
}

type homeViewData struct {
	Title    string
	Featured []content.Project
	Recent   []blog.Post
}

type projectsViewData struct {
	Title    string
	Projects []content.Project
}

type projectViewData struct {
	Title    string
	Project  content.Project
	HTML     template.HTML
	Headings []renderer.Heading
	Related  []content.Project
}

type blogsViewData struct {
	Title string
	Posts []blog.Post
}

type blogViewData struct {
	Title    string
	Post     blog.Post
	Body     []template.HTML
	Headings []renderer.Heading
}
