package server

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// staticPages are the fixed routes always present in the sitemap.
var staticPages = []string{"/", "/about", "/projects", "/blogs"}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// handleSitemap emits the sitemap against the canonical base URL. The
// configured origin is always used, never the request host: crawl requests
// during prerendering arrive via localhost.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	pages := append([]string(nil), staticPages...)

	if s.projects != nil {
		for _, p := range s.projects.Projects() {
			pages = append(pages, "/project/"+p.Key)
		}
	}

	if s.blog != nil {
		posts, err := s.blog.List(r.Context())
		if err != nil {
			// The sitemap still ships without blog entries.
			s.logger.WarnContext(r.Context(), "sitemap: list posts failed", slog.Any("err", err))
		}
		for _, post := range posts {
			pages = append(pages, "/blog/"+post.Slug)
		}
	}

	set := sitemapURLSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]sitemapURL, 0, len(pages)),
	}
	for _, page := range pages {
		priority := "0.8"
		if page == "/" {
			priority = "1.0"
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.cfg.BaseURL + page,
			ChangeFreq: "weekly",
			Priority:   priority,
		})
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		s.logger.ErrorContext(r.Context(), "encode sitemap failed", slog.Any("err", err))
	}
}
