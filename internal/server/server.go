// Package server provides the HTTP server for the portfolio site.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tgmone/folio/internal/blog"
	"github.com/tgmone/folio/internal/config"
	"github.com/tgmone/folio/internal/content"
	"github.com/tgmone/folio/internal/renderer"
	"github.com/tgmone/folio/static"
)

// Server serves the portfolio pages: locally authored project showcases,
// blog posts fetched from the content API, and the static assets that
// materialize diagrams in the browser.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
	projects   *content.Store
	blog       *blog.Client
	renderer   *renderer.Service
	templates  *templateRenderer
	sanitizer  *bluemonday.Policy
	cfg        config.Config
}

// New constructs a Server with the provided configuration and services.
func New(cfg config.Config, logger *slog.Logger, projects *content.Store, blogClient *blog.Client, rendererSvc *renderer.Service) (*Server, error) {
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		projects:  projects,
		blog:      blogClient,
		renderer:  rendererSvc,
		templates: tmpl,
		sanitizer: newContentPolicy(),
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	staticHandler := http.StripPrefix("/static/", http.FileServer(s.resolveStaticFS()))
	s.mux.Handle("GET /static/{path...}", staticHandler)
	s.mux.Handle("HEAD /static/{path...}", staticHandler)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /sitemap.xml", s.handleSitemap)

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /about", s.handleAbout)
	s.mux.HandleFunc("GET /projects", s.handleProjects)
	s.mux.HandleFunc("GET /project/{key}", s.handleProject)
	s.mux.HandleFunc("GET /blogs", s.handleBlogs)
	s.mux.HandleFunc("GET /blog/{slug}", s.handleBlog)

	s.mux.HandleFunc("GET /api/search", s.handleSearch)

	if s.cfg.DevProxy && s.cfg.ContentAPIBaseURL != "" {
		proxy, err := newContentProxy(s.cfg.ContentAPIBaseURL, s.logger)
		if err != nil {
			s.logger.Warn("content proxy disabled", slog.Any("err", err))
		} else {
			s.mux.Handle("/api/content/{path...}", proxy)
		}
	}
}

func (s *Server) resolveStaticFS() http.FileSystem {
	dir := strings.TrimSpace(s.cfg.AssetsDir)
	if dir != "" {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			s.logger.Debug("serving assets from filesystem", slog.String("dir", dir))
			return http.Dir(dir)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("assets dir check failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	s.logger.Debug("serving embedded assets")
	return static.HTTP()
}

// Handler returns the fully wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware,
		forwardedHeadersMiddleware,
		gzipMiddleware,
		loggingMiddleware(s.logger, s.cfg.Verbose),
	)
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	var featured []content.Project
	if s.projects != nil {
		featured = s.projects.Projects()
		if len(featured) > 6 {
			featured = featured[:6]
		}
	}

	var recent []blog.Post
	if s.blog != nil {
		posts, err := s.blog.List(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "list posts failed", slog.Any("err", err))
		} else {
			recent = posts
			if len(recent) > 3 {
				recent = recent[:3]
			}
		}
	}

	s.renderPage(w, r, "home", homeViewData{
		Title:    "TGM",
		Featured: featured,
		Recent:   recent,
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "about", pageViewData{Title: "About"})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	var projects []content.Project
	if s.projects != nil {
		projects = s.projects.Projects()
	}
	s.renderPage(w, r, "projects", projectsViewData{
		Title:    "Projects",
		Projects: projects,
	})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var (
		project content.Project
		ok      bool
	)
	if s.projects != nil {
		project, ok = s.projects.Project(key)
	}
	if !ok {
		s.renderNotFound(w, r)
		return
	}

	var related []content.Project
	for _, rk := range project.Related {
		if rp, found := s.projects.Project(rk); found {
			related = append(related, rp)
		}
	}

	s.renderPage(w, r, "project", projectViewData{
		Title:    project.Title,
		Project:  project,
		HTML:     template.HTML(project.HTML), //nolint:gosec // rendered from trusted local markdown
		Headings: renderer.ExtractHeadings(project.Raw),
		Related:  related,
	})
}

func (s *Server) handleBlogs(w http.ResponseWriter, r *http.Request) {
	var posts []blog.Post
	if s.blog != nil {
		list, err := s.blog.List(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "list posts failed", slog.Any("err", err))
			http.Error(w, "failed to load posts", http.StatusBadGateway)
			return
		}
		posts = list
	}
	s.renderPage(w, r, "blogs", blogsViewData{
		Title: "Blog",
		Posts: posts,
	})
}

func (s *Server) handleBlog(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if s.blog == nil {
		s.renderNotFound(w, r)
		return
	}

	post, err := s.blog.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			s.renderNotFound(w, r)
			return
		}
		s.logger.ErrorContext(r.Context(), "load post failed",
			slog.String("slug", slug), slog.Any("err", err))
		http.Error(w, "failed to load post", http.StatusBadGateway)
		return
	}

	var (
		segments []renderer.Segment
		headings []renderer.Heading
	)
	if post.IsHTML() {
		segments = s.renderer.RenderHTML(s.sanitizer.Sanitize(post.Content))
	} else {
		segments = s.renderer.RenderContent(post.Content)
		headings = renderer.ExtractHeadings(post.Content)
	}

	body := make([]template.HTML, 0, len(segments))
	for _, seg := range segments {
		body = append(body, template.HTML(seg.ContainerHTML())) //nolint:gosec // sanitized or renderer output
	}

	s.renderPage(w, r, "blog", blogViewData{
		Title:    post.Title,
		Post:     post,
		Body:     body,
		Headings: headings,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}

	type hit struct {
		Key     string   `json:"key"`
		Title   string   `json:"title"`
		Excerpt string   `json:"excerpt,omitempty"`
		Tags    []string `json:"tags,omitempty"`
		URL     string   `json:"url"`
	}

	hits := []hit{}
	if s.projects != nil {
		for _, p := range s.projects.Search(query) {
			hits = append(hits, hit{
				Key:     p.Key,
				Title:   p.Title,
				Excerpt: p.Excerpt,
				Tags:    p.Tags,
				URL:     "/project/" + p.Key,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(hits),
		"results": hits,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.render(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "render template failed",
			slog.String("template", name), slog.Any("err", err))
	}
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := s.templates.render(w, "notfound", pageViewData{Title: "Not Found"}); err != nil {
		s.logger.ErrorContext(r.Context(), "render template failed",
			slog.String("template", "notfound"), slog.Any("err", err))
	}
}

// newContentPolicy builds the sanitizer applied to pre-rendered HTML arriving
// from the content API. On top of the standard user-content policy it keeps
// the diagram container contract intact so segmentation still finds the
// source, and the link attributes the renderer sets on external links.
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("pre", "code", "div", "span", "img", "table")
	p.AllowAttrs("data-mermaid-code", "data-processed", "data-original-code").OnElements("pre", "div")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6", "pre", "div")
	p.AllowAttrs("target", "rel").OnElements("a")
	return p
}
