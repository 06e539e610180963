// Package exporter writes the site to a directory of static files by
// rendering every route through the live HTTP handler. Diagram containers in
// the exported HTML can optionally be materialized to SVG at export time, so
// the published pages work without JavaScript.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tgmone/folio/internal/blog"
	"github.com/tgmone/folio/internal/content"
	"github.com/tgmone/folio/internal/diagram"
	"github.com/tgmone/folio/static"
)

const indexHTML = "index.html"

// Options configure the static export behavior.
type Options struct {
	OutputDir           string
	AssetsDir           string
	CleanOutput         bool
	MaterializeDiagrams bool
}

// Exporter captures site routes through an HTTP handler and writes the
// responses as files.
type Exporter struct {
	handler  http.Handler
	projects *content.Store
	blog     *blog.Client
	diagrams diagram.Renderer
	logger   *slog.Logger
}

// New constructs an exporter around the site handler. diagramRenderer may be
// nil, in which case diagram containers are exported unmaterialized and left
// for the in-browser bootstrap.
func New(handler http.Handler, projects *content.Store, blogClient *blog.Client, diagramRenderer diagram.Renderer, logger *slog.Logger) (*Exporter, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		handler:  handler,
		projects: projects,
		blog:     blogClient,
		diagrams: diagramRenderer,
		logger:   logger.With("component", "exporter"),
	}, nil
}

// Export writes the whole site to opts.OutputDir.
func (e *Exporter) Export(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return errors.New("output directory is required")
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output: %w", err)
	}
	if err := e.prepareOutputDir(outputDir, opts.CleanOutput); err != nil {
		return err
	}

	start := time.Now()

	routes, err := e.collectRoutes(ctx)
	if err != nil {
		return err
	}

	var materializer *diagram.Materializer
	if opts.MaterializeDiagrams && e.diagrams != nil {
		materializer = diagram.NewMaterializer(e.diagrams, e.logger, nil)
	}

	written := 0
	for _, route := range routes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, contentType, err := e.capture(ctx, route)
		if err != nil {
			return fmt.Errorf("render %s: %w", route, err)
		}

		if materializer != nil && strings.HasPrefix(contentType, "text/html") {
			body, err = e.materialize(ctx, materializer, route, body)
			if err != nil {
				return fmt.Errorf("materialize %s: %w", route, err)
			}
		}

		dest := filepath.Join(outputDir, filepath.FromSlash(outputPath(route)))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
			return fmt.Errorf("create directory for %s: %w", route, err)
		}
		if err := os.WriteFile(dest, body, 0o644); err != nil { //nolint:gosec // standard file permissions
			return fmt.Errorf("write %s: %w", route, err)
		}
		written++
	}

	if err := e.copyAssetBundle(filepath.Join(outputDir, "static"), opts.AssetsDir); err != nil {
		return err
	}

	e.logger.Info("export complete",
		slog.Int("pages", written),
		slog.String("output", outputDir),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// collectRoutes lists every exportable path: the fixed pages, one per
// project, one per blog post, and the sitemap.
func (e *Exporter) collectRoutes(ctx context.Context) ([]string, error) {
	routes := []string{"/", "/about", "/projects", "/blogs", "/sitemap.xml"}

	if e.projects != nil {
		for _, p := range e.projects.Projects() {
			routes = append(routes, "/project/"+p.Key)
		}
	}

	if e.blog != nil {
		posts, err := e.blog.List(ctx)
		if err != nil {
			// Ship the rest of the site rather than failing the export.
			e.logger.Warn("list posts failed, exporting without blog pages", slog.Any("err", err))
		}
		for _, post := range posts {
			routes = append(routes, "/blog/"+post.Slug)
		}
	}

	return routes, nil
}

// capture renders one route through the handler and returns the body.
func (e *Exporter) capture(ctx context.Context, route string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route, nil)
	if err != nil {
		return nil, "", err
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return rec.Body.Bytes(), res.Header.Get("Content-Type"), nil
}

func (e *Exporter) materialize(ctx context.Context, m *diagram.Materializer, route string, body []byte) ([]byte, error) {
	tree, err := diagram.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if err := m.Materialize(ctx, tree); err != nil {
		return nil, err
	}
	html, err := tree.HTML()
	if err != nil {
		return nil, fmt.Errorf("serialize page: %w", err)
	}
	e.logger.Debug("diagrams materialized", slog.String("route", route))
	return []byte(html), nil
}

func (e *Exporter) prepareOutputDir(output string, clean bool) error {
	if clean {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}
	return os.MkdirAll(output, 0o755) //nolint:gosec // standard directory permissions
}

func (e *Exporter) copyAssetBundle(dest, override string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("reset assets dir: %w", err)
	}
	override = strings.TrimSpace(override)
	if override != "" {
		if info, err := os.Stat(override); err == nil && info.IsDir() {
			if err := copyAssets(override, dest); err != nil {
				return fmt.Errorf("copy override assets: %w", err)
			}
			e.logger.Debug("exporter using override assets", slog.String("source", override))
			return nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat assets override: %w", err)
		}
	}

	if err := static.CopyAll(dest); err != nil {
		return fmt.Errorf("copy embedded assets: %w", err)
	}
	return nil
}

// outputPath maps a route to its file location: directory-style URLs get an
// index.html so exported links keep working without extensions.
func outputPath(route string) string {
	trimmed := strings.Trim(route, "/")
	if trimmed == "" {
		return indexHTML
	}
	if strings.Contains(filepath.Base(trimmed), ".") {
		return trimmed
	}
	return trimmed + "/" + indexHTML
}

func copyAssets(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("assets directory %s does not exist", src)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("assets path %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755) //nolint:gosec // standard directory permissions
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:gosec // standard directory permissions
			return err
		}
		data, err := os.ReadFile(path) //nolint:gosec // path from validated source directory
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644) //nolint:gosec // standard file permissions
	})
}
