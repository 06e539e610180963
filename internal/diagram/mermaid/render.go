// Package mermaid renders mermaid diagram source to SVG through a headless
// browser. The mermaid engine is a JavaScript library with no native port, so
// a single hidden page hosts the library and every render call is evaluated
// inside it.
package mermaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrEmptyDiagram is returned when the diagram source is blank.
var ErrEmptyDiagram = errors.New("empty diagram source")

const defaultTimeout = 15 * time.Second

// hostPage is the document loaded into the headless page. The mermaid bundle
// is pinned so output stays stable across deployments.
const hostPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.min.js"></script>
<script>
if (window.mermaid) {
	window.mermaid.initialize({ startOnLoad: false, securityLevel: "strict" });
}
</script>
</head>
<body></body>
</html>`

// Option configures a Renderer.
type Option func(*Renderer)

// WithTimeout caps the duration of a single render call.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Renderer) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithBrowserBin points the launcher at a pre-installed browser binary
// instead of letting it download one.
func WithBrowserBin(bin string) Option {
	return func(r *Renderer) {
		r.browserBin = bin
	}
}

// Renderer drives a headless browser page hosting the mermaid library.
// Render calls are serialized: mermaid keeps global state inside the page and
// interleaved renders corrupt each other's style scoping.
type Renderer struct {
	logger     *slog.Logger
	timeout    time.Duration
	browserBin string

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	ready   bool
}

// New constructs a Renderer. The browser is launched lazily on the first
// Render call so construction stays cheap when no page contains a diagram.
func New(logger *slog.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		logger:     logger.With("component", "mermaid"),
		timeout:    defaultTimeout,
		browserBin: os.Getenv("ROD_BROWSER_BIN"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether the mermaid engine is loaded and callable. A
// false result is not terminal: the browser may still be starting up, and
// callers are expected to poll.
func (r *Renderer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.ready {
		if err := r.ensurePage(); err != nil {
			r.logger.Debug("mermaid engine not ready", slog.Any("err", err))
			return false
		}
	}

	res, err := r.page.Eval(`() => typeof window.mermaid !== "undefined"`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// Render compiles diagram source into SVG markup. The id becomes the root id
// of the generated SVG and must be unique within the destination document.
func (r *Renderer) Render(ctx context.Context, id, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptyDiagram
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensurePage(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.page.Context(ctx).Eval(`async (id, code) => {
		const { svg } = await window.mermaid.render(id, code);
		return svg;
	}`, id, source)
	if err != nil {
		return "", fmt.Errorf("mermaid render: %w", err)
	}

	r.logger.Debug("diagram rendered",
		slog.String("id", id),
		slog.Duration("elapsed", time.Since(start)))
	return res.Value.Str(), nil
}

// Close shuts down the browser. The renderer cannot be reused afterwards.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ready = false
	r.page = nil
	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// ensurePage launches the browser and loads the host document. Callers must
// hold r.mu.
func (r *Renderer) ensurePage() error {
	if r.ready {
		return nil
	}

	if r.browser == nil {
		l := launcher.New()
		if r.browserBin != "" {
			l = l.Bin(r.browserBin)
		}
		if os.Getenv("CI") == "true" || r.browserBin != "" {
			l = l.NoSandbox(true)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		browser := rod.New().ControlURL(u)
		if err := browser.Connect(); err != nil {
			return fmt.Errorf("connect browser: %w", err)
		}
		r.browser = browser
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	if err := page.SetDocumentContent(hostPage); err != nil {
		_ = page.Close()
		return fmt.Errorf("load host document: %w", err)
	}
	if err := page.Timeout(r.timeout).WaitLoad(); err != nil {
		_ = page.Close()
		return fmt.Errorf("wait host document: %w", err)
	}

	r.page = page
	r.ready = true
	return nil
}
