package diagram

import (
	"context"
	"fmt"
	stdhtml "html"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultPollAttempts = 20
	defaultSettleDelay  = 100 * time.Millisecond
)

// Options tune the materializer's waiting behavior. The zero value uses the
// defaults; NewID is overridable so tests get deterministic identifiers.
type Options struct {
	NewID        func() string
	PollInterval time.Duration
	PollAttempts int
	SettleDelay  time.Duration
}

// Materializer walks a document for diagram containers and replaces each with
// rendered SVG. Containers are processed one at a time in document order:
// diagram engines keep global state and are not assumed re-entrant, and
// sequential processing bounds memory spikes on diagram-heavy pages.
type Materializer struct {
	renderer     Renderer
	logger       *slog.Logger
	newID        func() string
	pollInterval time.Duration
	pollAttempts int
	settleDelay  time.Duration
}

// NewMaterializer constructs a materializer around the given renderer.
func NewMaterializer(renderer Renderer, logger *slog.Logger, opts *Options) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Materializer{
		renderer:     renderer,
		logger:       logger.With("component", "diagram"),
		newID:        defaultID,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
		settleDelay:  defaultSettleDelay,
	}
	if opts != nil {
		if opts.NewID != nil {
			m.newID = opts.NewID
		}
		if opts.PollInterval > 0 {
			m.pollInterval = opts.PollInterval
		}
		if opts.PollAttempts > 0 {
			m.pollAttempts = opts.PollAttempts
		}
		if opts.SettleDelay > 0 {
			m.settleDelay = opts.SettleDelay
		}
	}
	return m
}

// Materialize processes every unclaimed diagram container under root. A
// failed diagram is contained: it gets an inline error panel and its siblings
// still render. If the renderer is not yet available the pass is abandoned
// after a bounded poll; callers re-invoke after the next document update.
func (m *Materializer) Materialize(ctx context.Context, root Root) error {
	if root == nil || m.renderer == nil {
		return nil
	}

	if !m.awaitRenderer(ctx) {
		m.logger.Warn("diagram renderer unavailable, abandoning pass")
		return ctx.Err()
	}

	candidates := root.UnprocessedDiagrams()
	if len(candidates) == 0 {
		// The document may still be settling; look once more after a short delay.
		if err := sleepContext(ctx, m.settleDelay); err != nil {
			return err
		}
		candidates = root.UnprocessedDiagrams()
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, el := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.process(ctx, el)
	}
	return nil
}

func (m *Materializer) awaitRenderer(ctx context.Context) bool {
	if m.renderer.Available() {
		return true
	}
	for attempt := 0; attempt < m.pollAttempts; attempt++ {
		if err := sleepContext(ctx, m.pollInterval); err != nil {
			return false
		}
		if m.renderer.Available() {
			return true
		}
	}
	return false
}

func (m *Materializer) process(ctx context.Context, el Element) {
	// Already holds rendered output from another pass; just claim it.
	if el.HasDescendant("svg") {
		el.SetAttr(processedAttr, "true")
		return
	}

	code := recoverSource(el)
	if code == "" {
		// Leave unclaimed so a later pass can retry once content arrives.
		m.logger.Warn("no diagram source recovered, skipping element")
		return
	}

	if looksRendered(code) && !looksLikeDiagramSource(code) {
		// A racing pass may have replaced the content already; claiming or
		// re-rendering here would destroy good output.
		m.logger.Warn("recovered content looks already rendered, skipping element")
		return
	}

	code = strings.TrimSpace(code)
	el.SetAttr("data-original-code", code)
	el.SetAttr(processedAttr, "true")
	id := m.newID()
	el.SetAttr("id", id)

	svg, err := m.renderer.Render(ctx, id, code)
	if err != nil {
		m.logger.Warn("diagram render failed", slog.String("id", id), slog.Any("err", err))
		if rerr := el.ReplaceContent(errorPanel(err, code)); rerr != nil {
			m.logger.Error("replace with error panel failed", slog.Any("err", rerr))
		}
		return
	}

	if err := el.ReplaceContent(svg); err != nil {
		m.logger.Error("mount rendered diagram failed", slog.String("id", id), slog.Any("err", err))
	}
}

// recoverSource tries an ordered list of probes and returns the first
// non-empty result. The layering mirrors the ways diagram source may survive
// in a container: escaped in a data attribute, persisted from an earlier
// pass, as plain text content, as text content polluted by rendered
// leftovers, or only as entity-escaped inner markup.
func recoverSource(el Element) string {
	for _, p := range sourceProbes {
		if code := strings.TrimSpace(p.probe(el)); code != "" {
			return code
		}
	}
	return ""
}

type sourceProbe struct {
	name  string
	probe func(Element) string
}

var sourceProbes = []sourceProbe{
	{"data-mermaid-code", func(el Element) string {
		v, _ := el.Attr("data-mermaid-code")
		return stdhtml.UnescapeString(v)
	}},
	{"data-original-code", func(el Element) string {
		v, _ := el.Attr("data-original-code")
		return v
	}},
	{"text-content", func(el Element) string {
		return el.Text()
	}},
	{"text-without-rendered-children", func(el Element) string {
		return el.TextExcluding("style", "svg", "script")
	}},
	{"decoded-inner-markup", func(el Element) string {
		return stdhtml.UnescapeString(stripTags(el.InnerMarkup()))
	}},
}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTags(markup string) string {
	return tagPattern.ReplaceAllString(markup, "")
}

// diagramKeywords are the declaration words a mermaid document can start
// with. A recovered string starting with one of these is treated as source
// regardless of what else it contains.
var diagramKeywords = []string{
	"graph", "flowchart", "sequenceDiagram", "classDiagram", "stateDiagram",
	"erDiagram", "journey", "gantt", "pie", "gitgraph", "mindmap", "timeline",
	"C4Context", "C4Container", "C4Component", "quadrantChart", "requirement",
}

func looksLikeDiagramSource(code string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	for _, keyword := range diagramKeywords {
		if strings.HasPrefix(trimmed, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// looksRendered detects markers typical of rasterized output: stylesheet
// rules, inline SVG, or the id-namespacing mermaid writes into its styles.
func looksRendered(code string) bool {
	return strings.Contains(code, "#mermaid-") ||
		strings.Contains(code, "<svg") ||
		strings.Contains(code, "@keyframes") ||
		(strings.Contains(code, "font-family:") && !strings.Contains(code, "graph"))
}

func errorPanel(err error, code string) string {
	return `<div class="mermaid-error"><strong>Error rendering diagram:</strong><br/>` +
		stdhtml.EscapeString(err.Error()) +
		`<br/><details><summary>Show code</summary><pre>` +
		stdhtml.EscapeString(code) +
		`</pre></details></div>`
}

// defaultID generates a container identifier unique across concurrent
// diagrams in one document.
func defaultID() string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	if len(suffix) > 9 {
		suffix = suffix[:9]
	}
	return fmt.Sprintf("mermaid-%d-%s", time.Now().UnixMilli(), suffix)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
