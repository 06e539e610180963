// Package content maintains the project showcase: markdown files with YAML
// frontmatter rendered into an in-memory catalog that rebuilds when the
// source directory changes.
package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tgmone/folio/internal/renderer"
)

// Project is one rendered showcase entry. Key is the markdown filename
// without extension and doubles as the URL path component.
type Project struct {
	Key      string
	Title    string
	Excerpt  string
	Tags     []string
	Related  []string
	HTML     string
	Raw      string
	Modified time.Time
}

// snapshot is an immutable view of the catalog, swapped atomically on rebuild.
type snapshot struct {
	ordered []Project
	byKey   map[string]Project
}

// Store renders and caches the project catalog rooted at one directory.
type Store struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	renderer *renderer.Service
	root     string
	current  atomic.Pointer[snapshot]
}

// NewStore builds the initial catalog from root and starts watching it for
// changes.
func NewStore(parentCtx context.Context, root string, rendererSvc *renderer.Service, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("projects directory must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve projects directory: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s := &Store{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "content"),
		renderer: rendererSvc,
		root:     absRoot,
	}

	if err := s.rebuild(ctx); err != nil {
		cancel()
		return nil, err
	}
	if err := s.startWatcher(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Close stops the watcher and releases resources.
func (s *Store) Close() error {
	s.cancel()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Projects returns the catalog in display order: explicit frontmatter order
// first, then title.
func (s *Store) Projects() []Project {
	if snap := s.current.Load(); snap != nil {
		return snap.ordered
	}
	return nil
}

// Project looks up one entry by key.
func (s *Store) Project(key string) (Project, bool) {
	snap := s.current.Load()
	if snap == nil {
		return Project{}, false
	}
	p, ok := snap.byKey[key]
	return p, ok
}

// Search matches the query against titles, tags, and excerpts,
// case-insensitively. An empty query returns nothing.
func (s *Store) Search(query string) []Project {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var hits []Project
	for _, p := range s.Projects() {
		if matchesQuery(p, q) {
			hits = append(hits, p)
		}
	}
	return hits
}

func matchesQuery(p Project, q string) bool {
	if strings.Contains(strings.ToLower(p.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Excerpt), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *Store) rebuild(ctx context.Context) error {
	var projects []Project
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdownPath(path) {
			return nil
		}

		p, err := s.loadProject(ctx, path)
		if err != nil {
			s.logger.Warn("skipping unreadable project",
				slog.String("path", path), slog.Any("err", err))
			return nil
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan projects: %w", err)
	}

	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Title != projects[j].Title {
			return projects[i].Title < projects[j].Title
		}
		return projects[i].Key < projects[j].Key
	})

	byKey := make(map[string]Project, len(projects))
	for _, p := range projects {
		byKey[p.Key] = p
	}
	s.current.Store(&snapshot{ordered: projects, byKey: byKey})
	return nil
}

func (s *Store) loadProject(ctx context.Context, path string) (Project, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Project{}, fmt.Errorf("stat project: %w", err)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from walking the configured root
	if err != nil {
		return Project{}, fmt.Errorf("read project: %w", err)
	}

	doc, err := s.renderer.RenderProject(ctx, path, info.ModTime(), data)
	if err != nil {
		return Project{}, err
	}

	key := projectKey(path)
	title := doc.Metadata.Title
	if title == "" {
		title = titleFromKey(key)
	}

	return Project{
		Key:      key,
		Title:    title,
		Excerpt:  doc.Metadata.Excerpt,
		Tags:     doc.Metadata.Tags,
		Related:  doc.Metadata.Related,
		HTML:     doc.HTML,
		Raw:      doc.Raw,
		Modified: doc.Modified,
	}, nil
}

func projectKey(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// titleFromKey turns "android-ota-update" into "Android Ota Update" as a
// fallback when frontmatter omits a title.
func titleFromKey(key string) string {
	words := strings.Split(key, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	if err := s.watchRecursive(s.root); err != nil {
		return err
	}

	go s.runWatcher()
	return nil
}

func (s *Store) runWatcher() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", slog.Any("err", err))
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}

	s.logger.Debug("fsnotify event",
		slog.String("path", event.Name), slog.String("op", event.Op.String()))

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = s.watchRecursive(event.Name)
		}
	}

	if isMarkdownPath(event.Name) &&
		event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.renderer.Invalidate(event.Name)
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.rebuild(ctx); err != nil {
		s.logger.Error("rebuild catalog failed", slog.Any("err", err))
	}
}

func (s *Store) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(path); err != nil {
				s.logger.Warn("failed to watch directory",
					slog.String("path", path), slog.Any("err", err))
			}
		}
		return nil
	})
}

func isMarkdownPath(path string) bool {
	name := strings.ToLower(path)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}
