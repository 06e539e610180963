// Package blog fetches posts from the headless content API. The API exposes
// generic content blocks per project; this client filters them down to
// blog-shaped entries, gives every entry a stable id and a URL slug, and
// caches the list so page views do not fan out into upstream requests.
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no post matches the requested slug or id.
var ErrNotFound = errors.New("post not found")

const (
	defaultBaseURL  = "https://api.foligo.tech"
	defaultCacheTTL = 5 * time.Minute
	requestTimeout  = 10 * time.Second
)

// Post is one blog entry.
type Post struct {
	ID        string
	Slug      string
	Title     string
	Excerpt   string
	Type      string
	Content   string
	Tags      []string
	CreatedAt string
	UpdatedAt string
}

// IsHTML reports whether the post body arrived pre-rendered. Some upstream
// editors store HTML instead of markdown; the giveaway is a leading tag.
func (p Post) IsHTML() bool {
	trimmed := strings.TrimSpace(p.Content)
	return strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ">")
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCacheTTL overrides how long a fetched post list stays fresh. A
// non-positive value disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// Client talks to the content API for one project.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	logger     *slog.Logger
	cacheTTL   time.Duration

	mu        sync.Mutex
	cached    []Post
	fetchedAt time.Time
}

// NewClient constructs a client. An empty baseURL falls back to the public
// API endpoint. An empty projectID is allowed and yields empty listings, so a
// site without upstream content still serves.
func NewClient(baseURL, projectID string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "blog"),
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List returns all blog posts for the project, newest cache first. Results
// are cached for the configured TTL.
func (c *Client) List(ctx context.Context) ([]Post, error) {
	if c.projectID == "" {
		return nil, nil
	}

	c.mu.Lock()
	if c.cached != nil && c.cacheTTL > 0 && time.Since(c.fetchedAt) < c.cacheTTL {
		posts := c.cached
		c.mu.Unlock()
		return posts, nil
	}
	c.mu.Unlock()

	items, err := c.fetchItems(ctx)
	if err != nil {
		return nil, err
	}
	posts := assemblePosts(items)

	c.mu.Lock()
	c.cached = posts
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return posts, nil
}

// GetBySlug finds a post by its URL slug, falling back to a raw id match for
// links minted before slugs existed.
func (c *Client) GetBySlug(ctx context.Context, slug string) (Post, error) {
	if slug == "" {
		return Post{}, ErrNotFound
	}
	posts, err := c.List(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.Slug == slug || (p.ID != "" && p.ID == slug) {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

// Invalidate drops the cached post list.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Client) fetchItems(ctx context.Context) ([]apiItem, error) {
	url := fmt.Sprintf("%s/api/projects/%s/content", c.baseURL, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch content: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read content response: %w", err)
	}
	return decodeItems(body)
}

// decodeItems accepts both response shapes the API has shipped: a bare array
// and an object wrapping the array under "items".
func decodeItems(body []byte) ([]apiItem, error) {
	var items []apiItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []apiItem `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode content response: %w", err)
	}
	return wrapped.Items, nil
}

// apiItem mirrors the loose upstream schema: several generations of field
// names coexist and any of them may carry the value.
type apiItem struct {
	ID          flexID   `json:"id"`
	LegacyID    flexID   `json:"_id"`
	ContentID   flexID   `json:"contentId"`
	UID         flexID   `json:"uid"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Content     string   `json:"content"`
	Body        string   `json:"body"`
	Excerpt     string   `json:"excerpt"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// flexID tolerates ids serialized as strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (item apiItem) normalizedID() string {
	for _, id := range []flexID{item.ID, item.LegacyID, item.ContentID} {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

func (item apiItem) kind() string {
	if item.Type != "" {
		return item.Type
	}
	return item.Category
}

// isBloggy keeps entries typed as blogs or posts, plus untyped entries, which
// older projects used for everything.
func (item apiItem) isBloggy() bool {
	kind := strings.ToLower(item.kind())
	return kind == "" || strings.Contains(kind, "blog") || strings.Contains(kind, "post")
}

func assemblePosts(items []apiItem) []Post {
	var posts []Post
	for _, item := range items {
		if !item.isBloggy() {
			continue
		}

		title := item.Title
		if title == "" {
			title = item.Name
		}
		id := item.normalizedID()

		slug := item.Slug
		if slug == "" {
			slug = GenerateSlug(title)
		}
		if slug == "" {
			slug = id
		}
		if slug == "" {
			slug = string(item.UID)
		}

		content := item.Content
		if content == "" {
			content = item.Body
		}
		excerpt := item.Excerpt
		if excerpt == "" {
			excerpt = item.Description
		}

		posts = append(posts, Post{
			ID:        id,
			Slug:      slug,
			Title:     title,
			Excerpt:   excerpt,
			Type:      item.kind(),
			Content:   content,
			Tags:      item.Tags,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return posts
}

var (
	slugSeparatorPattern = regexp.MustCompile(`[\s_]+`)
	slugInvalidPattern   = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphenRunPattern = regexp.MustCompile(`-+`)
)

// GenerateSlug derives a URL slug from a title. Separators become hyphens,
// everything outside [a-z0-9-] is dropped, and hyphen runs collapse.
func GenerateSlug(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugSeparatorPattern.ReplaceAllString(s, "-")
	s = slugInvalidPattern.ReplaceAllString(s, "")
	s = slugHyphenRunPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
