package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// contentProxyPrefix is stripped from incoming paths before forwarding, so
// /api/content/api/projects/p1/content hits /api/projects/p1/content upstream.
const contentProxyPrefix = "/api/content/"

// newContentProxy forwards API requests to the content service during local
// development, avoiding browser CORS restrictions. Method, query, and body
// pass through; upstream status codes bubble up unchanged.
func newContentProxy(baseURL string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse content API URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("content API URL missing scheme or host: %q", baseURL)
	}

	proxyLogger := logger.With("component", "content_proxy")

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := strings.TrimPrefix(pr.In.URL.Path, contentProxyPrefix)
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = "/" + strings.TrimPrefix(path, "/")
			pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			pr.Out.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			proxyLogger.WarnContext(r.Context(), "upstream request failed",
				slog.String("path", r.URL.Path), slog.Any("err", err))
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error":   true,
				"message": "proxy error",
			})
		},
	}
	return proxy, nil
}
