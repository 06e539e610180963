// Package config manages application configuration from environment variables and flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const envPrefix = "FOLIO_"

// Config holds runtime configuration for the site server and exporter.
type Config struct {
	ProjectsDir       string
	AssetsDir         string
	OutputDir         string
	BaseURL           string
	ContentAPIBaseURL string
	ContentProjectID  string
	Port              int
	DevProxy          bool
	Verbose           bool
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		ProjectsDir: "projects",
		AssetsDir:   "static",
		OutputDir:   "dist",
		BaseURL:     "https://tgm.one",
		Port:        8080,
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ProjectsDir, "projects", "r", cfg.ProjectsDir, "directory containing project markdown files")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "canonical site origin used in sitemap and absolute links")
	fs.StringVar(&cfg.ContentAPIBaseURL, "content-api", cfg.ContentAPIBaseURL, "base URL of the headless content API")
	fs.StringVar(&cfg.ContentProjectID, "content-project", cfg.ContentProjectID, "content API project id for blog posts")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "default output directory for static export")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory containing built frontend assets")
	fs.BoolVar(&cfg.DevProxy, "dev-proxy", cfg.DevProxy, "proxy /api/content/* to the content API (development)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging (HTTP requests)")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("PROJECTS", func(v string) { cfg.ProjectsDir = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyStringEnv("BASE_URL", func(v string) { cfg.BaseURL = v })
	applyStringEnv("CONTENT_API", func(v string) { cfg.ContentAPIBaseURL = v })
	applyStringEnv("CONTENT_PROJECT", func(v string) { cfg.ContentProjectID = v })
	applyStringEnv("OUT", func(v string) { cfg.OutputDir = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyBoolEnv("DEV_PROXY", func(v bool) { cfg.DevProxy = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths and URLs.
func Finalize(cfg *Config) error {
	projects, err := filepath.Abs(cfg.ProjectsDir)
	if err != nil {
		return fmt.Errorf("resolve projects directory: %w", err)
	}
	cfg.ProjectsDir = projects

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = "dist"
	}

	if cfg.AssetsDir == "" {
		cfg.AssetsDir = "static"
	}
	assets, err := filepath.Abs(cfg.AssetsDir)
	if err != nil {
		return fmt.Errorf("resolve assets directory: %w", err)
	}
	cfg.AssetsDir = assets

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL: %q", cfg.BaseURL)
		}
	}

	if cfg.ContentAPIBaseURL != "" {
		cfg.ContentAPIBaseURL = strings.TrimRight(cfg.ContentAPIBaseURL, "/")
		u, err := url.Parse(cfg.ContentAPIBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid content API URL: %q", cfg.ContentAPIBaseURL)
		}
	}

	return nil
}
