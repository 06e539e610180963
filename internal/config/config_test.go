package config_test

import (
	"path/filepath"
	"testing"

	"github.com/tgmone/folio/internal/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.ProjectsDir != "projects" || cfg.BaseURL != "https://tgm.one" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FOLIO_PORT", "9191")
	t.Setenv("FOLIO_BASE_URL", "https://example.test")
	t.Setenv("FOLIO_CONTENT_PROJECT", "p1")
	t.Setenv("FOLIO_VERBOSE", "true")
	t.Setenv("FOLIO_PROJECTS", "   ")
	t.Setenv("FOLIO_OUT", "")

	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	if cfg.Port != 9191 {
		t.Fatalf("expected port override, got %d", cfg.Port)
	}
	if cfg.BaseURL != "https://example.test" || cfg.ContentProjectID != "p1" || !cfg.Verbose {
		t.Fatalf("string/bool overrides not applied: %#v", cfg)
	}
	if cfg.ProjectsDir != "projects" || cfg.OutputDir != "dist" {
		t.Fatalf("blank env values must not override defaults: %#v", cfg)
	}
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("FOLIO_PORT", "not-a-number")
	t.Setenv("FOLIO_VERBOSE", "maybe")

	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)
	if cfg.Port != 8080 || cfg.Verbose {
		t.Fatalf("unparseable env values must be ignored: %#v", cfg)
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.BaseURL = "https://tgm.one/"
	cfg.ContentAPIBaseURL = "https://api.foligo.tech/"
	if err := config.Finalize(&cfg); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	if !filepath.IsAbs(cfg.ProjectsDir) || !filepath.IsAbs(cfg.AssetsDir) {
		t.Fatalf("directories should be absolute after Finalize: %#v", cfg)
	}
	if cfg.BaseURL != "https://tgm.one" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.BaseURL)
	}
	if cfg.ContentAPIBaseURL != "https://api.foligo.tech" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.ContentAPIBaseURL)
	}
}

func TestFinalizeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative port", func(c *config.Config) { c.Port = -1 }},
		{"huge port", func(c *config.Config) { c.Port = 70000 }},
		{"schemeless base url", func(c *config.Config) { c.BaseURL = "tgm.one" }},
		{"hostless content api", func(c *config.Config) { c.ContentAPIBaseURL = "https://" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := config.Finalize(&cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
