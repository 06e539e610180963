// Package main provides the folio static site export CLI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tgmone/folio/internal/blog"
	"github.com/tgmone/folio/internal/buildinfo"
	"github.com/tgmone/folio/internal/config"
	"github.com/tgmone/folio/internal/content"
	"github.com/tgmone/folio/internal/diagram"
	"github.com/tgmone/folio/internal/diagram/mermaid"
	"github.com/tgmone/folio/internal/exporter"
	"github.com/tgmone/folio/internal/renderer"
	"github.com/tgmone/folio/internal/server"
)

func main() {
	cfg := config.Default()
	config.ApplyEnvOverrides(&cfg)

	flags := pflag.NewFlagSet("folio-export", pflag.ExitOnError)
	config.RegisterFlags(flags, &cfg)
	clean := true
	flags.BoolVar(&clean, "clean", true, "wipe the output directory before exporting")
	prerender := flags.Bool("prerender-diagrams", false, "render mermaid diagrams to SVG during export via a headless browser")

	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("flag parsing failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("starting folio-export", slog.String("version", buildinfo.Summary()))

	assetsOverride := ""
	if flags.Changed("assets") {
		assetsOverride = cfg.AssetsDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rendererSvc := renderer.NewService(logger)

	projects, err := content.NewStore(ctx, cfg.ProjectsDir, rendererSvc, logger)
	if err != nil {
		cancel()
		logger.Error("project store init failed", slog.Any("err", err))
		//nolint:gocritic // exitAfterDefer: cancel() explicitly called before os.Exit
		os.Exit(1)
	}
	defer func() {
		if err := projects.Close(); err != nil {
			logger.Error("close project store", slog.Any("err", err))
		}
	}()

	blogClient := blog.NewClient(cfg.ContentAPIBaseURL, cfg.ContentProjectID, logger)

	srv, err := server.New(cfg, logger, projects, blogClient, rendererSvc)
	if err != nil {
		cancel()
		logger.Error("server init failed", slog.Any("err", err))
		os.Exit(1)
	}

	var diagramRenderer diagram.Renderer
	if *prerender {
		mr := mermaid.New(logger)
		defer func() {
			if err := mr.Close(); err != nil {
				logger.Error("close mermaid renderer", slog.Any("err", err))
			}
		}()
		diagramRenderer = mr
	}

	exp, err := exporter.New(srv.Handler(), projects, blogClient, diagramRenderer, logger)
	if err != nil {
		cancel()
		logger.Error("init exporter failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := exp.Export(ctx, exporter.Options{
		OutputDir:           cfg.OutputDir,
		AssetsDir:           assetsOverride,
		CleanOutput:         clean,
		MaterializeDiagrams: *prerender,
	}); err != nil {
		cancel()
		logger.Error("export failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("export succeeded", slog.String("output", cfg.OutputDir))
}
