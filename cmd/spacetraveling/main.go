package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/eringen/spacetraveling"
)

// version is set at build time via ldflags.
var version = "dev"

var CLI struct {
	Config      string `short:"c" help:"Optional YAML configuration file"`
	Verbose     bool   `short:"v" help:"Enable debug logging"`
	APIEndpoint string `help:"Prismic API endpoint (overrides PRISMIC_API_ENDPOINT)"`
	PageSize    int    `help:"Posts per page (overrides PAGE_SIZE)"`

	Serve struct {
		Addr string `short:"a" help:"Listen address (overrides ADDR)"`
	} `cmd:"" default:"1" help:"Serve the listing"`

	Build struct {
		Output string `short:"o" help:"Output directory for the static site" default:"./dist"`
	} `cmd:"" help:"Query the first page once and write a static copy of the site"`

	Version struct{} `cmd:"" help:"Print the version"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("spacetraveling"),
		kong.Description("A paginated blog listing backed by Prismic."),
	)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if kctx.Command() == "version" {
		fmt.Printf("spacetraveling %s\n", version)
		return
	}

	cfg, err := spacetraveling.LoadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if CLI.APIEndpoint != "" {
		cfg.APIEndpoint = CLI.APIEndpoint
	}
	if CLI.PageSize != 0 {
		cfg.PageSize = CLI.PageSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch kctx.Command() {
	case "serve":
		if CLI.Serve.Addr != "" {
			cfg.Addr = CLI.Serve.Addr
		}
		if err := runServe(ctx, cfg, logger); err != nil {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case "build":
		if err := runBuild(ctx, cfg, CLI.Build.Output, logger); err != nil {
			slog.Error("Build failed", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Unknown command", "command", kctx.Command())
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg spacetraveling.SiteConfig, logger *slog.Logger) error {
	app := spacetraveling.New(cfg, spacetraveling.WithLogger(logger))
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close", "error", err)
		}
	}()
	return app.Start(ctx)
}

func runBuild(ctx context.Context, cfg spacetraveling.SiteConfig, outDir string, logger *slog.Logger) error {
	app := spacetraveling.New(cfg, spacetraveling.WithLogger(logger))
	defer app.Close()
	if err := app.Build(ctx, outDir); err != nil {
		return err
	}
	logger.Info("Build complete", "output", outDir)
	return nil
}
