// Command ppmusicbot is the main entry point for the ppmusicbot Discord
// music bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppmusicbot/ppmusicbot/internal/app"
	"github.com/ppmusicbot/ppmusicbot/internal/config"
	"github.com/ppmusicbot/ppmusicbot/internal/observe"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry/postgres"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry/sqlite"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue/kenobi"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "ppmusicbot: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ppmusicbot: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ppmusicbot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger, closeLog := config.SetupLogger(cfg.Server.LogFile, level)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("ppmusicbot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── OpenTelemetry ─────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.WithServiceVersion(version))
	if err != nil {
		slog.Error("failed to initialise telemetry providers", "err", err)
		return 1
	}
	defer func() {
		otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(otelCtx); err != nil {
			slog.Warn("otel shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	if *watch {
		if err := application.Watch(*configPath); err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		}
	}

	slog.Info("bot ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the catalogue clients and telemetry sinks
// that ship with ppmusicbot into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterCatalogue("kenobi", func(c config.CatalogueConfig) (catalogue.Client, error) {
		return kenobi.New(c.BaseURL,
			kenobi.WithTimeout(c.Timeout),
			kenobi.WithRateLimit(c.RateLimit, c.Burst),
		)
	})

	reg.RegisterSink(config.DriverPostgres, func(c config.TelemetryConfig) (telemetry.Sink, error) {
		return postgres.New(c.DSN)
	})
	reg.RegisterSink(config.DriverSQLite, func(c config.TelemetryConfig) (telemetry.Sink, error) {
		return sqlite.New(c.DSN), nil
	})
}

// buildProviders instantiates the backends named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	client, err := reg.CreateCatalogue(cfg.Catalogue)
	if err != nil {
		return nil, fmt.Errorf("create catalogue %q: %w", cfg.Catalogue.Provider, err)
	}
	ps.Catalogue = client
	slog.Info("provider created", "kind", "catalogue", "name", cfg.Catalogue.Provider, "base_url", cfg.Catalogue.BaseURL)

	if cfg.Catalogue.MirrorURL != "" {
		mirrorCfg := cfg.Catalogue
		mirrorCfg.BaseURL = cfg.Catalogue.MirrorURL
		mirror, err := reg.CreateCatalogue(mirrorCfg)
		if err != nil {
			return nil, fmt.Errorf("create catalogue mirror: %w", err)
		}
		ps.Mirror = mirror
		slog.Info("provider created", "kind", "catalogue-mirror", "name", cfg.Catalogue.Provider, "base_url", mirrorCfg.BaseURL)
	}

	sink, err := reg.CreateSink(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("create telemetry sink %q: %w", cfg.Telemetry.Driver, err)
	}
	ps.Sink = sink
	slog.Info("provider created", "kind", "telemetry", "name", cfg.Telemetry.Driver)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       ppmusicbot - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Catalogue", cfg.Catalogue.Provider)
	if cfg.Catalogue.MirrorURL != "" {
		printRow("Mirror", "enabled")
	} else {
		printRow("Mirror", "(none)")
	}
	printRow("Telemetry", string(cfg.Telemetry.Driver))
	printRow("Thresholds", fmt.Sprintf("%g / %g", cfg.Search.LowThreshold, cfg.Search.HighThreshold))
	if cfg.Discord.GuildID != "" {
		printRow("Commands", "guild "+cfg.Discord.GuildID)
	} else {
		printRow("Commands", "global")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
