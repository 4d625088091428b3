// Package app wires all ppmusicbot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithBotFactory,
// WithMetrics, WithLogLevel). Backends come from main.go through [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ppmusicbot/ppmusicbot/internal/config"
	"github.com/ppmusicbot/ppmusicbot/internal/discord"
	"github.com/ppmusicbot/ppmusicbot/internal/discord/commands"
	"github.com/ppmusicbot/ppmusicbot/internal/health"
	"github.com/ppmusicbot/ppmusicbot/internal/observe"
	"github.com/ppmusicbot/ppmusicbot/internal/queue"
	"github.com/ppmusicbot/ppmusicbot/internal/resilience"
	"github.com/ppmusicbot/ppmusicbot/internal/search"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// serverShutdownTimeout bounds the graceful stop of the HTTP server.
const serverShutdownTimeout = 10 * time.Second

// Providers holds the backends created from the config registry by main.go.
type Providers struct {
	// Catalogue is the primary catalogue client. Required.
	Catalogue catalogue.Client

	// Mirror is an optional second catalogue used while the primary is
	// unhealthy.
	Mirror catalogue.Client

	// Sink stores voice events. Required.
	Sink telemetry.Sink
}

// Bot is the Discord side of the application. *discord.Bot satisfies it.
type Bot interface {
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	Run(ctx context.Context) error
	Close() error
}

// BotFactory connects a [Bot] that forwards voice events to rec.
type BotFactory func(ctx context.Context, cfg config.DiscordConfig, rec discord.VoiceRecorder) (Bot, error)

func connectDiscord(ctx context.Context, cfg config.DiscordConfig, rec discord.VoiceRecorder) (Bot, error) {
	return discord.New(ctx, cfg, rec)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics    *observe.Metrics
	logLevel   *slog.LevelVar
	newBot     BotFactory
	watcher    *config.Watcher

	// Subsystems, initialised in New and torn down in Shutdown.
	catalogue *resilience.Catalogue
	engine    *search.Engine
	queue     *queue.Manager
	writer    *telemetry.Writer
	bot       Bot
	music     *commands.MusicCommands
	server    *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithBotFactory replaces the Discord connection, e.g. with a test double.
func WithBotFactory(f BotFactory) Option {
	return func(a *App) { a.newBot = f }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the process logger so
// that config reloads can change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. It connects the
// telemetry sink and the Discord bot; a failure of either aborts startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Catalogue == nil || providers.Sink == nil {
		return nil, errors.New("app: catalogue and sink providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		newBot:    connectDiscord,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Catalogue with circuit breakers ───────────────────────────────
	a.initCatalogue()

	// ── 2. Search engine ─────────────────────────────────────────────────
	engine, err := search.New(a.catalogue,
		search.WithConfig(cfg.Search.EngineConfig()),
		search.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init search: %w", err)
	}
	a.engine = engine
	a.queue = queue.NewManager(a.metrics)

	// ── 3. Telemetry writer ──────────────────────────────────────────────
	a.writer = telemetry.NewWriter(providers.Sink, telemetry.Config{
		BatchSize:   cfg.Telemetry.BatchSize,
		MaxRetries:  cfg.Telemetry.MaxRetries,
		BaseTimeout: cfg.Telemetry.BaseTimeout,
		Metrics:     a.metrics,
	})
	if err := a.writer.Start(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 4. Discord bot + commands ────────────────────────────────────────
	bot, err := a.newBot(ctx, cfg.Discord, a.writer)
	if err != nil {
		a.closeWriter(ctx)
		return nil, fmt.Errorf("app: init discord: %w", err)
	}
	a.bot = bot
	a.music = commands.NewMusicCommands(a.engine, a.queue, a.catalogue, bot.Permissions(), menuLimits(cfg.Search))
	a.music.Register(bot.Router())

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

func (a *App) initCatalogue() {
	cbCfg := resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Breaker.MaxFailures,
		ResetTimeout: a.cfg.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("catalogue circuit breaker changed state", "backend", name, "from", from, "to", to)
		},
	}
	a.catalogue = resilience.NewCatalogue(a.providers.Catalogue, a.cfg.Catalogue.Provider, cbCfg, a.metrics)
	if a.providers.Mirror != nil {
		a.catalogue.AddMirror(a.cfg.Catalogue.Provider+"-mirror", a.providers.Mirror)
	}
}

func menuLimits(s config.SearchConfig) commands.MenuLimits {
	return commands.MenuLimits{MaxTracks: s.MenuMaxTracks, MaxOptions: s.MenuMaxOptions}
}

// Handler returns the HTTP handler serving /healthz, /readyz and /metrics.
func (a *App) Handler() http.Handler {
	checks := health.New(
		health.Checker{Name: "catalogue", Check: a.catalogue.Check, Critical: true},
		health.Checker{Name: "telemetry", Check: a.writer.Ping},
	)
	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Engine returns the search engine.
func (a *App) Engine() *search.Engine { return a.engine }

// Queue returns the per-guild play queue.
func (a *App) Queue() *queue.Manager { return a.queue }

// Writer returns the voice-event writer.
func (a *App) Writer() *telemetry.Writer { return a.writer }

// ─── Config reload ───────────────────────────────────────────────────────────

// Watch starts watching the config file at path and applies hot-reloadable
// changes through [App.ApplyConfig]. The watcher stops when Run returns.
func (a *App) Watch(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, a.ApplyConfig, opts...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.watcher = w
	return nil
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SearchChanged {
		if err := a.engine.SetConfig(d.NewSearch.EngineConfig()); err != nil {
			slog.Warn("rejected search config reload", "err", err)
		} else {
			a.music.SetMenuLimits(menuLimits(d.NewSearch))
			slog.Info("search config reloaded",
				"low_threshold", d.NewSearch.LowThreshold,
				"high_threshold", d.NewSearch.HighThreshold,
				"max_suggestions", d.NewSearch.MaxSuggestions,
			)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that only apply after a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, runs the Discord bot and the config watcher, and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := a.bot.Run(gctx); err != nil {
			return fmt.Errorf("app: discord: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("app running")
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the bot first so no new events arrive, then flushes and
// closes the telemetry writer. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http server: %w", err))
		}
		if err := a.bot.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: discord: %w", err))
		}
		if err := a.writer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: telemetry: %w", err))
		}

		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

func (a *App) closeWriter(ctx context.Context) {
	if err := a.writer.Close(ctx); err != nil {
		slog.Warn("telemetry close error", "err", err)
	}
}
