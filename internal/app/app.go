// Package app wires all phonomatch subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the transliterator
// chain, compiles the intents and assembles the HTTP and MCP servers, Run
// serves until the context ends, and Shutdown tears everything down in
// order. Reload applies a changed configuration to the running App.
//
// For testing, inject a transliterator or metrics sink via functional
// options. When an option is not provided, New creates real implementations
// from the config and the provider registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/phonomatch/internal/config"
	"github.com/MrWong99/phonomatch/internal/health"
	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/mcp"
	"github.com/MrWong99/phonomatch/internal/observe"
	"github.com/MrWong99/phonomatch/internal/resilience"
	"github.com/MrWong99/phonomatch/internal/server"
	"github.com/MrWong99/phonomatch/internal/voicecmd"
	"github.com/MrWong99/phonomatch/pkg/g2p"
	"github.com/MrWong99/phonomatch/pkg/grammar"
	"github.com/MrWong99/phonomatch/pkg/phoneme"
)

// Version is reported by the MCP server.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	metrics        *observe.Metrics
	level          *slog.LevelVar
	client         *http.Client
	metricsHandler http.Handler
	configPath     string
	watchInterval  time.Duration

	// Subsystems, initialised in New and torn down in Shutdown.
	translit g2p.Transliterator
	fallback *resilience.TransliteratorFallback
	cache    *g2p.Cache
	conv     *g2p.Converter
	live     *intent.Live
	filter   *voicecmd.Filter
	mcp      *mcp.Server
	server   *server.Server

	// reloadMu serialises Reload calls.
	reloadMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithTransliterator replaces the configured transliterator chain. The
// cache and fallbacks of the config are not applied to it.
func WithTransliterator(t g2p.Transliterator) Option {
	return func(a *App) { a.translit = t }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Reload change the log level of the handler built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithHTTPClient sets the client used by webhook actions.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.client = c }
}

// WithMetricsHandler overrides the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConfigWatch makes Run watch the config file at path, and the intent
// files it references, and Reload on every change.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. Transliterators named in cfg.G2P are built
// through reg. All intents are compiled before New returns, so a broken
// intent file fails startup.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: reg,
		client:   http.DefaultClient,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transliteration ───────────────────────────────────────────────
	if err := a.initG2P(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init g2p: %w", err)
	}

	// ── 2. Intents ───────────────────────────────────────────────────────
	rec, err := a.buildRecognizer(ctx, cfg)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init intents: %w", err)
	}
	a.live = intent.NewLive(rec)

	// ── 3. Actions ───────────────────────────────────────────────────────
	a.filter = voicecmd.New(a.live,
		voicecmd.WithMetrics(a.metrics),
		voicecmd.WithActions(voicecmd.ActionsFromConfig(cfg.Actions, a.client)),
	)

	// ── 4. Servers ───────────────────────────────────────────────────────
	a.mcp = mcp.NewServer(a.live, Version)
	srvOpts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithHealth(a.checkers()...),
		server.WithHandler("/mcp", a.mcp.Handler()),
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	a.server = server.New(a.live, a.filter, srvOpts...)

	slog.Info("app: initialised",
		"intents", len(rec.Intents()),
		"actions", len(cfg.Actions),
		"language", a.conv.Language(),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initG2P builds the transliterator chain: the primary provider with its
// fallbacks behind circuit breakers, optionally memoised by a SQLite cache.
func (a *App) initG2P() error {
	g := a.cfg.G2P
	if a.translit == nil {
		primary, err := a.registry.Create(g.Provider)
		if err != nil {
			return err
		}
		a.fallback = resilience.NewTransliteratorFallback(primary, g.Provider.Name, resilience.FallbackConfig{},
			resilience.WithErrorHook(func(ctx context.Context, backend string, _ error) {
				a.metrics.RecordG2PError(ctx, backend)
			}),
		)
		for _, fb := range g.Fallbacks {
			t, err := a.registry.Create(fb)
			if err != nil {
				return fmt.Errorf("fallback: %w", err)
			}
			a.fallback.AddFallback(fb.Name, t)
		}
		a.translit = a.fallback

		if g.CachePath != "" {
			path := a.cfg.ResolvePath(g.CachePath)
			cache, err := g2p.OpenCache(path, g.Provider.Name+":"+g.Provider.Language, a.fallback)
			if err != nil {
				return err
			}
			a.cache = cache
			a.translit = cache
			a.closers = append(a.closers, cache.Close)
			slog.Info("app: transliteration cache enabled", "path", path)
		}
	}

	a.conv = g2p.NewConverter(a.translit,
		g2p.WithLanguage(g.Provider.Language),
		g2p.WithWordProcessing(g.WordProcessing),
	)
	return nil
}

// buildRecognizer compiles the intents of cfg with its matching defaults.
func (a *App) buildRecognizer(ctx context.Context, cfg *config.Config) (*intent.Recognizer, error) {
	files, err := cfg.IntentFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		slog.Warn("app: no intent files configured")
	}

	m := cfg.Matching
	scorer := phoneme.NewScorer(phoneme.WithThreshold(m.Threshold))
	intents, err := intent.LoadAll(ctx, files, a.conv, scorer, intent.WithDefaultMaxWords(m.MaxParamWords))
	if err != nil {
		return nil, err
	}
	for _, in := range intents {
		for _, w := range in.Grammar.Lint(grammar.WithLintBudget(m.Budget)) {
			slog.Warn("app: confusable phrases", "intent", in.Name, "warning", w.String())
		}
	}
	return intent.NewRecognizer(a.conv, intents,
		intent.WithBudget(m.Budget),
		intent.WithOptionals(m.IncludeOptionals),
		intent.WithMetrics(a.metrics),
	), nil
}

// checkers returns the readiness checks: loaded intents are required, the
// transliterator chain and its cache only degrade the service.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{Name: "intents", Check: a.live.Check}}
	if a.fallback != nil {
		checks = append(checks, health.Checker{Name: "g2p", Optional: true, Check: a.checkG2P})
	}
	if a.cache != nil {
		checks = append(checks, health.Checker{Name: "g2p_cache", Optional: true, Check: a.cache.Ping})
	}
	return checks
}

// checkG2P fails when any transliterator's circuit breaker is not closed.
func (a *App) checkG2P(context.Context) error {
	var errs []error
	for _, st := range a.fallback.Status() {
		if st.State != resilience.StateClosed.String() {
			errs = append(errs, fmt.Errorf("%s: circuit %s", st.Name, st.State))
		}
	}
	return errors.Join(errs...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Live returns the live recognizer.
func (a *App) Live() *intent.Live { return a.live }

// Filter returns the action dispatcher.
func (a *App) Filter() *voicecmd.Filter { return a.filter }

// Converter returns the text to phoneme converter.
func (a *App) Converter() *g2p.Converter { return a.conv }

// MCP returns the MCP server.
func (a *App) MCP() *mcp.Server { return a.mcp }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured address and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(old, new *config.Config) {
			a.Reload(ctx, old, new)
		}, config.WithInterval(a.watchInterval))
		if err != nil {
			return fmt.Errorf("app: watch config: %w", err)
		}
		defer w.Stop()
	}

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	if err := a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr, a.cfg.Server.TLS); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next: log level, actions,
// matching defaults and intents. Intents are recompiled on every call since
// the intent files may have changed while the config did not. A recognizer
// that fails to build leaves the current one in place.
func (a *App) Reload(ctx context.Context, old, next *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(old, next)
	if d.RequiresRestart() {
		slog.Warn("app: g2p or listen address changed, restart to apply",
			"g2p_changed", d.G2PChanged,
			"listen_addr_changed", d.ListenAddrChanged,
		)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.ActionsChanged {
		a.filter.SetActions(voicecmd.ActionsFromConfig(next.Actions, a.client))
		slog.Info("app: actions reloaded", "actions", len(next.Actions))
	}

	rec, err := a.buildRecognizer(ctx, next)
	if err != nil {
		slog.Error("app: intent reload failed, keeping previous intents", "err", err)
		return
	}
	a.live.Store(rec)
	a.cfg = next
	slog.Info("app: intents reloaded", "intents", len(rec.Intents()))
}

// SlogLevel converts a config log level to a [slog.Level].
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what a failed New already opened.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
