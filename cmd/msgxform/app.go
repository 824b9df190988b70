package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/msgxform/internal/admin"
	"github.com/vyrodovalexey/msgxform/internal/broadcast"
	"github.com/vyrodovalexey/msgxform/internal/budget"
	"github.com/vyrodovalexey/msgxform/internal/config"
	"github.com/vyrodovalexey/msgxform/internal/engine"
	"github.com/vyrodovalexey/msgxform/internal/expr/builtin"
	"github.com/vyrodovalexey/msgxform/internal/health"
	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/proxy"
	"github.com/vyrodovalexey/msgxform/internal/session"
	"github.com/vyrodovalexey/msgxform/internal/xformerr"
)

const (
	proxyReadHeaderTimeout = 10 * time.Second
	healthCacheTTL         = 5 * time.Second
)

// application holds all application components.
type application struct {
	cfg         *config.AppConfig
	logger      observability.Logger
	engine      *engine.Engine
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	health      *health.Handler
	admin       *admin.Server
	watcher     *config.Watcher
	sessions    *session.JWTSource
	broadcaster *broadcast.Broadcaster
	proxy       *http.Server
	proxyAddr   net.Addr
}

// newEngine builds an engine from the engine section of cfg.
func newEngine(cfg *config.EngineConfig, logger observability.Logger) (*engine.Engine, error) {
	mode, err := engine.ParseErrorMode(cfg.ErrorMode)
	if err != nil {
		return nil, err
	}
	schema, err := engine.ParseSchemaValidation(cfg.SchemaValidation)
	if err != nil {
		return nil, err
	}

	registry, err := builtin.NewRegistry(logger)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithErrorMode(mode),
		engine.WithSchemaValidation(schema),
		engine.WithBudget(budget.Budget{
			MaxEval:        cfg.Budget.MaxEval.Duration(),
			MaxOutputBytes: cfg.Budget.MaxOutputBytes,
		}),
	}
	for kind, status := range map[xformerr.EvalKind]int{
		xformerr.ExpressionEval:       cfg.DenyStatus.ExpressionEval,
		xformerr.EvalBudgetExceeded:   cfg.DenyStatus.EvalBudgetExceeded,
		xformerr.InputSchemaViolation: cfg.DenyStatus.InputSchemaViolation,
	} {
		if status != 0 {
			opts = append(opts, engine.WithDenyStatus(kind, status))
		}
	}
	return engine.New(registry, opts...)
}

// initApplication wires every component from cfg. Nothing listens yet.
func initApplication(ctx context.Context, cfg *config.AppConfig, logger observability.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:  cfg.Observability.Tracing.ServiceName,
		OTLPEndpoint: cfg.Observability.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
		Enabled:      cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	if cfg.Observability.Metrics.Enabled {
		app.metrics = initMetrics(cfg.Observability.Metrics.Namespace)
	}

	app.engine, err = newEngine(&cfg.Engine, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	app.health = health.NewHandler(logger.Named("health"), health.WithVersion(Version))
	app.health.AddCheck(health.CustomHealthCheck("specs", app.checkSpecs))

	if cfg.Session.JWT.Enabled {
		app.sessions, err = session.NewJWTSource(cfg.Session.JWT.JWKSFile,
			session.WithHeader(cfg.Session.JWT.Header),
			session.WithIssuer(cfg.Session.JWT.Issuer),
			session.WithAudience(cfg.Session.JWT.Audience),
			session.WithLogger(logger.Named("session")),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Broadcast.Enabled {
		client, err := broadcast.Dial(ctx, broadcast.Options{
			Address:  cfg.Broadcast.Address,
			Password: cfg.Broadcast.Password,
			DB:       cfg.Broadcast.DB,
		})
		if err != nil {
			return nil, err
		}
		app.broadcaster = broadcast.New(client, cfg.Broadcast.Channel,
			broadcast.WithLogger(logger.Named("broadcast")))
		app.health.AddCheck(health.NewCachedHealthCheck(
			health.RedisHealthCheck("broadcast", client, health.WithCritical(false)),
			healthCacheTTL,
		))
	}

	adminOpts := []admin.Option{
		admin.WithLogger(logger.Named("admin")),
		admin.WithHealth(app.health),
		admin.WithReloadRateLimit(cfg.Admin.ReloadRateLimit.RequestsPerSecond, cfg.Admin.ReloadRateLimit.Burst),
	}
	if app.metrics != nil {
		adminOpts = append(adminOpts, admin.WithMetrics(app.metrics))
	}
	app.admin = admin.NewServer(app.engine, app.reload, adminOpts...)

	if cfg.Watch.Enabled {
		app.watcher, err = config.NewWatcher(cfg.Engine.SpecsDir, cfg.Engine.Profile, app.reload,
			config.WithDebounceDelay(cfg.Watch.Debounce.Duration()),
			config.WithLogger(logger.Named("watcher")),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Proxy.Enabled {
		if err := app.initProxy(); err != nil {
			return nil, err
		}
	}
	return app, nil
}

func initMetrics(namespace string) *observability.Metrics {
	metrics := observability.NewMetrics(namespace)
	metrics.SetBuildInfo(Version, GitCommit, BuildDate)

	engineMetrics := engine.GetMetrics()
	engineMetrics.MustRegister(metrics.Registry())
	engineMetrics.Init()

	healthMetrics := health.GetHealthMetrics()
	healthMetrics.MustRegister(metrics.Registry())
	healthMetrics.Init()

	broadcastMetrics := broadcast.GetMetrics()
	broadcastMetrics.MustRegister(metrics.Registry())
	broadcastMetrics.Init()

	proxy.InitMetrics(metrics.Registry())
	return metrics
}

func (app *application) initProxy() error {
	pc := app.cfg.Proxy
	opts := []proxy.Option{
		proxy.WithLogger(app.logger.Named("proxy")),
		proxy.WithTimeout(pc.Timeout.Duration()),
	}
	if pc.CircuitBreaker.Enabled {
		opts = append(opts, proxy.WithCircuitBreaker(proxy.BreakerConfig{
			Threshold:        pc.CircuitBreaker.Threshold,
			Timeout:          pc.CircuitBreaker.Timeout.Duration(),
			HalfOpenRequests: pc.CircuitBreaker.HalfOpenRequests,
		}))
	}
	if app.metrics != nil {
		opts = append(opts, proxy.WithMetrics(app.metrics))
	}
	if app.sessions != nil {
		opts = append(opts, proxy.WithSession(app.sessions))
	}

	p, err := proxy.New(app.engine, pc.Upstream, opts...)
	if err != nil {
		return err
	}
	app.proxy = &http.Server{
		Addr:              pc.Listen,
		Handler:           observability.TracingMiddleware(app.tracer)(p),
		ReadHeaderTimeout: proxyReadHeaderTimeout,
	}
	return nil
}

// loadSpecs performs a reload of the spec directory and profile.
func (app *application) loadSpecs(ctx context.Context) error {
	return app.engine.ReloadDir(ctx, app.cfg.Engine.SpecsDir, app.cfg.Engine.Profile)
}

// reload is the local reload path used by the watcher and the admin API.
// A successful reload is announced to other instances.
func (app *application) reload(ctx context.Context) error {
	if err := app.loadSpecs(ctx); err != nil {
		return err
	}
	if app.sessions != nil {
		if err := app.sessions.Reload(); err != nil {
			app.logger.Warn("session key set reload failed, keeping previous keys", observability.Error(err))
		}
	}
	if app.broadcaster != nil {
		notice := broadcast.Notice{Specs: app.engine.SpecCount()}
		if p := app.engine.ActiveProfile(); p != nil {
			notice.Profile = p.ID
		}
		if err := app.broadcaster.Publish(ctx, notice); err != nil {
			app.logger.Warn("reload broadcast failed", observability.Error(err))
		}
	}
	return nil
}

// remoteReload reacts to another instance's notice. It never publishes.
func (app *application) remoteReload(ctx context.Context, _ broadcast.Notice) error {
	return app.loadSpecs(ctx)
}

func (app *application) checkSpecs(context.Context) error {
	if app.engine.SpecCount() == 0 {
		return errors.New("no specs loaded")
	}
	return nil
}

// start loads the specs and starts every listener and background loop.
func (app *application) start(ctx context.Context) error {
	if err := app.loadSpecs(ctx); err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}
	app.logger.Info("specs loaded",
		observability.Int("specs", app.engine.SpecCount()),
		observability.String("profile", app.cfg.Engine.Profile),
	)

	if err := app.admin.ListenAndServe(app.cfg.Admin.Address); err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	if app.watcher != nil {
		if err := app.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	if app.broadcaster != nil {
		if err := app.broadcaster.Start(ctx, app.remoteReload); err != nil {
			return err
		}
	}

	if app.proxy != nil {
		ln, err := net.Listen("tcp", app.proxy.Addr)
		if err != nil {
			return fmt.Errorf("failed to start proxy: %w", err)
		}
		app.proxyAddr = ln.Addr()
		app.logger.Info("proxy listening",
			observability.String("address", ln.Addr().String()),
			observability.String("upstream", app.cfg.Proxy.Upstream),
		)
		go func() {
			if err := app.proxy.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("proxy server error", observability.Error(err))
			}
		}()
	}
	return nil
}

// stop shuts every component down in reverse start order.
func (app *application) stop(ctx context.Context) {
	if app.proxy != nil {
		if err := app.proxy.Shutdown(ctx); err != nil {
			app.logger.Error("failed to stop proxy gracefully", observability.Error(err))
		}
	}
	if app.broadcaster != nil {
		if err := app.broadcaster.Stop(); err != nil && !errors.Is(err, broadcast.ErrNotStarted) {
			app.logger.Error("failed to stop broadcast subscriber", observability.Error(err))
		}
		if err := app.broadcaster.Client().Close(); err != nil {
			app.logger.Error("failed to close redis client", observability.Error(err))
		}
	}
	if app.watcher != nil {
		_ = app.watcher.Stop()
	}
	if err := app.admin.Shutdown(ctx); err != nil {
		app.logger.Error("failed to stop admin server gracefully", observability.Error(err))
	}
	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
