package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/civicportal/portal-sync/internal/api"
	"github.com/civicportal/portal-sync/internal/artifacts"
	"github.com/civicportal/portal-sync/internal/auth"
	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/otel"
	"github.com/civicportal/portal-sync/internal/parsers"
	"github.com/civicportal/portal-sync/internal/sources"
	"github.com/civicportal/portal-sync/internal/store"
	pkgsync "github.com/civicportal/portal-sync/internal/sync"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
	"github.com/civicportal/portal-sync/internal/synclog"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Option configures the app builder
type Option func(*appConfig) error

// appConfig collects the inputs of New. Every component can be injected;
// anything left nil is built from the configuration.
type appConfig struct {
	configManager config.Manager

	// Optional component overrides (primarily for testing)
	store         store.Store
	sourceFactory sources.Factory
	syncManager   pkgsync.Manager

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	authMiddleware func(http.Handler) http.Handler
	publicPaths    []string
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Skip the output root lock, for commands that do not write artifacts
	skipLock bool
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.configManager == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	if cfg.address == "" {
		cfg.address = cfg.configManager.Snapshot().GetServerAddress()
	}

	return cfg, nil
}

// New builds the engine from the configuration served by the config manager
func New(ctx context.Context, opts ...Option) (*App, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	cfg := b.configManager.Snapshot()

	components := &Components{Config: b.configManager}
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cleanup(components)
		}
	}()

	components.Telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if !b.skipLock {
		components.Lock, err = artifacts.AcquireLock(cfg.Engine.GetOutputRoot())
		if err != nil {
			return nil, err
		}
	}

	if b.store == nil {
		b.store, err = store.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
	}
	components.Store = b.store

	if err := InitializeTenants(ctx, cfg, components.Store); err != nil {
		return nil, err
	}
	b.configManager.OnReload(reseedOnReload(ctx, components.Store))

	// Authentication is built once; a reload does not change the admin API keys
	if b.authMiddleware == nil {
		b.authMiddleware, err = auth.NewAuthMiddleware(cfg.Auth, auth.DefaultValidatorFactory)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
	}
	b.publicPaths = auth.PublicPaths(cfg.Auth)

	components.Coordinator, err = buildSyncComponents(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &App{
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

func cleanup(c *Components) {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Lock != nil {
		_ = c.Lock.Release()
	}
	if c.Telemetry != nil {
		_ = c.Telemetry.Shutdown(context.Background())
	}
}

// WithConfigManager sets the configuration source
func WithConfigManager(m config.Manager) Option {
	return func(cfg *appConfig) error {
		cfg.configManager = m
		return nil
	}
}

// WithAddress overrides the admin server address of the configuration
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, ok := strings.Cut(addr, ":")
		if !ok || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithAuthMiddleware replaces the authentication middleware built from the configuration
func WithAuthMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.authMiddleware = mw
		return nil
	}
}

// WithStore injects the persistence gateway
func WithStore(st store.Store) Option {
	return func(cfg *appConfig) error {
		cfg.store = st
		return nil
	}
}

// WithSourceFactory injects the connector factory
func WithSourceFactory(f sources.Factory) Option {
	return func(cfg *appConfig) error {
		cfg.sourceFactory = f
		return nil
	}
}

// WithSyncManager injects the folder pipeline
func WithSyncManager(m pkgsync.Manager) Option {
	return func(cfg *appConfig) error {
		cfg.syncManager = m
		return nil
	}
}

// WithoutOutputLock skips the output root lock
func WithoutOutputLock() Option {
	return func(cfg *appConfig) error {
		cfg.skipLock = true
		return nil
	}
}

// buildSyncComponents builds the folder pipeline and the coordinator
func buildSyncComponents(b *appConfig, c *Components) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components")

	syncMetrics, err := telemetry.NewSyncMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	tracer := c.Telemetry.TracerProvider().Tracer(otel.TracerName)
	recorder := synclog.NewRecorder(c.Store)

	if b.sourceFactory == nil {
		b.sourceFactory = sources.NewFactory()
	}

	if b.syncManager == nil {
		renderer, err := artifacts.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}

		b.syncManager = pkgsync.NewManager(
			c.Store,
			parsers.NewDefaultRegistry(),
			renderer,
			artifacts.NewGenerator(c.Store, renderer),
			recorder,
			pkgsync.WithMetrics(syncMetrics),
			pkgsync.WithTracer(tracer),
		)
	}

	coord := coordinator.New(b.syncManager, c.Store, b.sourceFactory, b.configManager,
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithTracer(tracer),
		coordinator.WithRecorder(recorder),
	)
	slog.Info("Sync components initialized successfully")

	return coord, nil
}

// buildHTTPServer builds the admin server with router and middleware
func buildHTTPServer(b *appConfig, c *Components) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	// Tracing and metrics come first so that requests rejected further down are still observed
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
		metricsMiddleware,
	}, b.middlewares...)

	b.middlewares = append(b.middlewares, auth.WrapWithPublicPaths(b.authMiddleware, b.publicPaths))

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if h := c.Telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}

	maxRetries := func() int {
		return b.configManager.Snapshot().Engine.GetMaxRetries()
	}
	router := api.NewServer(c.Store, maxRetries, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
