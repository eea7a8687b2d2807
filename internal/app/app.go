// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/notify-engine/internal/config"
	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/notifications"
	"github.com/bissquit/notify-engine/internal/notifications/email"
	"github.com/bissquit/notify-engine/internal/notifications/memory"
	notificationspostgres "github.com/bissquit/notify-engine/internal/notifications/postgres"
	"github.com/bissquit/notify-engine/internal/pkg/cache"
	"github.com/bissquit/notify-engine/internal/pkg/ctxlog"
	"github.com/bissquit/notify-engine/internal/pkg/httputil"
	"github.com/bissquit/notify-engine/internal/pkg/metrics"
	"github.com/bissquit/notify-engine/internal/pkg/postgres"
	redispkg "github.com/bissquit/notify-engine/internal/pkg/redis"
	"github.com/bissquit/notify-engine/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	memoryBus     *memory.Bus
	transport     *email.Transport
	dispatcher    *notifications.Dispatcher
	consumer      *notifications.RedeliveryConsumer
	server        *http.Server
	metricsServer *http.Server
	runCancel     context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	runCtx, runCancel := context.WithCancel(context.Background())

	app := &App{
		config:    cfg,
		logger:    logger,
		runCancel: runCancel,
	}

	if err := app.connect(); err != nil {
		_ = app.closeResources()
		return nil, err
	}

	if app.db != nil || app.redis != nil {
		go app.collectPoolMetrics(runCtx)
	}

	if err := app.setupNotifications(runCtx); err != nil {
		_ = app.closeResources()
		return nil, fmt.Errorf("setup notifications: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) connect() error {
	cfg := a.config

	if cfg.Store.Backend == config.BackendPostgres {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
	}

	if cfg.UsesRedis() {
		client, err := redispkg.Connect(context.Background(), redispkg.Config{
			URL:             cfg.Redis.URL,
			ConnectAttempts: cfg.Redis.ConnectAttempts,
			ConnectTimeout:  cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
	}

	return nil
}

func (a *App) setupNotifications(ctx context.Context) error {
	cfg := a.config

	var bus notifications.Bus
	if cfg.Bus.Backend == config.BackendRedis {
		bus = redispkg.NewBus(a.redis)
	} else {
		a.memoryBus = memory.NewBus(cfg.Bus.BufferSize)
		bus = a.memoryBus
	}

	var (
		store notifications.Store
		prefs notifications.PreferenceSource
	)
	if a.db != nil {
		repo := notificationspostgres.NewRepository(a.db)
		store, prefs = repo, repo
	} else {
		store, prefs = memory.NewStore(), memory.NewPreferences()
	}

	var counters notifications.CounterStore
	if cfg.RateLimit.Backend == config.BackendRedis {
		counters = redispkg.NewCounterStore(a.redis)
	} else {
		counters = cache.NewCounterStore(cfg.RateLimit.Window)
	}

	limiter, err := notifications.NewRateLimiter(counters, notifications.RateLimitConfig{
		Points:        cfg.RateLimit.Points,
		Window:        cfg.RateLimit.Window,
		BlockDuration: cfg.RateLimit.BlockDuration,
		KeyPrefix:     cfg.RateLimit.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	retry := notifications.NewRetryScheduler(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	channels := []notifications.Channel{
		notifications.NewInAppChannel(bus, retry, cfg.Dispatch.AttemptTimeout),
		notifications.NewPushChannel(),
	}

	if cfg.Email.Enabled {
		emailChannel, err := a.setupEmail(retry)
		if err != nil {
			return err
		}
		channels = append(channels, emailChannel)
	} else {
		slog.Warn("email channel is disabled: email deliveries will fail")
	}

	a.dispatcher = notifications.NewDispatcher(
		store,
		limiter,
		notifications.NewStatusPublisher(bus),
		prefs,
		notifications.DispatcherConfig{
			ChannelTimeout:     cfg.Dispatch.ChannelTimeout,
			EmptyChannelStatus: domain.DeliveryStatus(cfg.Dispatch.EmptyChannelStatus),
		},
		channels...,
	)

	a.consumer = notifications.NewRedeliveryConsumer(bus, a.dispatcher)
	if err := a.consumer.Start(ctx); err != nil {
		return fmt.Errorf("start redelivery consumer: %w", err)
	}

	slog.Info("notifications configured",
		"store", cfg.Store.Backend,
		"bus", cfg.Bus.Backend,
		"rate_limit", cfg.RateLimit.Backend,
		"email_enabled", cfg.Email.Enabled,
	)

	return nil
}

func (a *App) setupEmail(retry notifications.RetryScheduler) (notifications.Channel, error) {
	cfg := a.config.Email

	templates, err := email.LoadTemplates(cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}

	mapping := email.DefaultTemplateMapping()
	for notificationType, name := range cfg.Templates {
		t := domain.NotificationType(notificationType)
		if !t.IsValid() {
			return nil, fmt.Errorf("email template mapping: unknown notification type %q", notificationType)
		}
		if !templates.Has(name) {
			return nil, fmt.Errorf("email template mapping: unknown template %q", name)
		}
		mapping[t] = name
	}

	throttle := email.NewLocalThrottle(cfg.RatePerSecond, cfg.Burst)
	if cfg.SharedRateLimit > 0 {
		shared := email.NewSharedThrottle(redispkg.NewCounterStore(a.redis), cfg.SharedRateLimit, "ratelimit:email")
		throttle = email.ChainThrottles(throttle, shared)
	}

	transport, err := email.NewTransport(email.TransportConfig{
		From:      cfg.From,
		Primary:   endpoint(cfg.Primary),
		Secondary: endpoint(cfg.Secondary),
		Pool: email.PoolConfig{
			MaxConnections:     cfg.MaxConnections,
			MaxMessagesPerConn: cfg.MaxMessagesPerConn,
		},
	}, templates, throttle)
	if err != nil {
		return nil, fmt.Errorf("create email transport: %w", err)
	}
	a.transport = transport

	return email.NewAdapter(transport, retry, mapping, a.config.Dispatch.AttemptTimeout), nil
}

func endpoint(cfg config.SMTPConfig) email.Endpoint {
	return email.Endpoint{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		SSL:      cfg.SSL,
		Timeout:  cfg.Timeout,
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.runCancel()

	// Stop consuming redeliveries before the servers drain
	if a.consumer != nil {
		a.consumer.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error

	if a.transport != nil {
		a.transport.Close()
	}
	if a.memoryBus != nil {
		if err := a.memoryBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	a.runCancel()

	return errors.Join(errs...)
}

func (a *App) collectPoolMetrics(ctx context.Context) {
	record := func() {
		if a.db != nil {
			metrics.RecordDBPoolMetrics(a.db)
		}
		if a.redis != nil {
			metrics.RecordRedisPoolMetrics(a.redis)
		}
	}
	record()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			record()
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Dispatcher returns the notification dispatcher.
func (a *App) Dispatcher() *notifications.Dispatcher {
	return a.dispatcher
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.LimitBody(a.config.Server.MaxBodyBytes))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	notificationsHandler := notifications.NewHandler(a.dispatcher)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RequireJSON)
		notificationsHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "dependency", "database", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "dependency", "redis", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
