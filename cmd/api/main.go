package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/schedulefeed"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	if os.Getenv("ENV") != "production" {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.deliverer != nil {
		go app.deliverer.Start(ctx)
	}

	// Create HTTP server. WriteTimeout stays zero so schedule feed
	// websockets are not cut off; handlers are bounded by ReadHeaderTimeout
	// and their own contexts.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is the wired API process.
type app struct {
	handler   http.Handler
	engine    *scheduling.Engine
	deliverer *events.Deliverer
	limiter   *httpmiddleware.RateLimiter
	pool      *pgxpool.Pool
	redis     *redis.Client
}

func (a *app) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	a := &app{pool: pool, redis: redisClient}

	defaults, err := bootstrap.ClinicDefaults(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	clinicStore := bootstrap.BuildClinicStore(redisClient, defaults)

	metricsHandler, reg, schedulingMetrics := setupMetrics()
	hub := schedulefeed.NewHub(logger)

	notifiers := scheduling.MultiNotifier{hub}
	if pool != nil {
		outbox := events.NewOutboxStore(pool)
		notifiers = append(notifiers, events.NewOutboxNotifier(outbox))

		sqsClient, err := mainconfig.NewSQSClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		handler := bootstrap.BuildEventHandler(sqsClient, cfg.AppointmentEventsQueueURL, logger)
		a.deliverer = events.NewDeliverer(outbox, handler, logger).WithInterval(cfg.OutboxPollInterval)
	}

	a.engine = scheduling.NewEngine(bootstrap.BuildStore(pool, logger), logger).
		WithLocker(bootstrap.BuildLocker(redisClient, cfg, logger)).
		WithNotifier(notifiers).
		WithHours(clinic.NewHoursResolver(clinicStore)).
		WithMetrics(schedulingMetrics)

	var dashboardRepo clinic.DashboardRepo = clinic.NewEngineDashboardRepository(a.engine)
	if pool != nil {
		dashboardRepo = clinic.NewDashboardRepository(pool)
	}

	a.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.handler = router.New(&router.Config{
		Logger:             logger,
		SchedulingHandler:  scheduling.NewHandler(a.engine, logger),
		ClinicHandler:      clinic.NewHandler(clinicStore, logger),
		ClinicDashboard:    clinic.NewDashboardHandler(dashboardRepo, reg, logger).WithConfigStore(clinicStore),
		FeedHandler:        http.HandlerFunc(hub.HandleWebSocket),
		MetricsHandler:     metricsHandler,
		RateLimiter:        a.limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       healthChecks(pool, redisClient),
	})
	return a, nil
}

// setupMetrics builds a dedicated registry with process and Go runtime
// collectors plus the scheduling metrics.
func setupMetrics() (http.Handler, *prometheus.Registry, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSchedulingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), reg, m
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
