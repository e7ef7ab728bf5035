// Package bootstrap builds the runtime dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to Postgres. It returns nil without error when
// no database is configured or the memory store was requested.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || cfg.UseMemoryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildStore picks the appointment store: Postgres when a pool exists,
// process memory otherwise.
func BuildStore(pool *pgxpool.Pool, logger *logging.Logger) scheduling.Store {
	if pool == nil {
		if logger != nil {
			logger.Warn("using in-memory appointment store; data is lost on restart")
		}
		return scheduling.NewMemoryStore()
	}
	return scheduling.NewPostgresStore(pool)
}

// BuildLocker returns a Redis lock when Redis is available so several API
// replicas serialize on the same resources. A single process falls back to
// in-memory locks.
func BuildLocker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) scheduling.Locker {
	if cfg == nil {
		return scheduling.NewLocalLocker(0)
	}
	if redisClient == nil {
		return scheduling.NewLocalLocker(cfg.LockWait)
	}
	return scheduling.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockWait, logger)
}

// ClinicDefaults turns the CLINIC_DAY_* settings into the hours assumed for
// clinics without stored configuration.
func ClinicDefaults(cfg *appconfig.Config) (clinic.Defaults, error) {
	if cfg == nil {
		return clinic.DefaultDefaults, nil
	}
	defaults := clinic.Defaults{
		Hours:    clinic.DayHours{Open: cfg.ClinicDayStart, Close: cfg.ClinicDayEnd},
		Timezone: cfg.ClinicTimezone,
	}
	probe := defaults.DefaultConfig("defaults")
	if err := probe.Validate(); err != nil {
		return clinic.Defaults{}, fmt.Errorf("bootstrap: clinic defaults: %w", err)
	}
	return defaults, nil
}

// BuildClinicStore returns the Redis clinic config store when Redis is
// available and an in-memory one otherwise.
func BuildClinicStore(redisClient *redis.Client, defaults clinic.Defaults) clinic.ConfigStore {
	if redisClient == nil {
		return clinic.NewMemoryStore(defaults)
	}
	return clinic.NewStore(redisClient, defaults)
}

// BuildEventHandler delivers outbox entries to SQS when a queue is
// configured and logs them otherwise.
func BuildEventHandler(client *sqs.Client, queueURL string, logger *logging.Logger) events.DeliveryHandler {
	if client == nil || strings.TrimSpace(queueURL) == "" {
		return events.NewLogHandler(logger)
	}
	return events.NewSQSPublisher(client, queueURL)
}
