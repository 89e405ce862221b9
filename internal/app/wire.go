package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/sportsarb/internal/blob/s3"
	"github.com/alanyoungcy/sportsarb/internal/cache/redis"
	"github.com/alanyoungcy/sportsarb/internal/config"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/events"
	"github.com/alanyoungcy/sportsarb/internal/ledger"
	"github.com/alanyoungcy/sportsarb/internal/metrics"
	"github.com/alanyoungcy/sportsarb/internal/notify"
	"github.com/alanyoungcy/sportsarb/internal/ratelimit"
	"github.com/alanyoungcy/sportsarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	Ledger  domain.Ledger
	Records domain.ExecutionStore

	// VenueWindow backs the per-venue call budgets; APIWindow bounds operator
	// API clients. Both are shared through Redis when configured.
	VenueWindow domain.RateLimiter
	APIWindow   domain.RateLimiter

	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
	Sink     domain.EventSink

	// Probes are the reachability checks reported by the health endpoint.
	Probes map[string]func(context.Context) error
}

// Wire constructs the concrete infrastructure selected by cfg and returns it
// together with a cleanup function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	local := ratelimit.NewSlidingWindow()
	deps := &Dependencies{
		Ledger:      ledger.NewMemory(),
		Records:     ledger.NewRecords(),
		VenueWindow: local,
		APIWindow:   local,
		Metrics:     metrics.New(),
		Probes:      make(map[string]func(context.Context) error),
	}
	sinks := events.Fanout{events.NewLogSink(logger), deps.Metrics}

	// --- PostgreSQL ---
	if cfg.UsesPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Probes["postgres"] = pgClient.Ping

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Ledger = postgres.NewLedgerStore(pgClient)
		deps.Records = postgres.NewExecutionStore(pgClient)
	}

	// --- Redis ---
	if cfg.UsesRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Probes["redis"] = redisClient.Ping

		shared := redis.NewRateLimiter(redisClient)
		if cfg.RateLimit.Distributed {
			deps.VenueWindow = shared
		}
		if cfg.Ledger.Backend == config.BackendRedis {
			deps.Ledger = redis.NewLedger(redisClient)
		}
		if cfg.Redis.Enabled {
			deps.APIWindow = shared
			sinks = append(sinks, redis.NewEventBus(redisClient))
		}
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable at startup",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.Probes["s3"] = s3Client.Health
		sinks = append(sinks, s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix, logger))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		sinks = append(sinks, notify.NewAlertSink(deps.Notifier))
	}

	deps.Sink = sinks

	logger.Info("dependencies wired",
		slog.String("ledger", cfg.Ledger.Backend),
		slog.Bool("postgres", cfg.UsesPostgres()),
		slog.Bool("redis", cfg.UsesRedis()),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Int("notifiers", len(senders)),
	)
	return deps, cleanup, nil
}
