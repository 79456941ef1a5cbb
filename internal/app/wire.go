package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tylerheishman/manifold/internal/cache/redis"
	"github.com/tylerheishman/manifold/internal/config"
	"github.com/tylerheishman/manifold/internal/cpmm"
	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/notify"
	"github.com/tylerheishman/manifold/internal/server"
	"github.com/tylerheishman/manifold/internal/server/handler"
	"github.com/tylerheishman/manifold/internal/server/ws"
	"github.com/tylerheishman/manifold/internal/service"
	"github.com/tylerheishman/manifold/internal/store/memory"
	"github.com/tylerheishman/manifold/internal/store/postgres"
)

const shutdownTimeout = 5 * time.Second

// Dependencies bundles the constructed subsystems the application runs. It is
// built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger   domain.Ledger
	Cache    domain.ContractCache
	Limiter  domain.RateLimiter
	Bus      domain.SignalBus
	Notifier *notify.Notifier

	Hub    *ws.Hub
	Server *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger ---
	switch strings.ToLower(cfg.Store.Driver) {
	case "postgres":
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

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Ledger = postgres.NewLedger(pgClient, postgres.RetryPolicy{
			MaxAttempts: cfg.Store.RetryMaxAttempts,
			BaseBackoff: cfg.Store.RetryBaseBackoff.Duration,
		}, logger)
	case "memory":
		logger.InfoContext(ctx, "using in-memory ledger; all state is lost on restart")
		deps.Ledger = memory.NewLedger()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unsupported store driver %q", cfg.Store.Driver)
	}

	// --- Redis (cache, rate limiter, signal bus) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewContractCache(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	} else {
		logger.InfoContext(ctx, "redis addr not set; contract cache, rate limiting, and websocket fan-out are disabled")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	answerSvc := service.NewAnswerService(deps.Ledger, deps.Cache, deps.Bus, deps.Notifier, logger)
	redeemSvc := service.NewRedeemService(deps.Ledger, cpmm.ProportionalLoanPolicy{}, logger)
	marketSvc := service.NewMarketService(deps.Ledger, deps.Cache, logger)

	// --- HTTP server + WebSocket hub ---
	if deps.Bus != nil {
		deps.Hub = ws.NewHub(deps.Bus, logger)
	}

	deps.Server = server.NewServer(server.Config{
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		JWTSecret:       cfg.Server.JWTSecret,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(marketSvc, logger),
		Answers: handler.NewAnswerHandler(answerSvc, logger),
		Redeem:  handler.NewRedeemHandler(redeemSvc, logger),
	}, deps.Limiter, deps.Hub, logger)

	return deps, cleanup, nil
}
