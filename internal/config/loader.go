package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix is prepended to every override variable, e.g. MANIFOLD_SERVER_PORT.
const envPrefix = "MANIFOLD_"

// Load reads configuration from the given TOML file, then applies
// environment variable overrides, then validates the result. A missing file
// is not an error; defaults plus environment variables apply.
func Load(path string) (Config, error) {
	// Best effort; a missing .env file is fine.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg fields from MANIFOLD_* environment variables.
func applyEnv(cfg *Config) {
	setStr("STORE_DRIVER", &cfg.Store.Driver)
	setInt("STORE_RETRY_MAX_ATTEMPTS", &cfg.Store.RetryMaxAttempts)
	setDuration("STORE_RETRY_BASE_BACKOFF", &cfg.Store.RetryBaseBackoff)

	setStr("POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("POSTGRES_USER", &cfg.Postgres.User)
	setStr("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("REDIS_ADDR", &cfg.Redis.Addr)
	setStr("REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)
	setInt("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setInt("REDIS_MAX_RETRIES", &cfg.Redis.MaxRetries)
	setBool("REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setInt("SERVER_PORT", &cfg.Server.Port)
	setStringSlice("SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("SERVER_JWT_SECRET", &cfg.Server.JWTSecret)
	setInt("SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setDuration("SERVER_RATE_LIMIT_WINDOW", &cfg.Server.RateLimitWindow)

	setStr("NOTIFY_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("NOTIFY_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("NOTIFY_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("NOTIFY_EVENTS", &cfg.Notify.Events)

	setStr("LOG_LEVEL", &cfg.LogLevel)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return v, ok
}

func setStr(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := lookup(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
