package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPORTSARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPORTSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "SPORTSARB_MODE")
	setStr(&cfg.LogLevel, "SPORTSARB_LOG_LEVEL")
	setStringSlice(&cfg.Sports, "SPORTSARB_SPORTS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SPORTSARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SPORTSARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SPORTSARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "SPORTSARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "SPORTSARB_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "SPORTSARB_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.APIKey, "SPORTSARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "SPORTSARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "SPORTSARB_POLYMARKET_API_PASSPHRASE")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.APIKey, "SPORTSARB_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RSAPrivateKeyPath, "SPORTSARB_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "SPORTSARB_KALSHI_BASE_URL")

	// ── Engine ──
	setDuration(&cfg.Scanner.Interval, "SPORTSARB_SCANNER_INTERVAL")
	setDecimal(&cfg.Detector.MinEdgePct, "SPORTSARB_DETECTOR_MIN_EDGE_PCT")
	setInt64(&cfg.Executor.Quantity, "SPORTSARB_EXECUTOR_QUANTITY")
	setDuration(&cfg.Executor.FillTimeout, "SPORTSARB_EXECUTOR_FILL_TIMEOUT")
	setStr(&cfg.Ledger.Backend, "SPORTSARB_LEDGER_BACKEND")
	setBool(&cfg.RateLimit.Distributed, "SPORTSARB_RATE_LIMIT_DISTRIBUTED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SPORTSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPORTSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPORTSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPORTSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPORTSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPORTSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPORTSARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SPORTSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SPORTSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SPORTSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPORTSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPORTSARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SPORTSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SPORTSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SPORTSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPORTSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPORTSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SPORTSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPORTSARB_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPORTSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SPORTSARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SPORTSARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPORTSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPORTSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPORTSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SPORTSARB_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
