// Package config defines the top-level configuration of the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Modes of operation.
const (
	ModeLive   = "live"
	ModeDryRun = "dry_run"
	ModeScan   = "scan"
)

// Ledger and record store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPORTSARB_* environment variables.
type Config struct {
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
	Sports   []string `toml:"sports"`

	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Detector   DetectorConfig   `toml:"detector"`
	Executor   ExecutorConfig   `toml:"executor"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Paper      PaperConfig      `toml:"paper"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
}

// WalletConfig holds the Polygon wallet that signs Polymarket orders.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket endpoints, chain parameters and optional
// pre-issued CLOB credentials. Without credentials they are derived from the
// wallet at startup.
type PolymarketConfig struct {
	ClobHost        string `toml:"clob_host"`
	GammaHost       string `toml:"gamma_host"`
	ChainID         int    `toml:"chain_id"`
	ExchangeAddress string `toml:"exchange_address"`
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	APIPassphrase   string `toml:"api_passphrase"`
	BookWorkers     int    `toml:"book_workers"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	APIKey            string `toml:"api_key"`
	RSAPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
}

// RateLimitConfig holds one governor policy per venue. With Distributed set
// the sliding window lives in Redis and is shared by every process.
type RateLimitConfig struct {
	Distributed bool        `toml:"distributed"`
	Kalshi      VenueLimits `toml:"kalshi"`
	Polymarket  VenueLimits `toml:"polymarket"`
}

// VenueLimits is the window and adaptive backoff policy of one venue.
type VenueLimits struct {
	MaxCalls      int      `toml:"max_calls"`
	Window        duration `toml:"window"`
	BaseDelay     duration `toml:"base_delay"`
	MaxDelay      duration `toml:"max_delay"`
	BackoffFactor float64  `toml:"backoff_factor"`
	DecayFactor   float64  `toml:"decay_factor"`
	DecayAfter    int      `toml:"decay_after"`
}

// ScannerConfig controls the detection cycle.
type ScannerConfig struct {
	Interval     duration `toml:"interval"`
	FetchWorkers int      `toml:"fetch_workers"`
}

// MatcherConfig lists alias files merged over the built-in team table.
type MatcherConfig struct {
	AliasFiles []string `toml:"alias_files"`
}

// DetectorConfig holds the opportunity thresholds. Spreads are in price
// units, the edge in percent.
type DetectorConfig struct {
	MinEdgePct   decimal.Decimal `toml:"min_edge_pct"`
	MaxSpreadA   decimal.Decimal `toml:"max_spread_a"`
	MaxSpreadB   decimal.Decimal `toml:"max_spread_b"`
	MaxStaleness duration        `toml:"max_staleness"`
}

// ExecutorConfig controls two-leg execution.
type ExecutorConfig struct {
	Quantity       int64           `toml:"quantity"`
	PriceOffset    decimal.Decimal `toml:"price_offset"`
	MaxPrice       decimal.Decimal `toml:"max_price"`
	FillFraction   decimal.Decimal `toml:"fill_fraction"`
	PollInterval   duration        `toml:"poll_interval"`
	FillTimeout    duration        `toml:"fill_timeout"`
	MinTimeToClose duration        `toml:"min_time_to_close"`
	RetryCooldown  duration        `toml:"retry_cooldown"`
	MaxConcurrent  int             `toml:"max_concurrent"`
	QueueSize      int             `toml:"queue_size"`
}

// LedgerConfig selects where ledger entries and execution records live.
// Records go to Postgres when either backend is postgres and to memory
// otherwise.
type LedgerConfig struct {
	Backend string `toml:"backend"`
}

// PaperConfig controls the simulated order clients of dry_run mode.
type PaperConfig struct {
	Balance         decimal.Decimal `toml:"balance"`
	FillProbability float64         `toml:"fill_probability"`
	Seed            uint64          `toml:"seed"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. The event bus is enabled
// whenever Redis is in use.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds the execution archive bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     ModeDryRun,
		LogLevel: "info",
		Sports:   []string{"nba", "nfl", "mlb", "nhl"},
		Polymarket: PolymarketConfig{
			ClobHost:    "https://clob.polymarket.com",
			GammaHost:   "https://gamma-api.polymarket.com",
			ChainID:     137,
			BookWorkers: 8,
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		RateLimit: RateLimitConfig{
			Kalshi: VenueLimits{
				MaxCalls:      10,
				Window:        duration{time.Second},
				BaseDelay:     duration{100 * time.Millisecond},
				MaxDelay:      duration{10 * time.Second},
				BackoffFactor: 2,
				DecayFactor:   0.5,
				DecayAfter:    5,
			},
			Polymarket: VenueLimits{
				MaxCalls:      50,
				Window:        duration{10 * time.Second},
				BaseDelay:     duration{50 * time.Millisecond},
				MaxDelay:      duration{10 * time.Second},
				BackoffFactor: 2,
				DecayFactor:   0.5,
				DecayAfter:    5,
			},
		},
		Scanner: ScannerConfig{
			Interval:     duration{15 * time.Second},
			FetchWorkers: 2,
		},
		Detector: DetectorConfig{
			MinEdgePct:   dec("1.0"),
			MaxSpreadA:   dec("0.05"),
			MaxSpreadB:   dec("0.05"),
			MaxStaleness: duration{30 * time.Second},
		},
		Executor: ExecutorConfig{
			Quantity:       10,
			PriceOffset:    dec("0.01"),
			MaxPrice:       dec("0.99"),
			FillFraction:   dec("0.9"),
			PollInterval:   duration{500 * time.Millisecond},
			FillTimeout:    duration{30 * time.Second},
			MinTimeToClose: duration{10 * time.Minute},
			RetryCooldown:  duration{2 * time.Minute},
			MaxConcurrent:  4,
			QueueSize:      32,
		},
		Ledger: LedgerConfig{Backend: BackendMemory},
		Paper: PaperConfig{
			Balance:         dec("1000"),
			FillProbability: 0.9,
			Seed:            1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "sportsarb",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sportsarb",
			Prefix:         "archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"filled", "failed", "partial"},
		},
	}
}

var validModes = map[string]bool{ModeLive: true, ModeDryRun: true, ModeScan: true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validBackends = map[string]bool{BackendMemory: true, BackendPostgres: true, BackendRedis: true}

// SportList returns the configured sports in order. Unknown names are
// reported by Validate and skipped here.
func (c *Config) SportList() []domain.Sport {
	out := make([]domain.Sport, 0, len(c.Sports))
	for _, s := range c.Sports {
		if sp, ok := domain.ParseSport(s); ok {
			out = append(out, sp)
		}
	}
	return out
}

// UsesPostgres reports whether any component needs the database.
func (c *Config) UsesPostgres() bool { return c.Ledger.Backend == BackendPostgres }

// UsesRedis reports whether any component needs Redis.
func (c *Config) UsesRedis() bool {
	return c.Redis.Enabled || c.Ledger.Backend == BackendRedis || c.RateLimit.Distributed
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, dry_run, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if len(c.Sports) == 0 {
		errs = append(errs, "sports must list at least one sport")
	}
	for _, s := range c.Sports {
		if _, ok := domain.ParseSport(s); !ok {
			errs = append(errs, fmt.Sprintf("unknown sport %q", s))
		}
	}

	if c.Mode == ModeLive {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Kalshi.APIKey == "" || c.Kalshi.RSAPrivateKeyPath == "" {
			errs = append(errs, "kalshi: api_key and rsa_private_key_path are required for live mode")
		}
		if c.Ledger.Backend == BackendMemory {
			errs = append(errs, "ledger: live mode needs a durable backend (postgres or redis)")
		}
	}

	pk, ps, pp := c.Polymarket.APIKey != "", c.Polymarket.APISecret != "", c.Polymarket.APIPassphrase != ""
	if (pk || ps || pp) && !(pk && ps && pp) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.GammaHost == "" || c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: gamma_host and clob_host must not be empty")
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	for _, v := range []struct {
		name string
		l    VenueLimits
	}{{"kalshi", c.RateLimit.Kalshi}, {"polymarket", c.RateLimit.Polymarket}} {
		name, l := v.name, v.l
		if l.MaxCalls < 1 || l.Window.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limit.%s: max_calls and window must be positive", name))
		}
		if l.MaxDelay.Duration < l.BaseDelay.Duration {
			errs = append(errs, fmt.Sprintf("rate_limit.%s: max_delay must not be below base_delay", name))
		}
	}

	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Detector.MinEdgePct.IsNegative() {
		errs = append(errs, "detector: min_edge_pct must not be negative")
	}
	if c.Detector.MaxStaleness.Duration <= 0 {
		errs = append(errs, "detector: max_staleness must be positive")
	}

	e := c.Executor
	if e.Quantity < 1 {
		errs = append(errs, "executor: quantity must be >= 1")
	}
	if !e.MaxPrice.IsPositive() || e.MaxPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "executor: max_price must be in (0, 1)")
	}
	if !e.FillFraction.IsPositive() || e.FillFraction.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "executor: fill_fraction must be in (0, 1]")
	}
	if e.PollInterval.Duration <= 0 || e.FillTimeout.Duration < e.PollInterval.Duration {
		errs = append(errs, "executor: poll_interval must be positive and not exceed fill_timeout")
	}
	if e.MaxConcurrent < 1 {
		errs = append(errs, "executor: max_concurrent must be >= 1")
	}

	if !validBackends[c.Ledger.Backend] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: memory, postgres, redis)", c.Ledger.Backend))
	}
	if c.Mode == ModeDryRun && (c.Paper.FillProbability < 0 || c.Paper.FillProbability > 1) {
		errs = append(errs, "paper: fill_probability must be in [0, 1]")
	}

	if c.UsesPostgres() && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		errs = append(errs, "s3: bucket and region are required when enabled")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
