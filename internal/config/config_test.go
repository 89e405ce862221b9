package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeDryRun, cfg.Mode)
	assert.Equal(t, []domain.Sport{domain.SportNBA, domain.SportNFL, domain.SportMLB, domain.SportNHL}, cfg.SportList())
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "scan"
sports = ["nba", "ncaab"]

[scanner]
interval = "5s"

[detector]
min_edge_pct = "2.5"
max_staleness = "10s"

[executor]
quantity = 25
fill_timeout = "45s"

[ledger]
backend = "redis"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeScan, cfg.Mode)
	assert.Equal(t, []domain.Sport{domain.SportNBA, domain.SportNCAAB}, cfg.SportList())
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)
	assert.True(t, decimal.RequireFromString("2.5").Equal(cfg.Detector.MinEdgePct))
	assert.Equal(t, int64(25), cfg.Executor.Quantity)
	assert.Equal(t, 45*time.Second, cfg.Executor.FillTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.PollInterval.Duration, "untouched keys keep defaults")
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, "[executor]\nquantty = 3\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor.quantty")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPORTSARB_MODE", "live")
	t.Setenv("SPORTSARB_SPORTS", "nhl, mlb")
	t.Setenv("SPORTSARB_LEDGER_BACKEND", "postgres")
	t.Setenv("SPORTSARB_POSTGRES_DSN", "postgres://u:p@db:5432/arb")
	t.Setenv("SPORTSARB_DETECTOR_MIN_EDGE_PCT", "0.75")
	t.Setenv("SPORTSARB_EXECUTOR_QUANTITY", "3")
	t.Setenv("SPORTSARB_SCANNER_INTERVAL", "2s")
	t.Setenv("SPORTSARB_WALLET_PRIVATE_KEY", "0xabc")
	t.Setenv("SPORTSARB_KALSHI_API_KEY", "kid")
	t.Setenv("SPORTSARB_KALSHI_RSA_PRIVATE_KEY_PATH", "/keys/kalshi.pem")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, []string{"nhl", "mlb"}, cfg.Sports)
	assert.True(t, cfg.UsesPostgres())
	assert.True(t, decimal.RequireFromString("0.75").Equal(cfg.Detector.MinEdgePct))
	assert.Equal(t, int64(3), cfg.Executor.Quantity)
	assert.Equal(t, 2*time.Second, cfg.Scanner.Interval.Duration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "full" }, "unknown mode"},
		{"unknown sport", func(c *Config) { c.Sports = []string{"nba", "curling"} }, `unknown sport "curling"`},
		{"no sports", func(c *Config) { c.Sports = nil }, "at least one sport"},
		{"live without wallet", func(c *Config) {
			c.Mode = ModeLive
			c.Ledger.Backend = BackendRedis
			c.Kalshi.APIKey, c.Kalshi.RSAPrivateKeyPath = "k", "p"
		}, "wallet"},
		{"live on memory ledger", func(c *Config) {
			c.Mode = ModeLive
			c.Wallet.PrivateKey = "0xabc"
			c.Kalshi.APIKey, c.Kalshi.RSAPrivateKeyPath = "k", "p"
		}, "durable backend"},
		{"partial polymarket creds", func(c *Config) { c.Polymarket.APIKey = "k" }, "must all be set together"},
		{"max price", func(c *Config) { c.Executor.MaxPrice = decimal.NewFromInt(1) }, "max_price"},
		{"poll exceeds timeout", func(c *Config) { c.Executor.PollInterval = duration{time.Minute} }, "poll_interval"},
		{"bad backend", func(c *Config) { c.Ledger.Backend = "sqlite" }, "unknown backend"},
		{"fill probability", func(c *Config) { c.Paper.FillProbability = 1.5 }, "fill_probability"},
		{"rate window", func(c *Config) { c.RateLimit.Kalshi.MaxCalls = 0 }, "rate_limit.kalshi"},
		{"s3 bucket", func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" }, "s3: bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Polymarket.APISecret = "s"
	cfg.Server.APIKey = "token"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Polymarket.APISecret)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.Wallet.KeyPassword, "empty values stay empty")
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)

	out.Sports[0] = "changed"
	assert.Equal(t, "nba", cfg.Sports[0])
}
