// Command sportsarb runs the cross-venue sports arbitrage engine between
// Kalshi and Polymarket.
//
//	sportsarb -config config.toml [-mode scan]
//	sportsarb -config config.toml -encrypt-key wallet.json
//
// The second form seals wallet.private_key with wallet.key_password (usually
// given as SPORTSARB_WALLET_PRIVATE_KEY and SPORTSARB_WALLET_KEY_PASSWORD)
// into a key file for wallet.encrypted_key_path, then exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/sportsarb/internal/app"
	"github.com/alanyoungcy/sportsarb/internal/config"
	"github.com/alanyoungcy/sportsarb/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults)")
	mode := flag.String("mode", "", "override the configured mode: live, dry_run or scan")
	encryptTo := flag.String("encrypt-key", "", "write the configured wallet key, encrypted, to this path and exit")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if *encryptTo != "" {
		if err := encryptWallet(cfg.Wallet, *encryptTo); err != nil {
			logger.Error("encrypt wallet key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("wallet key file written", slog.String("path", *encryptTo))
		return
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sportsarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("sportsarb stopped")
}

// run blocks until SIGINT or SIGTERM. A shutdown by signal is not an error.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	err := application.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("shutdown signal received")
		return nil
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func encryptWallet(w config.WalletConfig, path string) error {
	if w.PrivateKey == "" {
		return errors.New("wallet.private_key is not set")
	}
	data, err := crypto.EncryptKey(w.PrivateKey, w.KeyPassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
