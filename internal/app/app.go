// Package app wires the arbitrage engine together: persistence, rate
// governors, venue adapters, the scan loop, the execution coordinator and the
// operator API, started according to the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/sportsarb/internal/config"
)

// App owns one run of the engine and the resources it opened.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App. cfg is expected to have passed Validate.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts the goroutines of the configured mode
// and blocks until the context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.Any("sports", a.cfg.Sports),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case config.ModeLive, config.ModeDryRun:
		return a.TradeMode(ctx, deps)
	case config.ModeScan:
		return a.ScanMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases stores and connections in reverse order of creation.
// Calls after the first do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("releasing resources", slog.Int("count", len(a.closers)))
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
