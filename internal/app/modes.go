package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/detector"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/executor"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
	"github.com/alanyoungcy/sportsarb/internal/scanner"
	"github.com/alanyoungcy/sportsarb/internal/server"
	"github.com/alanyoungcy/sportsarb/internal/server/handler"
)

// apiRequestsPerMinute bounds each operator API client.
const apiRequestsPerMinute = 120

// TradeMode runs the scan loop feeding the execution coordinator. In live
// mode orders go to the exchanges; in dry_run they go to paper clients.
// Executions left in flight by a previous run are recovered before the first
// scan.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.String("mode", a.cfg.Mode))

	v, err := a.buildVenues(ctx, deps)
	if err != nil {
		return err
	}
	exec, err := executor.New(a.executorConfig(), v.orders, deps.Ledger, deps.Records, deps.Sink, a.logger)
	if err != nil {
		return fmt.Errorf("app: executor: %w", err)
	}
	if n, err := exec.Recover(ctx); err != nil {
		a.logger.WarnContext(ctx, "recovery incomplete",
			slog.Int("resolved", n),
			slog.String("error", err.Error()),
		)
	}

	queue := a.cfg.Executor.QueueSize
	if queue < 1 {
		queue = 1
	}
	opps := make(chan domain.ArbitrageOpportunity, queue)
	scan, err := a.buildScanner(v, deps, opps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(opps)
		return scan.Run(ctx)
	})
	g.Go(func() error {
		return exec.Run(ctx, opps)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, v, exec)
	}
	return g.Wait()
}

// ScanMode detects and reports opportunities without placing orders.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	v, err := a.buildVenues(ctx, deps)
	if err != nil {
		return err
	}
	scan, err := a.buildScanner(v, deps, nil)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scan.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, v, nil)
	}
	return g.Wait()
}

func (a *App) buildScanner(v *venues, deps *Dependencies, out chan<- domain.ArbitrageOpportunity) (*scanner.Scanner, error) {
	var extra []string
	for _, path := range a.cfg.Matcher.AliasFiles {
		doc, err := matcher.LoadAliasFile(path)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		extra = append(extra, doc)
	}
	aliases, err := matcher.NewAliasResolver(extra...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	det := detector.New(detector.Config{
		MinEdgePct:   a.cfg.Detector.MinEdgePct,
		MaxSpreadA:   a.cfg.Detector.MaxSpreadA,
		MaxSpreadB:   a.cfg.Detector.MaxSpreadB,
		MaxStaleness: a.cfg.Detector.MaxStaleness.Duration,
	}, aliases)

	return scanner.New(scanner.Config{
		Sports:       a.cfg.SportList(),
		Interval:     a.cfg.Scanner.Interval.Duration,
		FetchWorkers: a.cfg.Scanner.FetchWorkers,
	}, v.kalshi, v.polymarket, matcher.New(aliases, a.logger), det, deps.Sink, out, deps.Metrics, a.logger), nil
}

func (a *App) executorConfig() executor.Config {
	ec := executor.DefaultConfig()
	e := a.cfg.Executor
	ec.Quantity = e.Quantity
	ec.PriceOffset = e.PriceOffset
	ec.MaxPrice = e.MaxPrice
	ec.FillFraction = e.FillFraction
	ec.PollInterval = e.PollInterval.Duration
	ec.FillTimeout = e.FillTimeout.Duration
	ec.MinTimeToClose = e.MinTimeToClose.Duration
	ec.RetryCooldown = e.RetryCooldown.Duration
	ec.MaxConcurrent = e.MaxConcurrent
	return ec
}

// startHTTPServer registers the operator API and runs it inside g. exec is
// nil in scan mode, which leaves acknowledgement unavailable.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	v *venues,
	exec *executor.Coordinator,
) {
	delays := make([]handler.DelaySource, 0, len(v.governors))
	for _, gov := range v.governors {
		delays = append(delays, gov)
	}
	var acker handler.Acknowledger
	if exec != nil {
		acker = exec
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerMinute: apiRequestsPerMinute,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, deps.Ledger, deps.Probes),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.Sports, delays...),
		Ledger:  handler.NewLedgerHandler(deps.Ledger, deps.Records, acker, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, deps.APIWindow, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
