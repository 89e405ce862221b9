package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Run executes opportunities from opps until ctx is cancelled or opps is
// closed, with at most MaxConcurrent executions in flight. Games seen within
// RetryCooldown are skipped. Run waits for in-flight executions before
// returning.
func (c *Coordinator) Run(ctx context.Context, opps <-chan domain.ArbitrageOpportunity) error {
	c.logger.Info("executor started", slog.Int("max_concurrent", c.cfg.MaxConcurrent))
	defer c.logger.Info("executor stopped")

	sem := make(chan struct{}, c.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	defer wg.Wait()

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(opps)
			return ctx.Err()

		case opp, ok := <-opps:
			if !ok {
				return nil
			}
			if c.cooldown.Seen(opp.GameID) {
				c.logger.Debug("game in cooldown", slog.String("game_id", string(opp.GameID)))
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				c.drain(opps)
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(ctx, opp)
			}()

		case <-cleanup.C:
			c.cooldown.Cleanup()
		}
	}
}

func (c *Coordinator) process(ctx context.Context, opp domain.ArbitrageOpportunity) {
	rec, err := c.Execute(ctx, opp)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLedgerClaimDenied):
		c.logger.Debug("execution skipped", slog.String("game_id", string(opp.GameID)), slog.String("error", err.Error()))
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, context.Canceled):
	default:
		c.logger.Error("execution error",
			slog.String("game_id", string(opp.GameID)),
			slog.String("execution_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// drain discards opportunities buffered in opps at shutdown.
func (c *Coordinator) drain(opps <-chan domain.ArbitrageOpportunity) {
	n := 0
	for {
		select {
		case _, ok := <-opps:
			if !ok {
				return
			}
			n++
		default:
			if n > 0 {
				c.logger.Info("discarded pending opportunities", slog.Int("count", n))
			}
			return
		}
	}
}
