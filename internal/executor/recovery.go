package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Recover resolves executions interrupted by a restart. Every ledger entry
// still EXECUTING is re-read from the execution store and its legs are
// re-polled at the venue; legs with no known order handle cannot be
// established and force PARTIAL. It returns the number of games resolved.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	entries, err := c.ledger.ListByState(ctx, domain.StateExecuting)
	if err != nil {
		return 0, fmt.Errorf("executor: recover: list executing: %w", err)
	}

	var errs []error
	resolved := 0
	for _, e := range entries {
		if err := c.recoverOne(ctx, e); err != nil {
			errs = append(errs, err)
			continue
		}
		resolved++
	}
	if len(entries) > 0 {
		c.logger.Info("recovery complete", slog.Int("executing", len(entries)), slog.Int("resolved", resolved))
	}
	return resolved, errors.Join(errs...)
}

func (c *Coordinator) recoverOne(ctx context.Context, entry domain.LedgerEntry) error {
	log := c.logger.With(
		slog.String("game_id", string(entry.GameID)),
		slog.String("execution_id", entry.ExecutionID),
	)

	rec, err := c.store.Get(ctx, entry.ExecutionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		now := c.now().UTC()
		rec = domain.ExecutionRecord{
			ID:        entry.ExecutionID,
			GameID:    entry.GameID,
			CreatedAt: now,
			UpdatedAt: now,
			Notes:     []string{"execution record missing at recovery"},
		}
		for i := range rec.Legs {
			rec.Legs[i].Status = domain.LegUnknown
		}
	case err != nil:
		return fmt.Errorf("executor: recover %s: %w", entry.GameID, err)
	}
	rec.State = domain.StateExecuting

	for i := range rec.Legs {
		c.refreshLeg(ctx, &rec.Legs[i], log)
	}
	c.reconcile(ctx, &rec, log)
	rec.Notes = append(rec.Notes, "resolved by startup recovery")
	log.Info("recovering execution")
	return c.finish(ctx, &rec, log)
}

// refreshLeg re-establishes a leg's venue state after a restart.
func (c *Coordinator) refreshLeg(ctx context.Context, leg *domain.LegRecord, log *slog.Logger) {
	if leg.Status == domain.LegFilled {
		return
	}
	h, ok := leg.Handle()
	if !ok {
		leg.Status = domain.LegUnknown
		return
	}
	client := c.clients[leg.Venue]
	if client == nil {
		leg.Status = domain.LegUnknown
		return
	}
	st, err := client.PollOrder(ctx, h)
	if err != nil {
		log.Warn("recovery poll failed", slog.String("venue", string(leg.Venue)), slog.String("order_id", leg.OrderID), slog.String("error", err.Error()))
		leg.Status = domain.LegUnknown
		return
	}
	applyStatus(leg, st)
	switch {
	case leg.FilledAtLeast(c.cfg.FillFraction) || st.State == domain.OrderFilled:
		leg.Status = domain.LegFilled
	case st.State == domain.OrderCancelled:
		leg.Status = domain.LegCancelled
	case st.State == domain.OrderRejected:
		leg.Status = domain.LegRejected
	default:
		leg.Status = domain.LegSubmitted
	}
}

// Acknowledge settles a PARTIAL game after an operator has resolved the
// exposure out of band. The game keeps its position and is not re-enterable.
func (c *Coordinator) Acknowledge(ctx context.Context, gameID domain.GameID, note string) (domain.ExecutionRecord, error) {
	entry, err := c.ledger.Get(ctx, gameID)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acknowledge %s: %w", gameID, err)
	}
	if entry.State != domain.StatePartial {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acknowledge %s in state %s: %w", gameID, entry.State, domain.ErrStateConflict)
	}
	if err := c.ledger.Transition(ctx, gameID, domain.StatePartial, domain.StateSettled, true); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acknowledge %s: %w", gameID, err)
	}

	rec, err := c.store.Get(ctx, entry.ExecutionID)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("executor: acknowledge %s: load record: %w", gameID, err)
	}
	rec.State = domain.StateSettled
	msg := "acknowledged"
	if note = strings.TrimSpace(note); note != "" {
		msg += ": " + note
	}
	rec.Notes = append(rec.Notes, msg)
	if err := c.save(ctx, &rec); err != nil {
		return rec, fmt.Errorf("executor: acknowledge %s: %w", gameID, err)
	}
	c.logger.Info("partial execution acknowledged",
		slog.String("game_id", string(gameID)),
		slog.String("execution_id", rec.ID),
	)
	return rec, nil
}
