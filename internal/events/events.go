// Package events composes domain.EventSink implementations.
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Fanout delivers every event to each sink in order. A failing sink does not
// stop delivery to the rest; the errors are joined.
type Fanout []domain.EventSink

// OnOpportunity implements domain.EventSink.
func (f Fanout) OnOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	var errs []error
	for _, s := range f {
		if err := s.OnOpportunity(ctx, opp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnExecutionTerminal implements domain.EventSink.
func (f Fanout) OnExecutionTerminal(ctx context.Context, rec domain.ExecutionRecord) error {
	var errs []error
	for _, s := range f {
		if err := s.OnExecutionTerminal(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

// OnOpportunity implements domain.EventSink.
func (s *LogSink) OnOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	s.logger.InfoContext(ctx, "opportunity",
		slog.String("id", opp.ID),
		slog.String("game_id", string(opp.GameID)),
		slog.String("strategy", string(opp.Strategy)),
		slog.String("edge_pct", opp.EdgePct.StringFixed(3)),
		slog.String("cost", opp.Cost.String()),
		slog.String("leg_a", opp.LegA.Outcome+"@"+opp.LegA.Price.String()),
		slog.String("leg_b", opp.LegB.Outcome+"@"+opp.LegB.Price.String()),
	)
	return nil
}

// OnExecutionTerminal implements domain.EventSink.
func (s *LogSink) OnExecutionTerminal(ctx context.Context, rec domain.ExecutionRecord) error {
	level := slog.LevelInfo
	if rec.Result == domain.StatePartial {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "execution terminal",
		slog.String("execution_id", rec.ID),
		slog.String("game_id", string(rec.GameID)),
		slog.String("state", string(rec.State)),
		slog.String("result", string(rec.Result)),
		slog.Int64("filled_a", rec.Legs[0].FilledQty),
		slog.Int64("filled_b", rec.Legs[1].FilledQty),
	)
	return nil
}

var (
	_ domain.EventSink = Fanout(nil)
	_ domain.EventSink = (*LogSink)(nil)
)
