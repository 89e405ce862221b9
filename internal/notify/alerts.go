package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// AlertSink is a domain.EventSink that renders opportunities and terminal
// executions as chat messages. PARTIAL executions are always sent.
type AlertSink struct {
	n *Notifier
}

// NewAlertSink wraps n.
func NewAlertSink(n *Notifier) *AlertSink {
	return &AlertSink{n: n}
}

// OnOpportunity implements domain.EventSink.
func (s *AlertSink) OnOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if !s.n.Enabled(EventOpportunity) {
		return nil
	}
	title := fmt.Sprintf("Arb %s %s%%", opp.GameID, opp.EdgePct.StringFixed(2))
	msg := fmt.Sprintf("%s\nA: %s %s @ %s\nB: %s %s @ %s\ncost %s",
		opp.Strategy,
		opp.LegA.Venue, opp.LegA.Outcome, opp.LegA.Price,
		opp.LegB.Venue, opp.LegB.Outcome, opp.LegB.Price,
		opp.Cost,
	)
	return s.n.Notify(ctx, EventOpportunity, title, msg)
}

// OnExecutionTerminal implements domain.EventSink.
func (s *AlertSink) OnExecutionTerminal(ctx context.Context, rec domain.ExecutionRecord) error {
	switch rec.Result {
	case domain.StatePartial:
		return s.n.Alert(ctx, "PARTIAL execution "+string(rec.GameID), PartialMessage(rec))
	case domain.StateFilled:
		return s.n.Notify(ctx, EventFilled, "Filled "+string(rec.GameID), legSummary(rec))
	case domain.StateFailed:
		return s.n.Notify(ctx, EventFailed, "Failed "+string(rec.GameID), legSummary(rec)+"\n"+rec.Reason)
	}
	return nil
}

// PartialMessage describes the unhedged exposure of a partial execution.
func PartialMessage(rec domain.ExecutionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "execution %s needs manual review\n", rec.ID)
	exposure := rec.Exposure()
	if len(exposure) == 0 {
		b.WriteString("legs hedged below fill fraction, no unhedged contracts\n")
	}
	for _, e := range exposure {
		if e.Unknown {
			fmt.Fprintf(&b, "%s %s %s: status unknown, up to %d contracts\n", e.Venue, e.InstrumentID, e.Outcome, e.Quantity)
			continue
		}
		fmt.Fprintf(&b, "%s %s %s: %d contracts unhedged\n", e.Venue, e.InstrumentID, e.Outcome, e.Quantity)
	}
	b.WriteString(legSummary(rec))
	return b.String()
}

func legSummary(rec domain.ExecutionRecord) string {
	parts := make([]string, 0, len(rec.Legs))
	for _, l := range rec.Legs {
		parts = append(parts, fmt.Sprintf("%s %s %d/%d %s", l.Venue, l.Outcome, l.FilledQty, l.RequestedQty, l.Status))
	}
	return strings.Join(parts, "\n")
}

var _ domain.EventSink = (*AlertSink)(nil)
