// Package detector turns a matched game into at most one arbitrage
// opportunity.
package detector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Aligner resolves which venue B outcome names the venue A side.
type Aligner interface {
	WinningOutcome(sport domain.Sport, side string, labels [2]string) (int, error)
}

// Config holds the opportunity thresholds.
type Config struct {
	MinEdgePct   decimal.Decimal
	MaxSpreadA   decimal.Decimal
	MaxSpreadB   decimal.Decimal
	MaxStaleness time.Duration
}

// Detector evaluates matched events. It holds no mutable state; the same
// event and clock always produce the same result.
type Detector struct {
	cfg     Config
	aligner Aligner
	now     func() time.Time
}

// New creates a Detector using the wall clock.
func New(cfg Config, aligner Aligner) *Detector {
	return NewWithClock(cfg, aligner, time.Now)
}

// NewWithClock creates a Detector with an injected clock.
func NewWithClock(cfg Config, aligner Aligner, now func() time.Time) *Detector {
	return &Detector{cfg: cfg, aligner: aligner, now: now}
}

// Edge returns (1 - cost) * 100 when cost < 1 and zero otherwise.
func Edge(cost decimal.Decimal) decimal.Decimal {
	if cost.GreaterThanOrEqual(one) {
		return decimal.Zero
	}
	return one.Sub(cost).Mul(hundred)
}

// Detect returns the better of the two strategies for ev, or an error
// wrapping domain.ErrMatchingAmbiguous or domain.ErrQualityRejected.
func (d *Detector) Detect(ev domain.MatchedEvent) (domain.ArbitrageOpportunity, error) {
	a, b := ev.A, ev.B

	win, err := d.aligner.WinningOutcome(ev.Sport, a.Side, [2]string{b.Outcomes[0].Label, b.Outcomes[1].Label})
	if err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: %w", ev.GameID, err)
	}
	if !ev.Alignment.Resolved || ev.Alignment.WinIndex != win || ev.Alignment.LoseIndex != 1-win {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: matcher alignment %+v disagrees with outcome %d: %w",
			ev.GameID, ev.Alignment, win, domain.ErrMatchingAmbiguous)
	}
	lose := 1 - win

	buyWin := a.Outcomes[domain.WinIndex].Ask.Add(b.Outcomes[lose].Ask)
	buyLose := a.Outcomes[domain.LoseIndex].Ask.Add(b.Outcomes[win].Ask)

	now := d.now()
	spreadB := b.Overround()
	switch {
	case a.Spread.GreaterThan(d.cfg.MaxSpreadA):
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: venue A spread %s > %s: %w",
			ev.GameID, a.Spread, d.cfg.MaxSpreadA, domain.ErrQualityRejected)
	case spreadB.GreaterThan(d.cfg.MaxSpreadB):
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: venue B spread %s > %s: %w",
			ev.GameID, spreadB, d.cfg.MaxSpreadB, domain.ErrQualityRejected)
	case a.Age(now) >= d.cfg.MaxStaleness:
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: venue A snapshot stale: %w",
			ev.GameID, domain.ErrQualityRejected)
	case b.Age(now) >= d.cfg.MaxStaleness:
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: venue B snapshot stale: %w",
			ev.GameID, domain.ErrQualityRejected)
	}

	winEdge, loseEdge := Edge(buyWin), Edge(buyLose)
	strategy, cost, edge := domain.StrategyBuyWin, buyWin, winEdge
	if loseEdge.GreaterThan(winEdge) {
		strategy, cost, edge = domain.StrategyBuyLose, buyLose, loseEdge
	}
	if !edge.IsPositive() || edge.LessThan(d.cfg.MinEdgePct) {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("detector: %s: best edge %s%% below %s%%: %w",
			ev.GameID, edge, d.cfg.MinEdgePct, domain.ErrQualityRejected)
	}

	legA := domain.LegQuote{Venue: a.Venue, InstrumentID: a.InstrumentID}
	legB := domain.LegQuote{Venue: b.Venue, InstrumentID: b.InstrumentID}
	var aq, bq domain.Quote
	if strategy == domain.StrategyBuyWin {
		aq, bq = a.Outcomes[domain.WinIndex], b.Outcomes[lose]
	} else {
		aq, bq = a.Outcomes[domain.LoseIndex], b.Outcomes[win]
	}
	legA.Outcome, legA.TokenID, legA.Price, legA.Depth = aq.Label, aq.TokenID, aq.Ask, aq.Depth
	legB.Outcome, legB.TokenID, legB.Price, legB.Depth = bq.Label, bq.TokenID, bq.Ask, bq.Depth

	return domain.ArbitrageOpportunity{
		ID:         opportunityID(ev.GameID, strategy, legA.Price, legB.Price),
		GameID:     ev.GameID,
		Sport:      ev.Sport,
		Strategy:   strategy,
		LegA:       legA,
		LegB:       legB,
		Cost:       cost,
		EdgePct:    edge,
		SpreadA:    a.Spread,
		SpreadB:    spreadB,
		CloseTime:  earliest(a.CloseTime, b.CloseTime),
		DetectedAt: now,
	}, nil
}

func opportunityID(game domain.GameID, s domain.Strategy, pa, pb decimal.Decimal) string {
	key := fmt.Sprintf("%s|%s|%s|%s", game, s, pa.String(), pb.String())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero() || a.Before(b):
		return a
	default:
		return b
	}
}
