package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy names which pair of legs an opportunity buys.
type Strategy string

const (
	// StrategyBuyWin buys the venue A side and the venue B outcome that pays
	// when that side loses.
	StrategyBuyWin Strategy = "buy_win"
	// StrategyBuyLose buys against the venue A side and the venue B outcome
	// that pays when that side wins.
	StrategyBuyLose Strategy = "buy_lose"
)

// LegQuote is the priced instruction for one leg of an opportunity.
type LegQuote struct {
	Venue        Venue           `json:"venue"`
	InstrumentID string          `json:"instrument_id"`
	TokenID      string          `json:"token_id,omitempty"`
	Outcome      string          `json:"outcome"`
	Price        decimal.Decimal `json:"price"`
	Depth        int64           `json:"depth"`
}

// ArbitrageOpportunity is a detected two-leg trade with a positive edge.
// It is transient and never persisted on its own.
type ArbitrageOpportunity struct {
	ID         string          `json:"id"`
	GameID     GameID          `json:"game_id"`
	Sport      Sport           `json:"sport"`
	Strategy   Strategy        `json:"strategy"`
	LegA       LegQuote        `json:"leg_a"`
	LegB       LegQuote        `json:"leg_b"`
	Cost       decimal.Decimal `json:"cost"`
	EdgePct    decimal.Decimal `json:"edge_pct"`
	SpreadA    decimal.Decimal `json:"spread_a"`
	SpreadB    decimal.Decimal `json:"spread_b"`
	CloseTime  time.Time       `json:"close_time"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Legs returns the venue A leg then the venue B leg.
func (o ArbitrageOpportunity) Legs() [2]LegQuote {
	return [2]LegQuote{o.LegA, o.LegB}
}
