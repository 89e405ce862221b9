package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies a trading venue.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Sport partitions matching. The zero value means unclassified.
type Sport string

const (
	SportUnknown Sport = ""
	SportNBA     Sport = "nba"
	SportNFL     Sport = "nfl"
	SportMLB     Sport = "mlb"
	SportNHL     Sport = "nhl"
	SportNCAAF   Sport = "ncaaf"
	SportNCAAB   Sport = "ncaab"
)

// Sports lists every classified sport in scan order.
var Sports = []Sport{SportNBA, SportNFL, SportMLB, SportNHL, SportNCAAF, SportNCAAB}

// ParseSport maps a config or URL value to a Sport.
func ParseSport(s string) (Sport, bool) {
	want := Sport(strings.ToLower(strings.TrimSpace(s)))
	for _, sp := range Sports {
		if sp == want {
			return sp, true
		}
	}
	return SportUnknown, false
}

// GameID is the canonical identifier of one contest, taken from venue A.
type GameID string

// GameIDFromTicker derives the game id from a Kalshi market ticker by
// dropping the trailing side segment: KXNBAGAME-25OCT21HOUOKC-HOU becomes
// KXNBAGAME-25OCT21HOUOKC.
func GameIDFromTicker(ticker string) (GameID, error) {
	i := strings.LastIndex(ticker, "-")
	if i <= 0 || i == len(ticker)-1 {
		return "", fmt.Errorf("domain: ticker %q: %w", ticker, ErrInvalidMarket)
	}
	return GameID(ticker[:i]), nil
}

// Outcome labels used for venue A's two order sides.
const (
	OutcomeYes = "yes"
	OutcomeNo  = "no"
)

// Indexes into NormalizedMarket.Outcomes for a venue A instrument.
const (
	WinIndex  = 0 // buy-win: YES on the identified side
	LoseIndex = 1 // buy-lose: NO on the identified side
)

// Quote is one purchasable outcome of an instrument.
type Quote struct {
	Label   string
	TokenID string
	Ask     decimal.Decimal
	Depth   int64
}

// NormalizedMarket is a venue-independent snapshot of one binary instrument.
//
// For venue A the instrument is one team side of a game: Side names that
// team and Outcomes holds the buy-win and buy-lose prices. For venue B the
// instrument is the whole game and Outcomes holds the two team labels.
type NormalizedMarket struct {
	Venue        Venue
	InstrumentID string
	GameID       GameID
	Sport        Sport
	Title        string
	Side         string
	Slug         string
	Outcomes     [2]Quote
	Spread       decimal.Decimal // venue A bid/ask spread on the win side
	CloseTime    time.Time
	FetchedAt    time.Time
}

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// NewNormalizedMarket validates m and returns it with labels trimmed.
// Every ask must lie strictly between 0 and 1.
func NewNormalizedMarket(m NormalizedMarket) (NormalizedMarket, error) {
	if m.InstrumentID == "" {
		return NormalizedMarket{}, fmt.Errorf("domain: empty instrument id: %w", ErrInvalidMarket)
	}
	for i := range m.Outcomes {
		m.Outcomes[i].Label = strings.TrimSpace(m.Outcomes[i].Label)
		ask := m.Outcomes[i].Ask
		if ask.LessThanOrEqual(zero) || ask.GreaterThanOrEqual(one) {
			return NormalizedMarket{}, fmt.Errorf("domain: %s outcome %d ask %s out of range: %w",
				m.InstrumentID, i, ask, ErrInvalidMarket)
		}
		if m.Outcomes[i].Depth < 0 {
			m.Outcomes[i].Depth = 0
		}
	}
	if m.Spread.IsNegative() {
		return NormalizedMarket{}, fmt.Errorf("domain: %s negative spread: %w", m.InstrumentID, ErrInvalidMarket)
	}
	m.Side = strings.TrimSpace(m.Side)
	return m, nil
}

// Age reports how old the snapshot is. A zero FetchedAt is maximally stale.
func (m NormalizedMarket) Age(now time.Time) time.Duration {
	if m.FetchedAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(m.FetchedAt)
}

// Overround is |p0 + p1 - 1|, the venue B spread proxy.
func (m NormalizedMarket) Overround() decimal.Decimal {
	return m.Outcomes[0].Ask.Add(m.Outcomes[1].Ask).Sub(one).Abs()
}

// DistinctOutcomes reports whether both outcome labels are present and differ.
func (m NormalizedMarket) DistinctOutcomes() bool {
	a, b := strings.TrimSpace(m.Outcomes[0].Label), strings.TrimSpace(m.Outcomes[1].Label)
	return a != "" && b != "" && !strings.EqualFold(a, b)
}

// Text is the descriptive text used for alias matching.
func (m NormalizedMarket) Text() string {
	if m.Side == "" {
		return m.Title
	}
	return m.Title + " " + m.Side
}
