package matcher

import (
	"strings"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// kalshiSeries maps Kalshi game-winner series tickers to sports.
var kalshiSeries = map[string]domain.Sport{
	"KXNBAGAME":    domain.SportNBA,
	"KXNFLGAME":    domain.SportNFL,
	"KXMLBGAME":    domain.SportMLB,
	"KXNHLGAME":    domain.SportNHL,
	"KXNCAAFGAME":  domain.SportNCAAF,
	"KXNCAAMBGAME": domain.SportNCAAB,
}

// polySlugPrefix maps Polymarket event slug prefixes to sports.
var polySlugPrefix = map[string]domain.Sport{
	"nba": domain.SportNBA,
	"nfl": domain.SportNFL,
	"mlb": domain.SportMLB,
	"nhl": domain.SportNHL,
	"cfb": domain.SportNCAAF,
	"cbb": domain.SportNCAAB,
}

// KalshiSeries returns the series ticker that lists games for sport.
func KalshiSeries(sport domain.Sport) (string, bool) {
	for series, s := range kalshiSeries {
		if s == sport {
			return series, true
		}
	}
	return "", false
}

// PolymarketSlugPrefix returns the slug prefix Polymarket uses for sport.
func PolymarketSlugPrefix(sport domain.Sport) (string, bool) {
	for p, s := range polySlugPrefix {
		if s == sport {
			return p, true
		}
	}
	return "", false
}

// ClassifyKalshi derives the sport from a Kalshi market or event ticker.
func ClassifyKalshi(ticker string) domain.Sport {
	series, _, _ := strings.Cut(strings.ToUpper(ticker), "-")
	return kalshiSeries[series]
}

// ClassifyPolymarket derives the sport from a Polymarket slug such as
// "nba-hou-okc-2025-10-21".
func ClassifyPolymarket(slug string) domain.Sport {
	prefix, _, ok := strings.Cut(strings.ToLower(slug), "-")
	if !ok {
		return domain.SportUnknown
	}
	return polySlugPrefix[prefix]
}
