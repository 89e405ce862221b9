// Package matcher pairs venue A game instruments with venue B game
// instruments that describe the same contest.
package matcher

import (
	"log/slog"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Matcher produces MatchedEvents from one cycle's snapshots.
type Matcher struct {
	aliases *AliasResolver
	logger  *slog.Logger
}

// New creates a Matcher.
func New(aliases *AliasResolver, logger *slog.Logger) *Matcher {
	return &Matcher{
		aliases: aliases,
		logger:  logger.With(slog.String("component", "matcher")),
	}
}

// Dedupe keeps one venue A instrument per GameID: the one with the
// narrowest spread, the earliest in input order on ties. Output order
// follows the first appearance of each game.
func Dedupe(markets []domain.NormalizedMarket) []domain.NormalizedMarket {
	pos := make(map[domain.GameID]int)
	var out []domain.NormalizedMarket
	for _, m := range markets {
		i, seen := pos[m.GameID]
		if !seen {
			pos[m.GameID] = len(out)
			out = append(out, m)
			continue
		}
		if m.Spread.LessThan(out[i].Spread) {
			out[i] = m
		}
	}
	return out
}

// Match pairs venue A instruments (a) with venue B instruments (b). A venue B
// instrument matches when both of its outcome labels resolve to teams named
// in the venue A text. The first venue B instrument in input order that
// matches is consumed and scanning stops for that game.
func (m *Matcher) Match(a, b []domain.NormalizedMarket) []domain.MatchedEvent {
	consumed := make([]bool, len(b))
	var out []domain.MatchedEvent

	for _, am := range Dedupe(a) {
		if am.Sport == domain.SportUnknown {
			m.logger.Debug("drop unclassified", slog.String("instrument", am.InstrumentID))
			continue
		}
		for j, bm := range b {
			if consumed[j] || bm.Sport != am.Sport {
				continue
			}
			if !bm.DistinctOutcomes() {
				continue
			}
			if !m.pairs(am, bm) {
				continue
			}
			consumed[j] = true
			out = append(out, domain.MatchedEvent{
				GameID:    am.GameID,
				Sport:     am.Sport,
				A:         am,
				B:         bm,
				Alignment: m.align(am, bm),
			})
			break
		}
	}
	return out
}

func (m *Matcher) pairs(a, b domain.NormalizedMarket) bool {
	text := a.Text()
	var names [2]string
	for i, q := range b.Outcomes {
		team, ok := m.aliases.Resolve(a.Sport, q.Label)
		if !ok || !m.aliases.Mentions(a.Sport, team, text) {
			return false
		}
		names[i] = team.Name
	}
	return names[0] != names[1]
}

func (m *Matcher) align(a, b domain.NormalizedMarket) domain.OutcomeAlignment {
	idx, err := m.aliases.WinningOutcome(a.Sport, a.Side, [2]string{b.Outcomes[0].Label, b.Outcomes[1].Label})
	if err != nil {
		m.logger.Debug("alignment unresolved",
			slog.String("game", string(a.GameID)),
			slog.String("error", err.Error()),
		)
		return domain.OutcomeAlignment{}
	}
	return domain.AlignWin(idx)
}
