package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGameIDFromTicker(t *testing.T) {
	id, err := GameIDFromTicker("KXNBAGAME-25OCT21HOUOKC-HOU")
	require.NoError(t, err)
	assert.Equal(t, GameID("KXNBAGAME-25OCT21HOUOKC"), id)

	for _, bad := range []string{"", "NOHYPHEN", "-HOU", "KXNBAGAME-"} {
		_, err := GameIDFromTicker(bad)
		assert.True(t, errors.Is(err, ErrInvalidMarket), bad)
	}
}

func TestNewNormalizedMarketRejectsOutOfRangeAsks(t *testing.T) {
	base := NormalizedMarket{
		Venue:        VenuePolymarket,
		InstrumentID: "m1",
		Outcomes: [2]Quote{
			{Label: " Rockets ", Ask: d("0.55")},
			{Label: "Thunder", Ask: d("0.47")},
		},
	}
	m, err := NewNormalizedMarket(base)
	require.NoError(t, err)
	assert.Equal(t, "Rockets", m.Outcomes[0].Label)

	for _, ask := range []string{"0", "1", "1.2", "-0.1"} {
		bad := base
		bad.Outcomes[1].Ask = d(ask)
		_, err := NewNormalizedMarket(bad)
		assert.ErrorIs(t, err, ErrInvalidMarket, ask)
	}

	noID := base
	noID.InstrumentID = ""
	_, err = NewNormalizedMarket(noID)
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestNormalizedMarketAgeAndOverround(t *testing.T) {
	now := time.Date(2025, 10, 21, 20, 0, 0, 0, time.UTC)
	m := NormalizedMarket{
		Outcomes: [2]Quote{{Label: "A", Ask: d("0.55")}, {Label: "B", Ask: d("0.47")}},
	}
	assert.Greater(t, m.Age(now), 24*time.Hour, "zero timestamp is stale")

	m.FetchedAt = now.Add(-3 * time.Second)
	assert.Equal(t, 3*time.Second, m.Age(now))
	assert.True(t, d("0.02").Equal(m.Overround()))

	m.Outcomes[1].Ask = d("0.40")
	assert.True(t, d("0.05").Equal(m.Overround()))
}

func TestDistinctOutcomes(t *testing.T) {
	m := NormalizedMarket{Outcomes: [2]Quote{{Label: "Lakers"}, {Label: "lakers"}}}
	assert.False(t, m.DistinctOutcomes())
	m.Outcomes[1].Label = ""
	assert.False(t, m.DistinctOutcomes())
	m.Outcomes[1].Label = "Celtics"
	assert.True(t, m.DistinctOutcomes())
}

func TestParseSport(t *testing.T) {
	s, ok := ParseSport(" NBA ")
	assert.True(t, ok)
	assert.Equal(t, SportNBA, s)
	_, ok = ParseSport("cricket")
	assert.False(t, ok)
}
