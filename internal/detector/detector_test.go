package detector

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
)

var now = time.Date(2025, 10, 21, 23, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig() Config {
	return Config{
		MinEdgePct:   d("0.5"),
		MaxSpreadA:   d("0.15"),
		MaxSpreadB:   d("0.10"),
		MaxStaleness: 30 * time.Second,
	}
}

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	r, err := matcher.NewAliasResolver()
	require.NoError(t, err)
	return NewWithClock(cfg, r, func() time.Time { return now })
}

// event builds Houston (venue A side) against a venue B market whose outcome
// 0 is Rockets and outcome 1 is Thunder.
func event(aWin, aLose, rockets, thunder, spreadA string) domain.MatchedEvent {
	a := domain.NormalizedMarket{
		Venue:        domain.VenueKalshi,
		InstrumentID: "KXNBAGAME-25OCT21HOUOKC-HOU",
		GameID:       "KXNBAGAME-25OCT21HOUOKC",
		Sport:        domain.SportNBA,
		Title:        "Houston vs Oklahoma City Winner?",
		Side:         "Houston",
		Outcomes: [2]domain.Quote{
			{Label: domain.OutcomeYes, Ask: d(aWin), Depth: 500},
			{Label: domain.OutcomeNo, Ask: d(aLose), Depth: 400},
		},
		Spread:    d(spreadA),
		CloseTime: now.Add(3 * time.Hour),
		FetchedAt: now.Add(-2 * time.Second),
	}
	b := domain.NormalizedMarket{
		Venue:        domain.VenuePolymarket,
		InstrumentID: "poly-hou-okc",
		Sport:        domain.SportNBA,
		Outcomes: [2]domain.Quote{
			{Label: "Rockets", TokenID: "tok-rockets", Ask: d(rockets), Depth: 300},
			{Label: "Thunder", TokenID: "tok-thunder", Ask: d(thunder), Depth: 200},
		},
		CloseTime: now.Add(2 * time.Hour),
		FetchedAt: now.Add(-1 * time.Second),
	}
	return domain.MatchedEvent{
		GameID:    a.GameID,
		Sport:     a.Sport,
		A:         a,
		B:         b,
		Alignment: domain.AlignWin(0),
	}
}

func TestDetectBuyWinThreePercent(t *testing.T) {
	det := newTestDetector(t, testConfig())

	opp, err := det.Detect(event("0.42", "0.58", "0.40", "0.55", "0.01"))
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyBuyWin, opp.Strategy)
	assert.True(t, d("0.97").Equal(opp.Cost), opp.Cost.String())
	assert.True(t, d("3").Equal(opp.EdgePct), opp.EdgePct.String())
	assert.Equal(t, domain.OutcomeYes, opp.LegA.Outcome)
	assert.True(t, d("0.42").Equal(opp.LegA.Price))
	assert.Equal(t, "tok-thunder", opp.LegB.TokenID)
	assert.True(t, d("0.55").Equal(opp.LegB.Price))
	assert.Equal(t, int64(200), opp.LegB.Depth)
	assert.True(t, d("0.05").Equal(opp.SpreadB))
	assert.Equal(t, now.Add(2*time.Hour), opp.CloseTime)
	assert.Equal(t, now, opp.DetectedAt)
}

func TestDetectVenueASpreadRejected(t *testing.T) {
	det := newTestDetector(t, testConfig())
	_, err := det.Detect(event("0.42", "0.58", "0.40", "0.55", "0.20"))
	assert.ErrorIs(t, err, domain.ErrQualityRejected)
}

func TestDetectVenueBSpreadRejected(t *testing.T) {
	det := newTestDetector(t, testConfig())
	_, err := det.Detect(event("0.30", "0.58", "0.40", "0.75", "0.01"))
	assert.ErrorIs(t, err, domain.ErrQualityRejected)
}

func TestDetectStaleSnapshotRejected(t *testing.T) {
	det := newTestDetector(t, testConfig())

	ev := event("0.42", "0.58", "0.40", "0.55", "0.01")
	ev.B.FetchedAt = time.Time{}
	_, err := det.Detect(ev)
	assert.ErrorIs(t, err, domain.ErrQualityRejected)

	ev = event("0.42", "0.58", "0.40", "0.55", "0.01")
	ev.A.FetchedAt = now.Add(-time.Minute)
	_, err = det.Detect(ev)
	assert.ErrorIs(t, err, domain.ErrQualityRejected)
}

func TestDetectNoAliasNoOpportunity(t *testing.T) {
	det := newTestDetector(t, testConfig())

	ev := event("0.42", "0.58", "0.40", "0.55", "0.01")
	ev.A.Side = "Springfield"
	ev.A.Title = "Springfield vs Shelbyville Winner?"
	assert.NotPanics(t, func() {
		_, err := det.Detect(ev)
		assert.ErrorIs(t, err, domain.ErrMatchingAmbiguous)
	})
}

func TestDetectRejectsAlignmentDisagreement(t *testing.T) {
	det := newTestDetector(t, testConfig())

	ev := event("0.42", "0.58", "0.40", "0.55", "0.01")
	ev.Alignment = domain.AlignWin(1)
	_, err := det.Detect(ev)
	assert.ErrorIs(t, err, domain.ErrMatchingAmbiguous)

	ev.Alignment = domain.OutcomeAlignment{}
	_, err = det.Detect(ev)
	assert.ErrorIs(t, err, domain.ErrMatchingAmbiguous)
}

func TestDetectPicksBuyLoseWhenBetter(t *testing.T) {
	det := newTestDetector(t, testConfig())

	opp, err := det.Detect(event("0.50", "0.45", "0.45", "0.52", "0.01"))
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyBuyLose, opp.Strategy)
	assert.True(t, d("10").Equal(opp.EdgePct))
	assert.Equal(t, domain.OutcomeNo, opp.LegA.Outcome)
	assert.Equal(t, "tok-rockets", opp.LegB.TokenID)
}

func TestDetectTieKeepsBuyWin(t *testing.T) {
	det := newTestDetector(t, testConfig())

	opp, err := det.Detect(event("0.40", "0.50", "0.45", "0.55", "0.01"))
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyBuyWin, opp.Strategy)
	assert.True(t, d("5").Equal(opp.EdgePct))
}

func TestDetectBelowMinimumEdge(t *testing.T) {
	cfg := testConfig()
	cfg.MinEdgePct = d("3.01")
	det := newTestDetector(t, cfg)

	_, err := det.Detect(event("0.42", "0.58", "0.40", "0.55", "0.01"))
	assert.ErrorIs(t, err, domain.ErrQualityRejected)

	cfg.MinEdgePct = d("3")
	det = newTestDetector(t, cfg)
	_, err = det.Detect(event("0.42", "0.58", "0.40", "0.55", "0.01"))
	assert.NoError(t, err, "edge equal to the minimum qualifies")
}

func TestDetectCostOfExactlyOneHasNoEdge(t *testing.T) {
	cfg := testConfig()
	cfg.MinEdgePct = decimal.Zero
	det := newTestDetector(t, cfg)

	_, err := det.Detect(event("0.45", "0.60", "0.45", "0.55", "0.01"))
	assert.ErrorIs(t, err, domain.ErrQualityRejected)
}

func TestEdgePositiveIffCostBelowOne(t *testing.T) {
	for a := 1; a < 100; a++ {
		for b := 1; b < 100; b++ {
			cost := decimal.New(int64(a), -2).Add(decimal.New(int64(b), -2))
			edge := Edge(cost)
			assert.Equal(t, cost.LessThan(decimal.NewFromInt(1)), edge.IsPositive(),
				fmt.Sprintf("cost %s edge %s", cost, edge))
		}
	}
	assert.True(t, Edge(d("0.999999")).IsPositive())
	assert.True(t, Edge(d("1.000001")).IsZero())
}

func TestDetectIsDeterministic(t *testing.T) {
	det := newTestDetector(t, testConfig())
	ev := event("0.42", "0.58", "0.40", "0.55", "0.01")

	first, err := det.Detect(ev)
	require.NoError(t, err)
	second, err := det.Detect(ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.ID)
}
