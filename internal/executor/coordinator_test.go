package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/ledger"
)

const game domain.GameID = "KXNBAGAME-25OCT21HOUOKC"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeClient is a scripted domain.OrderClient. poll returns the status for
// the nth poll of an order (n starts at 1).
type fakeClient struct {
	venue     domain.Venue
	balance   decimal.Decimal
	depth     int64
	submitErr error
	poll      func(n int) (domain.OrderStatus, error)
	cancelOK  bool
	cancelErr error
	onSubmit  func()

	mu        sync.Mutex
	submitted []domain.OrderRequest
	polls     int
	cancelled []string
}

func newFake(v domain.Venue, poll func(n int) (domain.OrderStatus, error)) *fakeClient {
	return &fakeClient{venue: v, balance: d("1000"), depth: 500, poll: poll, cancelOK: true}
}

func (f *fakeClient) Venue() domain.Venue { return f.venue }

func (f *fakeClient) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	if f.onSubmit != nil {
		f.onSubmit()
	}
	if f.submitErr != nil {
		return domain.OrderHandle{}, f.submitErr
	}
	return domain.OrderHandle{Venue: f.venue, OrderID: string(f.venue) + "-ord", InstrumentID: req.InstrumentID, TokenID: req.TokenID}, nil
}

func (f *fakeClient) PollOrder(context.Context, domain.OrderHandle) (domain.OrderStatus, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.mu.Unlock()
	return f.poll(n)
}

func (f *fakeClient) CancelOrder(_ context.Context, h domain.OrderHandle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, h.OrderID)
	return f.cancelOK, f.cancelErr
}

func (f *fakeClient) Balance(context.Context) (decimal.Decimal, error) { return f.balance, nil }

func (f *fakeClient) Depth(context.Context, domain.LegQuote) (int64, error) { return f.depth, nil }

func (f *fakeClient) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeClient) cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func filled(qty int64, price string) func(int) (domain.OrderStatus, error) {
	return func(int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderFilled, FilledQty: qty, AvgPrice: d(price)}, nil
	}
}

func resting(int) (domain.OrderStatus, error) {
	return domain.OrderStatus{State: domain.OrderOpen}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	terms []domain.ExecutionRecord
}

func (s *recordingSink) OnOpportunity(context.Context, domain.ArbitrageOpportunity) error { return nil }

func (s *recordingSink) OnExecutionTerminal(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms = append(s.terms, rec)
	return nil
}

func (s *recordingSink) records() []domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), s.terms...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Millisecond
	cfg.FillTimeout = 60 * time.Millisecond
	cfg.RetryCooldown = 0
	return cfg
}

func opportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:       "opp-1",
		GameID:   game,
		Sport:    domain.SportNBA,
		Strategy: domain.StrategyBuyWin,
		LegA: domain.LegQuote{
			Venue: domain.VenueKalshi, InstrumentID: "KXNBAGAME-25OCT21HOUOKC-HOU",
			Outcome: domain.OutcomeYes, Price: d("0.42"), Depth: 500,
		},
		LegB: domain.LegQuote{
			Venue: domain.VenuePolymarket, InstrumentID: "poly-hou-okc", TokenID: "tok-thunder",
			Outcome: "Thunder", Price: d("0.55"), Depth: 200,
		},
		Cost:      d("0.97"),
		EdgePct:   d("3"),
		CloseTime: time.Now().Add(3 * time.Hour),
	}
}

type harness struct {
	coord  *Coordinator
	a, b   *fakeClient
	ledger *ledger.Memory
	store  *ledger.Records
	sink   *recordingSink
}

func newHarness(t *testing.T, cfg Config, a, b *fakeClient) *harness {
	t.Helper()
	h := &harness{a: a, b: b, ledger: ledger.NewMemory(), store: ledger.NewRecords(), sink: &recordingSink{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(cfg, []domain.OrderClient{a, b}, h.ledger, h.store, h.sink, logger)
	require.NoError(t, err)
	h.coord = c
	return h
}

func TestExecute_PartialWhenOneLegTimesOut(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, resting)
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.StatePartial, rec.State)
	assert.Equal(t, domain.StatePartial, rec.Result)
	assert.True(t, rec.HasPosition)
	assert.Equal(t, domain.LegFilled, rec.Legs[0].Status)
	assert.Equal(t, domain.LegCancelled, rec.Legs[1].Status)
	assert.Contains(t, rec.Legs[1].Error, domain.ErrLegTimeout.Error())
	assert.Equal(t, []string{"polymarket-ord"}, b.cancels(), "cancel attempted on the unfilled leg")
	assert.Empty(t, a.cancels())

	terms := h.sink.records()
	require.Len(t, terms, 1)
	exp := terms[0].Exposure()
	require.Len(t, exp, 1)
	assert.Equal(t, domain.VenueKalshi, exp[0].Venue)
	assert.Equal(t, domain.OutcomeYes, exp[0].Outcome)
	assert.Equal(t, int64(10), exp[0].Quantity)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, entry.State)
	assert.True(t, entry.HasPosition)

	_, err = h.coord.Execute(context.Background(), opportunity())
	assert.ErrorIs(t, err, domain.ErrLedgerClaimDenied, "partial blocks further executions")
}

func TestExecute_BothFilledSettlesWithPosition(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, rec.State)
	assert.Equal(t, domain.StateFilled, rec.Result)
	assert.True(t, rec.HasPosition)
	assert.True(t, rec.Legs[1].FilledPrice.Equal(d("0.56")))

	stored, err := h.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, stored.State)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, entry.State)
	assert.True(t, entry.HasPosition)

	_, err = h.coord.Execute(context.Background(), opportunity())
	assert.ErrorIs(t, err, domain.ErrLedgerClaimDenied)
	assert.Equal(t, 1, a.submissions())
	assert.Len(t, h.sink.records(), 1)
}

func TestExecute_NoFillsReleasesGame(t *testing.T) {
	a := newFake(domain.VenueKalshi, resting)
	b := newFake(domain.VenuePolymarket, resting)
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, rec.State)
	assert.Equal(t, domain.StateFailed, rec.Result)
	assert.False(t, rec.HasPosition)
	assert.Len(t, a.cancels(), 1)
	assert.Len(t, b.cancels(), 1)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, entry.State)
	assert.False(t, entry.HasPosition)
	assert.True(t, entry.RetrySafe())

	_, err = h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, 2, a.submissions(), "game is re-enterable after a clean failure")
}

func TestExecute_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a, b *fakeClient, opp *domain.ArbitrageOpportunity)
	}{
		{"low balance", func(a, _ *fakeClient, _ *domain.ArbitrageOpportunity) { a.balance = d("4.29") }},
		{"thin depth", func(_, b *fakeClient, _ *domain.ArbitrageOpportunity) { b.depth = 9 }},
		{"closing soon", func(_, _ *fakeClient, opp *domain.ArbitrageOpportunity) { opp.CloseTime = time.Now().Add(time.Minute) }},
		{"close time unknown", func(_, _ *fakeClient, opp *domain.ArbitrageOpportunity) { opp.CloseTime = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFake(domain.VenueKalshi, filled(10, "0.43"))
			b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
			opp := opportunity()
			tt.setup(a, b, &opp)
			h := newHarness(t, testConfig(), a, b)

			rec, err := h.coord.Execute(context.Background(), opp)
			require.ErrorIs(t, err, domain.ErrValidationFailed)
			assert.Equal(t, domain.StateFailed, rec.State)
			assert.Zero(t, a.submissions())
			assert.Zero(t, b.submissions())

			_, err = h.ledger.Get(context.Background(), game)
			assert.ErrorIs(t, err, domain.ErrNotFound, "no ledger entry without a claim")
			recent, err := h.store.ListRecent(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, recent)
			assert.Empty(t, h.sink.records(), "pre-claim failures are not terminal events")
		})
	}
}

func TestExecute_BalanceCoversCappedLimitPrice(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	a.balance = d("4.30") // 10 x (0.42 + 0.01)
	h := newHarness(t, testConfig(), a, b)

	_, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
}

func TestExecute_ClaimDenied(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	h := newHarness(t, testConfig(), a, b)

	ok, err := h.ledger.TryClaim(context.Background(), game, "other")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.coord.Execute(context.Background(), opportunity())
	require.ErrorIs(t, err, domain.ErrLedgerClaimDenied)
	assert.Zero(t, a.submissions())
}

func TestExecute_SubmissionErrorLeavesPartial(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, resting)
	b.submitErr = errors.New("insufficient allowance")
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, rec.State)
	assert.Equal(t, domain.LegUnfilled, rec.Legs[1].Status)
	assert.Contains(t, rec.Legs[1].Error, domain.ErrLegSubmission.Error())
	assert.Empty(t, b.cancels(), "no handle, nothing to cancel")
}

func TestExecute_LimitPriceCapped(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.99"))
	b := newFake(domain.VenuePolymarket, filled(10, "0.01"))
	h := newHarness(t, testConfig(), a, b)

	opp := opportunity()
	opp.LegA.Price = d("0.985")
	_, err := h.coord.Execute(context.Background(), opp)
	require.NoError(t, err)

	require.Len(t, a.submitted, 1)
	assert.True(t, a.submitted[0].Price.Equal(d("0.99")), "got %s", a.submitted[0].Price)
	assert.True(t, b.submitted[0].Price.Equal(d("0.56")))
	assert.Equal(t, "tok-thunder", b.submitted[0].TokenID)
	assert.NotEqual(t, a.submitted[0].ClientOrderID, b.submitted[0].ClientOrderID)
}

func TestExecute_CancelFailureRepolls(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, func(n int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderOpen, FilledQty: 0}, nil
	})
	b.cancelOK = false
	b.cancelErr = errors.New("order not found")
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, rec.State)
	assert.Equal(t, domain.LegUnknown, rec.Legs[1].Status)
	assert.NotEmpty(t, rec.Notes)
}

func TestExecute_FilledLegRemainderCancelled(t *testing.T) {
	a := newFake(domain.VenueKalshi, func(int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderOpen, FilledQty: 9, AvgPrice: d("0.43")}, nil
	})
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilled, rec.Result)
	assert.Equal(t, domain.LegFilled, rec.Legs[0].Status)
	assert.Equal(t, int64(9), rec.Legs[0].FilledQty)
	assert.Equal(t, []string{"kalshi-ord"}, a.cancels(), "open remainder is cancelled")
	assert.Empty(t, b.cancels(), "fully filled leg has nothing to cancel")
}

func TestExecute_FilledLegRemainderStillLive(t *testing.T) {
	a := newFake(domain.VenueKalshi, func(int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderOpen, FilledQty: 9, AvgPrice: d("0.43")}, nil
	})
	a.cancelOK = false
	a.cancelErr = errors.New("venue unavailable")
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, rec.Result)
	assert.Equal(t, domain.LegUnknown, rec.Legs[0].Status)
	assert.NotEmpty(t, rec.Notes)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, entry.State)
}

func TestExecute_FilledWithoutCountIsNotReleased(t *testing.T) {
	noCount := func(int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderFilled}, nil
	}
	a := newFake(domain.VenueKalshi, noCount)
	b := newFake(domain.VenuePolymarket, noCount)
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, rec.Result)
	assert.True(t, rec.HasPosition)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, entry.State)
	assert.True(t, entry.HasPosition)
	assert.False(t, entry.RetrySafe())

	exp := h.sink.records()[0].Exposure()
	require.Len(t, exp, 2)
	assert.True(t, exp[0].Unknown)
	assert.True(t, exp[1].Unknown)

	_, err = h.coord.Execute(context.Background(), opportunity())
	assert.ErrorIs(t, err, domain.ErrLedgerClaimDenied)
}

func TestExecute_MatchedFillsBelowFractionNoted(t *testing.T) {
	half := func(int) (domain.OrderStatus, error) {
		return domain.OrderStatus{State: domain.OrderOpen, FilledQty: 5, AvgPrice: d("0.43")}, nil
	}
	a := newFake(domain.VenueKalshi, half)
	b := newFake(domain.VenuePolymarket, half)
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(context.Background(), opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartial, rec.Result)
	assert.Empty(t, rec.Exposure())
	assert.Contains(t, rec.Notes, "hedged below fill fraction: 5 and 5 of 10 contracts")
}

func TestExecute_CancelledContextLeavesExecuting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFake(domain.VenueKalshi, resting)
	b := newFake(domain.VenuePolymarket, resting)
	b.onSubmit = cancel
	h := newHarness(t, testConfig(), a, b)

	rec, err := h.coord.Execute(ctx, opportunity())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StateExecuting, rec.State)

	entry, err := h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuting, entry.State)

	stored, err := h.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExecuting, stored.State)
	assert.Empty(t, h.sink.records())

	// On restart both orders turn out filled.
	a.poll = filled(10, "0.43")
	b.poll = filled(10, "0.56")
	n, err := h.coord.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err = h.ledger.Get(context.Background(), game)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, entry.State)
	assert.True(t, entry.HasPosition)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, h *harness, legs [2]domain.LegRecord) string {
		t.Helper()
		id := "exec-1"
		ok, err := h.ledger.TryClaim(ctx, game, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, h.store.Save(ctx, domain.ExecutionRecord{
			ID: id, GameID: game, State: domain.StateExecuting, Quantity: 10, Legs: legs,
		}))
		return id
	}
	leg := func(v domain.Venue, orderID string) domain.LegRecord {
		return domain.LegRecord{Venue: v, InstrumentID: "i-" + string(v), OrderID: orderID, RequestedQty: 10, Status: domain.LegSubmitted}
	}

	t.Run("resting leg is cancelled and left partial", func(t *testing.T) {
		a := newFake(domain.VenueKalshi, filled(10, "0.43"))
		b := newFake(domain.VenuePolymarket, resting)
		h := newHarness(t, testConfig(), a, b)
		seed(t, h, [2]domain.LegRecord{leg(domain.VenueKalshi, "k1"), leg(domain.VenuePolymarket, "p1")})

		n, err := h.coord.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"p1"}, b.cancels())

		entry, err := h.ledger.Get(ctx, game)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePartial, entry.State)
		require.Len(t, h.sink.records(), 1)
	})

	t.Run("leg without handle forces partial", func(t *testing.T) {
		a := newFake(domain.VenueKalshi, resting)
		b := newFake(domain.VenuePolymarket, resting)
		h := newHarness(t, testConfig(), a, b)
		seed(t, h, [2]domain.LegRecord{leg(domain.VenueKalshi, ""), leg(domain.VenuePolymarket, "")})

		_, err := h.coord.Recover(ctx)
		require.NoError(t, err)
		entry, err := h.ledger.Get(ctx, game)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePartial, entry.State)

		exp := h.sink.records()[0].Exposure()
		require.Len(t, exp, 2)
		assert.True(t, exp[0].Unknown)
	})

	t.Run("nothing filled releases game", func(t *testing.T) {
		a := newFake(domain.VenueKalshi, resting)
		b := newFake(domain.VenuePolymarket, resting)
		h := newHarness(t, testConfig(), a, b)
		seed(t, h, [2]domain.LegRecord{leg(domain.VenueKalshi, "k1"), leg(domain.VenuePolymarket, "p1")})

		_, err := h.coord.Recover(ctx)
		require.NoError(t, err)
		entry, err := h.ledger.Get(ctx, game)
		require.NoError(t, err)
		assert.True(t, entry.RetrySafe())
	})

	t.Run("missing record", func(t *testing.T) {
		a := newFake(domain.VenueKalshi, resting)
		b := newFake(domain.VenuePolymarket, resting)
		h := newHarness(t, testConfig(), a, b)
		ok, err := h.ledger.TryClaim(ctx, game, "lost")
		require.NoError(t, err)
		require.True(t, ok)

		_, err = h.coord.Recover(ctx)
		require.NoError(t, err)
		entry, err := h.ledger.Get(ctx, game)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePartial, entry.State)
	})
}

func TestAcknowledge(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, resting)
	h := newHarness(t, testConfig(), a, b)
	ctx := context.Background()

	_, err := h.coord.Acknowledge(ctx, game, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	rec, err := h.coord.Execute(ctx, opportunity())
	require.NoError(t, err)
	require.Equal(t, domain.StatePartial, rec.State)

	acked, err := h.coord.Acknowledge(ctx, game, "hedged manually on polymarket")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, acked.State)
	assert.Equal(t, domain.StatePartial, acked.Result)
	assert.Contains(t, acked.Notes, "acknowledged: hedged manually on polymarket")

	entry, err := h.ledger.Get(ctx, game)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, entry.State)
	assert.True(t, entry.HasPosition)

	_, err = h.coord.Acknowledge(ctx, game, "again")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestClassify(t *testing.T) {
	leg := func(filled int64, st domain.LegStatus) domain.LegRecord {
		return domain.LegRecord{RequestedQty: 10, FilledQty: filled, Status: st}
	}
	frac := d("0.9")
	tests := []struct {
		a, b domain.LegRecord
		want domain.ExecutionState
	}{
		{leg(10, domain.LegFilled), leg(10, domain.LegFilled), domain.StateFilled},
		{leg(9, domain.LegFilled), leg(10, domain.LegFilled), domain.StateFilled},
		{leg(0, domain.LegCancelled), leg(0, domain.LegUnfilled), domain.StateFailed},
		{leg(10, domain.LegFilled), leg(0, domain.LegCancelled), domain.StatePartial},
		{leg(3, domain.LegCancelled), leg(3, domain.LegCancelled), domain.StatePartial},
		{leg(0, domain.LegCancelled), leg(0, domain.LegUnknown), domain.StatePartial},
		{leg(0, domain.LegFilled), leg(0, domain.LegFilled), domain.StatePartial},
		{leg(5, domain.LegFilled), leg(10, domain.LegFilled), domain.StatePartial},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([2]domain.LegRecord{tt.a, tt.b}, frac))
		})
	}
}

func TestNew_RequiresBothVenues(t *testing.T) {
	a := newFake(domain.VenueKalshi, resting)
	_, err := New(testConfig(), []domain.OrderClient{a}, ledger.NewMemory(), ledger.NewRecords(), nil, slog.Default())
	assert.Error(t, err)
}

func TestRun_ProcessesUntilClosed(t *testing.T) {
	a := newFake(domain.VenueKalshi, filled(10, "0.43"))
	b := newFake(domain.VenuePolymarket, filled(10, "0.56"))
	cfg := testConfig()
	cfg.RetryCooldown = time.Minute
	h := newHarness(t, cfg, a, b)

	ch := make(chan domain.ArbitrageOpportunity, 3)
	ch <- opportunity()
	ch <- opportunity() // suppressed by cooldown
	other := opportunity()
	other.GameID = "KXNBAGAME-25OCT22LALGSW"
	ch <- other
	close(ch)

	require.NoError(t, h.coord.Run(context.Background(), ch))
	assert.Equal(t, 2, a.submissions())
	assert.Len(t, h.sink.records(), 2)
}
