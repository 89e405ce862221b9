package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func newClient(p float64, balance string) *Client {
	return New(domain.VenueKalshi, Config{
		Balance:         decimal.RequireFromString(balance),
		FillProbability: p,
		Seed:            42,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func req(id string) domain.OrderRequest {
	return domain.OrderRequest{
		ClientOrderID: id,
		InstrumentID:  "KXNBAGAME-25OCT21HOUOKC-HOU",
		Outcome:       domain.OutcomeYes,
		Price:         decimal.RequireFromString("0.40"),
		Quantity:      10,
	}
}

func TestAlwaysFills(t *testing.T) {
	c := newClient(1, "100")
	ctx := context.Background()

	h, err := c.SubmitOrder(ctx, req("a"))
	require.NoError(t, err)
	st, err := c.PollOrder(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, st.State)
	assert.Equal(t, int64(10), st.FilledQty)

	bal, _ := c.Balance(ctx)
	assert.True(t, decimal.RequireFromString("96").Equal(bal), bal.String())

	ok, err := c.CancelOrder(ctx, h)
	require.NoError(t, err)
	assert.False(t, ok, "filled orders cannot be cancelled")
}

func TestNeverFillsThenCancel(t *testing.T) {
	c := newClient(0, "100")
	ctx := context.Background()

	h, err := c.SubmitOrder(ctx, req("a"))
	require.NoError(t, err)
	st, _ := c.PollOrder(ctx, h)
	assert.Equal(t, domain.OrderOpen, st.State)

	ok, err := c.CancelOrder(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)
	st, _ = c.PollOrder(ctx, h)
	assert.Equal(t, domain.OrderCancelled, st.State)
}

func TestInsufficientBalanceRests(t *testing.T) {
	c := newClient(1, "1")
	h, err := c.SubmitOrder(context.Background(), req("a"))
	require.NoError(t, err)
	st, _ := c.PollOrder(context.Background(), h)
	assert.Equal(t, domain.OrderOpen, st.State)
}

func TestResubmitReturnsSameHandle(t *testing.T) {
	c := newClient(1, "100")
	h1, err := c.SubmitOrder(context.Background(), req("same"))
	require.NoError(t, err)
	h2, err := c.SubmitOrder(context.Background(), req("same"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	bal, _ := c.Balance(context.Background())
	assert.True(t, decimal.RequireFromString("96").Equal(bal))
}

func TestSeedIsDeterministic(t *testing.T) {
	outcomes := func() []domain.OrderState {
		c := newClient(0.5, "1000")
		var out []domain.OrderState
		for i := range 20 {
			h, err := c.SubmitOrder(context.Background(), req(string(rune('a'+i))))
			require.NoError(t, err)
			st, _ := c.PollOrder(context.Background(), h)
			out = append(out, st.State)
		}
		return out
	}
	assert.Equal(t, outcomes(), outcomes())
}

func TestUnknownOrder(t *testing.T) {
	c := newClient(1, "100")
	_, err := c.PollOrder(context.Background(), domain.OrderHandle{OrderID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.SubmitOrder(context.Background(), domain.OrderRequest{Quantity: 0, Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
