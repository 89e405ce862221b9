package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/crypto"
	"github.com/alanyoungcy/sportsarb/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const eventsJSON = `[
  {"id":"1","slug":"nba-hou-okc-2025-10-21","title":"Rockets vs. Thunder","endDate":"2025-10-22T03:00:00Z",
   "markets":[
     {"id":"m0","conditionId":"0xspread","outcomes":"[\"Rockets\",\"Thunder\"]","clobTokenIds":"[\"s1\",\"s2\"]",
      "sportsMarketType":"spreads","enableOrderBook":true},
     {"id":"m1","conditionId":"0xwin","outcomes":"[\"Rockets\",\"Thunder\"]","clobTokenIds":"[\"tok-hou\",\"tok-okc\"]",
      "sportsMarketType":"moneyline","enableOrderBook":"true","closed":false}
   ]},
  {"id":"2","slug":"nba-lal-gsw-2025-10-21","title":"Lakers vs. Warriors",
   "markets":[{"id":"m2","conditionId":"0xempty","outcomes":["Lakers","Warriors"],"clobTokenIds":["tok-lal","tok-gsw"],"enableOrderBook":true}]},
  {"id":"3","slug":"will-anyone-win","title":"Futures",
   "markets":[{"id":"m3","conditionId":"0xfut","outcomes":"[\"Yes\",\"No\"]","clobTokenIds":"[\"y\",\"n\"]","enableOrderBook":true}]}
]`

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeClob struct {
	mux      *http.ServeMux
	posted   atomic.Pointer[postOrderRequest]
	lastAuth atomic.Pointer[http.Header]
}

func newFakeServer(t *testing.T) (*fakeClob, *httptest.Server) {
	t.Helper()
	f := &fakeClob{mux: http.NewServeMux()}
	books := map[string]string{
		"tok-hou": `{"asks":[{"price":"0.45","size":"120.5"},{"price":"0.44","size":"80"},{"price":"0.44","size":"20"}]}`,
		"tok-okc": `{"asks":[{"price":"0.58","size":"300"}],"bids":[{"price":"0.55","size":"10"}]}`,
		"tok-lal": `{"asks":[]}`,
		"tok-gsw": `{"asks":[{"price":"0.50","size":"5"}]}`,
	}
	f.mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nba", r.URL.Query().Get("tag_slug"))
		io.WriteString(w, eventsJSON)
	})
	f.mux.HandleFunc("GET /book", func(w http.ResponseWriter, r *http.Request) {
		b, ok := books[r.URL.Query().Get("token_id")]
		if !ok {
			http.Error(w, `{"error":"no book"}`, http.StatusNotFound)
			return
		}
		io.WriteString(w, b)
	})
	f.mux.HandleFunc("GET /auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		io.WriteString(w, `{"apiKey":"key-1","secret":"c2VjcmV0LXNlY3JldA==","passphrase":"pp"}`)
	})
	f.mux.HandleFunc("POST /order", func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Clone()
		f.lastAuth.Store(&h)
		var req postOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.posted.Store(&req)
		io.WriteString(w, `{"success":true,"orderID":"0xorder","status":"live"}`)
	})
	f.mux.HandleFunc("GET /data/order/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "0xorder":
			io.WriteString(w, `{"id":"0xorder","status":"LIVE","original_size":"10","size_matched":"4","price":"0.44"}`)
		case "0xdone":
			io.WriteString(w, `{"id":"0xdone","status":"MATCHED","original_size":"10","size_matched":"10","price":"0.44"}`)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
	f.mux.HandleFunc("DELETE /order", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["orderID"] == "0xgone" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"canceled":["`+body["orderID"]+`"],"not_canceled":{}}`)
	})
	f.mux.HandleFunc("GET /balance-allowance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COLLATERAL", r.URL.Query().Get("asset_type"))
		io.WriteString(w, `{"balance":"152250000"}`)
	})
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestVenue(t *testing.T, srv *httptest.Server) *Venue {
	t.Helper()
	signer, err := crypto.NewSigner(testKey, 137, crypto.DefaultExchange)
	require.NoError(t, err)
	clob := NewClobClient(srv.URL, signer, nil, nil)
	_, err = clob.DeriveAPIKey(context.Background())
	require.NoError(t, err)
	v := NewVenue(NewGammaClient(srv.URL, nil), clob, 2, discard())
	v.now = func() time.Time { return time.Date(2025, 10, 21, 18, 0, 0, 0, time.UTC) }
	return v
}

func TestFetchMarkets_PicksMoneylineAndPricesFromBooks(t *testing.T) {
	_, srv := newFakeServer(t)
	v := newTestVenue(t, srv)

	markets, err := v.FetchMarkets(context.Background(), domain.SportNBA)
	require.NoError(t, err)
	require.Len(t, markets, 1, "empty book and non-sport events are skipped")

	m := markets[0]
	assert.Equal(t, domain.VenuePolymarket, m.Venue)
	assert.Equal(t, "0xwin", m.InstrumentID)
	assert.Equal(t, "nba-hou-okc-2025-10-21", m.Slug)
	assert.Equal(t, "Rockets", m.Outcomes[0].Label)
	assert.Equal(t, "tok-okc", m.Outcomes[1].TokenID)
	assert.True(t, decimal.RequireFromString("0.44").Equal(m.Outcomes[0].Ask))
	assert.Equal(t, int64(100), m.Outcomes[0].Depth)
	assert.True(t, decimal.RequireFromString("0.58").Equal(m.Outcomes[1].Ask))
	assert.Equal(t, time.Date(2025, 10, 22, 3, 0, 0, 0, time.UTC), m.CloseTime)
	assert.False(t, m.FetchedAt.IsZero())
}

func TestFetchMarkets_UnknownSport(t *testing.T) {
	_, srv := newFakeServer(t)
	v := newTestVenue(t, srv)
	markets, err := v.FetchMarkets(context.Background(), domain.SportUnknown)
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestOrderLifecycle(t *testing.T) {
	f, srv := newFakeServer(t)
	v := newTestVenue(t, srv)
	ctx := context.Background()

	h, err := v.SubmitOrder(ctx, domain.OrderRequest{
		Venue:        domain.VenuePolymarket,
		InstrumentID: "0xwin",
		TokenID:      "tok-hou",
		Outcome:      "Rockets",
		Price:        decimal.RequireFromString("0.457"),
		Quantity:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", h.OrderID)
	assert.Equal(t, "tok-hou", h.TokenID)

	posted := f.posted.Load()
	require.NotNil(t, posted)
	assert.Equal(t, "key-1", posted.Owner)
	assert.Equal(t, "GTC", posted.OrderType)
	assert.Equal(t, "BUY", posted.Order.Side)
	assert.Equal(t, "4500000", posted.Order.MakerAmount, "price floors to the cent tick")
	assert.Equal(t, "10000000", posted.Order.TakerAmount)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", posted.Order.Maker)
	assert.Len(t, posted.Order.Signature, 132)

	hdr := f.lastAuth.Load()
	require.NotNil(t, hdr)
	assert.Equal(t, "key-1", hdr.Get("POLY_API_KEY"))
	assert.NotEmpty(t, hdr.Get("POLY_SIGNATURE"))

	st, err := v.PollOrder(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, st.State)
	assert.Equal(t, int64(4), st.FilledQty)

	st, err = v.PollOrder(ctx, domain.OrderHandle{OrderID: "0xdone"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, st.State)
	assert.True(t, decimal.RequireFromString("0.44").Equal(st.AvgPrice))

	ok, err := v.CancelOrder(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CancelOrder(ctx, domain.OrderHandle{OrderID: "0xgone"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = v.PollOrder(ctx, domain.OrderHandle{OrderID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitOrder_RejectsBadPrice(t *testing.T) {
	_, srv := newFakeServer(t)
	v := newTestVenue(t, srv)
	for _, p := range []string{"0.004", "1.00"} {
		_, err := v.SubmitOrder(context.Background(), domain.OrderRequest{
			TokenID: "tok-hou", Price: decimal.RequireFromString(p), Quantity: 1,
		})
		assert.ErrorIs(t, err, domain.ErrValidationFailed, p)
	}
}

func TestBalanceAndDepth(t *testing.T) {
	_, srv := newFakeServer(t)
	v := newTestVenue(t, srv)
	ctx := context.Background()

	bal, err := v.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("152.25").Equal(bal), bal.String())

	depth, err := v.Depth(ctx, domain.LegQuote{TokenID: "tok-hou", Price: decimal.RequireFromString("0.45")})
	require.NoError(t, err)
	assert.Equal(t, int64(220), depth)

	depth, err = v.Depth(ctx, domain.LegQuote{TokenID: "tok-hou", Price: decimal.RequireFromString("0.44")})
	require.NoError(t, err)
	assert.Equal(t, int64(100), depth)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(429, nil), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(401, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(404, nil), domain.ErrNotFound)
	assert.Error(t, checkHTTPStatus(500, []byte("boom")))
}

func TestStringListAndFlexBool(t *testing.T) {
	var m Market
	require.NoError(t, json.Unmarshal([]byte(`{"outcomes":"[\"A\",\"B\"]","clobTokenIds":["1","2"],"closed":"true","active":true}`), &m))
	assert.Equal(t, []string{"A", "B"}, []string(m.Outcomes))
	assert.Equal(t, []string{"1", "2"}, []string(m.ClobTokenIDs))
	assert.True(t, bool(m.Closed))
	assert.True(t, bool(m.Active))
}
