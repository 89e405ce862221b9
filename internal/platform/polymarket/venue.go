package polymarket

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/crypto"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
)

var (
	usdcUnit = decimal.NewFromInt(1_000_000)
	tick     = decimal.RequireFromString("0.01")
	maxSalt  = big.NewInt(1 << 48)
)

// Venue adapts the Gamma and CLOB clients to domain.MarketFetcher and
// domain.OrderClient.
type Venue struct {
	gamma       *GammaClient
	clob        *ClobClient
	logger      *slog.Logger
	pageSize    int
	maxPages    int
	bookWorkers int
	now         func() time.Time
}

// NewVenue wraps the two clients. bookWorkers bounds concurrent book reads
// during a fetch; values below one mean one.
func NewVenue(gamma *GammaClient, clob *ClobClient, bookWorkers int, logger *slog.Logger) *Venue {
	if bookWorkers < 1 {
		bookWorkers = 1
	}
	return &Venue{
		gamma:       gamma,
		clob:        clob,
		logger:      logger.With(slog.String("component", "polymarket")),
		pageSize:    100,
		maxPages:    10,
		bookWorkers: bookWorkers,
		now:         time.Now,
	}
}

// Venue implements domain.MarketFetcher.
func (v *Venue) Venue() domain.Venue { return domain.VenuePolymarket }

// FetchMarkets lists the open moneyline markets for sport, priced from the
// best ask of each outcome token's book.
func (v *Venue) FetchMarkets(ctx context.Context, sport domain.Sport) ([]domain.NormalizedMarket, error) {
	tag, ok := matcher.PolymarketSlugPrefix(sport)
	if !ok {
		return nil, nil
	}

	var candidates []domain.NormalizedMarket
	for page := 0; page < v.maxPages; page++ {
		events, err := v.gamma.Events(ctx, tag, v.pageSize, page*v.pageSize)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if matcher.ClassifyPolymarket(ev.Slug) != sport {
				continue
			}
			m, ok := moneyline(ev)
			if !ok {
				continue
			}
			candidates = append(candidates, skeleton(ev, m, sport))
		}
		if len(events) < v.pageSize {
			break
		}
	}

	books := make([][2]Book, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.bookWorkers)
	for i := range candidates {
		for j := range 2 {
			token := candidates[i].Outcomes[j].TokenID
			g.Go(func() error {
				b, err := v.clob.Book(gctx, token)
				if err != nil {
					return err
				}
				books[i][j] = b
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := v.now()
	out := make([]domain.NormalizedMarket, 0, len(candidates))
	for i, m := range candidates {
		for j := range 2 {
			m.Outcomes[j].Ask, m.Outcomes[j].Depth = bestAsk(books[i][j])
		}
		m.FetchedAt = now
		nm, err := domain.NewNormalizedMarket(m)
		if err != nil {
			v.logger.DebugContext(ctx, "skipping market", slog.String("slug", m.Slug), slog.String("error", err.Error()))
			continue
		}
		out = append(out, nm)
	}
	return out, nil
}

// moneyline picks the game-winner market of an event: two named outcomes,
// each with a tradable token.
func moneyline(ev Event) (Market, bool) {
	var fallback *Market
	for i := range ev.Markets {
		m := &ev.Markets[i]
		if bool(m.Closed) || !bool(m.EnableOrderBook) || len(m.Outcomes) != 2 || len(m.ClobTokenIDs) != 2 {
			continue
		}
		if m.SportsMarketType == "moneyline" {
			return *m, true
		}
		if fallback == nil && m.SportsMarketType == "" && !isYesNo(m.Outcomes) {
			fallback = m
		}
	}
	if fallback == nil {
		return Market{}, false
	}
	return *fallback, true
}

func isYesNo(outcomes []string) bool {
	return strings.EqualFold(outcomes[0], "yes") && strings.EqualFold(outcomes[1], "no")
}

func skeleton(ev Event, m Market, sport domain.Sport) domain.NormalizedMarket {
	end := m.EndDate
	if end == "" {
		end = ev.EndDate
	}
	closeAt, _ := time.Parse(time.RFC3339, end)
	return domain.NormalizedMarket{
		Venue:        domain.VenuePolymarket,
		InstrumentID: m.ConditionID,
		Sport:        sport,
		Title:        ev.Title,
		Slug:         ev.Slug,
		Outcomes: [2]domain.Quote{
			{Label: m.Outcomes[0], TokenID: m.ClobTokenIDs[0]},
			{Label: m.Outcomes[1], TokenID: m.ClobTokenIDs[1]},
		},
		CloseTime: closeAt,
	}
}

// bestAsk returns the lowest ask and the whole shares resting at it. An
// empty book yields a zero ask, which validation rejects.
func bestAsk(b Book) (decimal.Decimal, int64) {
	var best, size decimal.Decimal
	for _, lvl := range b.Asks {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		s, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		switch {
		case best.IsZero() || p.LessThan(best):
			best, size = p, s
		case p.Equal(best):
			size = size.Add(s)
		}
	}
	return best, size.Floor().IntPart()
}

// SubmitOrder implements domain.OrderClient with a signed GTC limit buy of
// the outcome token. The price is floored to the one cent tick.
func (v *Venue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if req.TokenID == "" {
		return domain.OrderHandle{}, fmt.Errorf("polymarket: %w: missing token id", domain.ErrValidationFailed)
	}
	price := req.Price.Div(tick).Floor().Mul(tick)
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.OrderHandle{}, fmt.Errorf("polymarket: %w: limit price %s", domain.ErrValidationFailed, req.Price)
	}
	order, err := v.buildOrder(req.TokenID, price, req.Quantity)
	if err != nil {
		return domain.OrderHandle{}, err
	}
	id, err := v.clob.PostOrder(ctx, order)
	if err != nil {
		return domain.OrderHandle{}, err
	}
	v.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", id),
		slog.String("token_id", req.TokenID),
		slog.String("outcome", req.Outcome),
		slog.String("price", price.String()),
		slog.Int64("size", req.Quantity),
	)
	return domain.OrderHandle{
		Venue:        domain.VenuePolymarket,
		OrderID:      id,
		InstrumentID: req.InstrumentID,
		TokenID:      req.TokenID,
	}, nil
}

func (v *Venue) buildOrder(tokenID string, price decimal.Decimal, qty int64) (SignedOrder, error) {
	signer := v.clob.signer
	if signer == nil {
		return SignedOrder{}, fmt.Errorf("polymarket: %w: no wallet key", domain.ErrSigningFailed)
	}
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("polymarket: salt: %w", err)
	}
	shares := decimal.NewFromInt(qty)
	addr := signer.Address().Hex()
	o := crypto.Order{
		Salt:          salt.String(),
		Maker:         addr,
		Signer:        addr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   price.Mul(shares).Mul(usdcUnit).Floor().String(),
		TakerAmount:   shares.Mul(usdcUnit).String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          crypto.SideBuy,
		SignatureType: crypto.SignatureEOA,
	}
	sig, err := signer.SignOrder(o)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}
	return SignedOrder{
		Salt:          salt.Int64(),
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID,
		MakerAmount:   o.MakerAmount,
		TakerAmount:   o.TakerAmount,
		Expiration:    o.Expiration,
		Nonce:         o.Nonce,
		FeeRateBps:    o.FeeRateBps,
		Side:          "BUY",
		SignatureType: o.SignatureType,
		Signature:     sig,
	}, nil
}

// PollOrder implements domain.OrderClient.
func (v *Venue) PollOrder(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	o, err := v.clob.Order(ctx, h.OrderID)
	if err != nil {
		return domain.OrderStatus{}, err
	}
	return orderStatus(o), nil
}

// CancelOrder implements domain.OrderClient. An order the exchange no longer
// knows reports false without error.
func (v *Venue) CancelOrder(ctx context.Context, h domain.OrderHandle) (bool, error) {
	ok, err := v.clob.Cancel(ctx, h.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return ok, err
}

// Balance implements domain.OrderClient.
func (v *Venue) Balance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := v.clob.Balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	units, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket: balance %q: %w", raw, err)
	}
	return units.Div(usdcUnit), nil
}

// Depth implements domain.OrderClient: whole shares offered at or below the
// leg price.
func (v *Venue) Depth(ctx context.Context, leg domain.LegQuote) (int64, error) {
	book, err := v.clob.Book(ctx, leg.TokenID)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, lvl := range book.Asks {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil || p.GreaterThan(leg.Price) {
			continue
		}
		if s, err := decimal.NewFromString(lvl.Size); err == nil {
			total = total.Add(s)
		}
	}
	return total.Floor().IntPart(), nil
}

func orderStatus(o OpenOrder) domain.OrderStatus {
	matched, _ := decimal.NewFromString(o.SizeMatched)
	original, _ := decimal.NewFromString(o.OriginalSize)
	st := domain.OrderStatus{FilledQty: matched.Floor().IntPart()}
	if st.FilledQty > 0 {
		st.AvgPrice, _ = decimal.NewFromString(o.Price)
	}
	switch strings.ToUpper(o.Status) {
	case "MATCHED":
		st.State = domain.OrderFilled
	case "CANCELED", "CANCELED_MARKET_RESOLVED":
		st.State = domain.OrderCancelled
	default:
		st.State = domain.OrderOpen
		if original.IsPositive() && matched.GreaterThanOrEqual(original) {
			st.State = domain.OrderFilled
		}
	}
	return st
}

var (
	_ domain.MarketFetcher = (*Venue)(nil)
	_ domain.OrderClient   = (*Venue)(nil)
)
