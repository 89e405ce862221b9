package kalshi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/matcher"
)

var hundred = decimal.NewFromInt(100)

// Venue adapts Client to domain.MarketFetcher and domain.OrderClient.
type Venue struct {
	client   *Client
	logger   *slog.Logger
	maxPages int
	now      func() time.Time
}

// NewVenue wraps client.
func NewVenue(client *Client, logger *slog.Logger) *Venue {
	return &Venue{
		client:   client,
		logger:   logger.With(slog.String("component", "kalshi")),
		maxPages: 20,
		now:      time.Now,
	}
}

// Venue implements domain.MarketFetcher.
func (v *Venue) Venue() domain.Venue { return domain.VenueKalshi }

// FetchMarkets lists open game-winner markets for sport. Markets without a
// two-sided quote are skipped.
func (v *Venue) FetchMarkets(ctx context.Context, sport domain.Sport) ([]domain.NormalizedMarket, error) {
	series, ok := matcher.KalshiSeries(sport)
	if !ok {
		return nil, nil
	}

	var out []domain.NormalizedMarket
	cursor := ""
	for page := 0; page < v.maxPages; page++ {
		markets, next, err := v.client.Markets(ctx, series, "open", cursor)
		if err != nil {
			return out, err
		}
		now := v.now()
		for _, m := range markets {
			nm, err := normalize(m, sport, now)
			if err != nil {
				v.logger.DebugContext(ctx, "skipping market", slog.String("ticker", m.Ticker), slog.String("error", err.Error()))
				continue
			}
			out = append(out, nm)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

func normalize(m Market, sport domain.Sport, now time.Time) (domain.NormalizedMarket, error) {
	game, err := domain.GameIDFromTicker(m.Ticker)
	if err != nil {
		return domain.NormalizedMarket{}, err
	}
	var closeAt time.Time
	if m.CloseTime != "" {
		if closeAt, err = time.Parse(time.RFC3339, m.CloseTime); err != nil {
			return domain.NormalizedMarket{}, fmt.Errorf("kalshi: close time %q: %w", m.CloseTime, domain.ErrInvalidMarket)
		}
	}
	return domain.NewNormalizedMarket(domain.NormalizedMarket{
		Venue:        domain.VenueKalshi,
		InstrumentID: m.Ticker,
		GameID:       game,
		Sport:        sport,
		Title:        m.Title,
		Side:         m.YesSubTitle,
		Outcomes: [2]domain.Quote{
			domain.WinIndex:  {Label: domain.OutcomeYes, Ask: fromCents(m.YesAsk)},
			domain.LoseIndex: {Label: domain.OutcomeNo, Ask: fromCents(m.NoAsk)},
		},
		Spread:    fromCents(m.YesAsk - m.YesBid),
		CloseTime: closeAt,
		FetchedAt: now,
	})
}

// SubmitOrder implements domain.OrderClient with a limit buy on the YES or
// NO side of the instrument.
func (v *Venue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	cents := toCents(req.Price)
	if cents < 1 || cents > 99 {
		return domain.OrderHandle{}, fmt.Errorf("kalshi: %w: limit price %s", domain.ErrValidationFailed, req.Price)
	}
	o := CreateOrder{
		Ticker:        req.InstrumentID,
		ClientOrderID: req.ClientOrderID,
		Action:        "buy",
		Side:          req.Outcome,
		Type:          "limit",
		Count:         req.Quantity,
	}
	switch req.Outcome {
	case domain.OutcomeYes:
		o.YesPrice = cents
	case domain.OutcomeNo:
		o.NoPrice = cents
	default:
		return domain.OrderHandle{}, fmt.Errorf("kalshi: unknown side %q: %w", req.Outcome, domain.ErrInvalidMarket)
	}

	placed, err := v.client.CreateOrder(ctx, o)
	if err != nil {
		return domain.OrderHandle{}, err
	}
	v.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", placed.OrderID),
		slog.String("ticker", req.InstrumentID),
		slog.String("side", req.Outcome),
		slog.Int64("price_cents", cents),
		slog.Int64("count", req.Quantity),
	)
	return domain.OrderHandle{Venue: domain.VenueKalshi, OrderID: placed.OrderID, InstrumentID: req.InstrumentID}, nil
}

// PollOrder implements domain.OrderClient.
func (v *Venue) PollOrder(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	o, err := v.client.GetOrder(ctx, h.OrderID)
	if err != nil {
		return domain.OrderStatus{}, err
	}
	return orderStatus(o), nil
}

// CancelOrder implements domain.OrderClient. An order that is already gone
// reports false without error.
func (v *Venue) CancelOrder(ctx context.Context, h domain.OrderHandle) (bool, error) {
	o, err := v.client.CancelOrder(ctx, h.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.Status == "canceled", nil
}

// Balance implements domain.OrderClient.
func (v *Venue) Balance(ctx context.Context) (decimal.Decimal, error) {
	cents, err := v.client.Balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return fromCents(cents), nil
}

// Depth implements domain.OrderClient. Buying one side lifts the resting
// bids of the other: a NO bid at p is a YES offer at 100-p. Depth counts the
// offers at or below the leg price.
func (v *Venue) Depth(ctx context.Context, leg domain.LegQuote) (int64, error) {
	book, err := v.client.Orderbook(ctx, leg.InstrumentID)
	if err != nil {
		return 0, err
	}
	opposite := book.No
	if leg.Outcome == domain.OutcomeNo {
		opposite = book.Yes
	}
	limit := toCents(leg.Price)
	var depth int64
	for _, lvl := range opposite {
		if 100-lvl[0] <= limit {
			depth += lvl[1]
		}
	}
	return depth, nil
}

func orderStatus(o Order) domain.OrderStatus {
	filled := o.TakerFillCount + o.MakerFillCount
	st := domain.OrderStatus{FilledQty: filled}
	if filled > 0 {
		st.AvgPrice = fromCents(o.TakerFillCost + o.MakerFillCost).Div(decimal.NewFromInt(filled)).Round(4)
	}
	switch o.Status {
	case "executed":
		st.State = domain.OrderFilled
	case "canceled":
		st.State = domain.OrderCancelled
	default:
		st.State = domain.OrderOpen
	}
	return st
}

func fromCents(c int64) decimal.Decimal { return decimal.NewFromInt(c).Div(hundred) }

func toCents(p decimal.Decimal) int64 { return p.Mul(hundred).Floor().IntPart() }

var (
	_ domain.MarketFetcher = (*Venue)(nil)
	_ domain.OrderClient   = (*Venue)(nil)
)
