package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketFetcher lists current binary instruments for one sport.
type MarketFetcher interface {
	Venue() Venue
	FetchMarkets(ctx context.Context, sport Sport) ([]NormalizedMarket, error)
}

// OrderClient places and tracks limit orders on one venue.
type OrderClient interface {
	Venue() Venue
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	PollOrder(ctx context.Context, h OrderHandle) (OrderStatus, error)
	CancelOrder(ctx context.Context, h OrderHandle) (bool, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Depth(ctx context.Context, leg LegQuote) (int64, error)
}

// EventSink receives opportunities and terminal execution outcomes.
type EventSink interface {
	OnOpportunity(ctx context.Context, opp ArbitrageOpportunity) error
	OnExecutionTerminal(ctx context.Context, rec ExecutionRecord) error
}
