// Package paper simulates a venue's order flow in memory for dry runs.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

var paperNamespace = uuid.MustParse("6f0d3b0e-3c55-4c2a-9a8e-5c1d1f4f2a10")

// Config controls a paper venue.
type Config struct {
	Balance         decimal.Decimal
	FillProbability float64 // chance an order fills in full on submit
	Seed            uint64
}

type order struct {
	handle domain.OrderHandle
	status domain.OrderStatus
	qty    int64
}

// Client is an in-memory domain.OrderClient. An order either fills at its
// limit price on submit or rests until cancelled.
type Client struct {
	venue  domain.Venue
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	balance  decimal.Decimal
	orders   map[string]*order
	byClient map[string]string
}

// New creates a paper client standing in for venue.
func New(venue domain.Venue, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		venue:    venue,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "paper"), slog.String("venue", string(venue))),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		balance:  cfg.Balance,
		orders:   make(map[string]*order),
		byClient: make(map[string]string),
	}
}

// Venue implements domain.OrderClient.
func (c *Client) Venue() domain.Venue { return c.venue }

// SubmitOrder implements domain.OrderClient. Resubmitting a client order id
// returns the original handle.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if req.Quantity <= 0 || !req.Price.IsPositive() {
		return domain.OrderHandle{}, fmt.Errorf("paper: %w: quantity %d price %s", domain.ErrValidationFailed, req.Quantity, req.Price)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byClient[req.ClientOrderID]; ok && req.ClientOrderID != "" {
		return c.orders[id].handle, nil
	}
	id := uuid.NewSHA1(paperNamespace, []byte(fmt.Sprintf("%s/%d", req.ClientOrderID, len(c.orders)))).String()
	o := &order{
		handle: domain.OrderHandle{Venue: c.venue, OrderID: id, InstrumentID: req.InstrumentID, TokenID: req.TokenID},
		status: domain.OrderStatus{State: domain.OrderOpen},
		qty:    req.Quantity,
	}
	cost := req.Price.Mul(decimal.NewFromInt(req.Quantity))
	if c.rng.Float64() < c.cfg.FillProbability && cost.LessThanOrEqual(c.balance) {
		o.status = domain.OrderStatus{State: domain.OrderFilled, FilledQty: req.Quantity, AvgPrice: req.Price}
		c.balance = c.balance.Sub(cost)
	}
	c.orders[id] = o
	c.byClient[req.ClientOrderID] = id

	c.logger.InfoContext(ctx, "paper order",
		slog.String("order_id", id),
		slog.String("instrument", req.InstrumentID),
		slog.String("outcome", req.Outcome),
		slog.String("price", req.Price.String()),
		slog.Int64("quantity", req.Quantity),
		slog.String("state", string(o.status.State)),
	)
	return o.handle, nil
}

// PollOrder implements domain.OrderClient.
func (c *Client) PollOrder(_ context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[h.OrderID]
	if !ok {
		return domain.OrderStatus{}, fmt.Errorf("paper: order %s: %w", h.OrderID, domain.ErrNotFound)
	}
	return o.status, nil
}

// CancelOrder implements domain.OrderClient.
func (c *Client) CancelOrder(_ context.Context, h domain.OrderHandle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[h.OrderID]
	if !ok || o.status.State != domain.OrderOpen {
		return false, nil
	}
	o.status.State = domain.OrderCancelled
	return true, nil
}

// Balance implements domain.OrderClient.
func (c *Client) Balance(context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

// Depth implements domain.OrderClient by trusting the snapshot depth.
func (c *Client) Depth(_ context.Context, leg domain.LegQuote) (int64, error) {
	return leg.Depth, nil
}

var _ domain.OrderClient = (*Client)(nil)
