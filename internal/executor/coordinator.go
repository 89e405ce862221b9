// Package executor turns arbitrage opportunities into paired venue orders and
// drives each execution to a terminal ledger state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Config controls order sizing, fill policy, and validation thresholds.
type Config struct {
	Quantity       int64
	PriceOffset    decimal.Decimal
	MaxPrice       decimal.Decimal
	FillFraction   decimal.Decimal
	PollInterval   time.Duration
	FillTimeout    time.Duration
	MinTimeToClose time.Duration
	RetryCooldown  time.Duration
	MaxConcurrent  int
	PersistTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Quantity:       10,
		PriceOffset:    decimal.RequireFromString("0.01"),
		MaxPrice:       decimal.RequireFromString("0.99"),
		FillFraction:   decimal.RequireFromString("0.9"),
		PollInterval:   500 * time.Millisecond,
		FillTimeout:    30 * time.Second,
		MinTimeToClose: 10 * time.Minute,
		RetryCooldown:  2 * time.Minute,
		MaxConcurrent:  4,
		PersistTimeout: 5 * time.Second,
	}
}

// Coordinator executes opportunities leg by leg against the venue order
// clients, using the ledger as the idempotency boundary.
type Coordinator struct {
	cfg     Config
	clients map[domain.Venue]domain.OrderClient
	ledger  domain.Ledger
	store   domain.ExecutionStore
	sink    domain.EventSink
	logger  *slog.Logger

	cooldown *Cooldown
	now      func() time.Time
}

// New creates a Coordinator. One order client per venue is required; sink
// may be nil.
func New(
	cfg Config,
	clients []domain.OrderClient,
	ledger domain.Ledger,
	store domain.ExecutionStore,
	sink domain.EventSink,
	logger *slog.Logger,
) (*Coordinator, error) {
	byVenue := make(map[domain.Venue]domain.OrderClient, len(clients))
	for _, cl := range clients {
		byVenue[cl.Venue()] = cl
	}
	for _, v := range []domain.Venue{domain.VenueKalshi, domain.VenuePolymarket} {
		if byVenue[v] == nil {
			return nil, fmt.Errorf("executor: no order client for venue %s", v)
		}
	}
	if cfg.Quantity <= 0 {
		return nil, fmt.Errorf("executor: quantity must be positive, got %d", cfg.Quantity)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Coordinator{
		cfg:      cfg,
		clients:  byVenue,
		ledger:   ledger,
		store:    store,
		sink:     sink,
		logger:   logger.With(slog.String("component", "executor")),
		cooldown: NewCooldown(cfg.RetryCooldown),
		now:      time.Now,
	}, nil
}

// Execute runs one opportunity through validation, claim, concurrent leg
// submission and reconciliation. The returned record reflects the furthest
// state reached. A cancelled ctx leaves the game EXECUTING in the ledger for
// Recover to resolve.
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ExecutionRecord, error) {
	log := c.logger.With(
		slog.String("game_id", string(opp.GameID)),
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", string(opp.Strategy)),
	)

	entry, err := c.ledger.Get(ctx, opp.GameID)
	switch {
	case err == nil && !entry.RetrySafe():
		log.Debug("game already owned", slog.String("ledger_state", string(entry.State)))
		return domain.ExecutionRecord{}, fmt.Errorf("executor: execute %s: %w", opp.GameID, domain.ErrLedgerClaimDenied)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.ExecutionRecord{}, fmt.Errorf("executor: ledger lookup: %w", err)
	}

	rec := c.newRecord(opp)
	if err := c.validate(ctx, rec); err != nil {
		rec.State, rec.Result, rec.Reason = domain.StateFailed, domain.StateFailed, err.Error()
		log.Info("validation failed", slog.String("error", err.Error()))
		return rec, fmt.Errorf("executor: validate: %w", err)
	}
	rec.State = domain.StateValidated

	claimed, err := c.ledger.TryClaim(ctx, opp.GameID, rec.ID)
	if err != nil {
		return rec, fmt.Errorf("executor: claim: %w", err)
	}
	if !claimed {
		log.Debug("claim denied")
		return rec, fmt.Errorf("executor: claim %s: %w", opp.GameID, domain.ErrLedgerClaimDenied)
	}

	rec.State = domain.StateExecuting
	if err := c.save(ctx, &rec); err != nil {
		// Nothing was submitted, so the game is released for a later retry.
		rec.Reason = err.Error()
		c.settleFailed(ctx, &rec, log)
		return rec, fmt.Errorf("executor: persist executing: %w", err)
	}
	log.Info("executing", slog.String("execution_id", rec.ID), slog.Int64("quantity", rec.Quantity))

	c.runLegs(ctx, &rec)

	if ctx.Err() != nil {
		dctx, cancel := c.detached(ctx)
		defer cancel()
		if err := c.save(dctx, &rec); err != nil {
			log.Error("persist interrupted execution failed", slog.String("error", err.Error()))
		}
		log.Warn("execution interrupted, left for recovery", slog.String("execution_id", rec.ID))
		return rec, fmt.Errorf("executor: execute %s: %w", opp.GameID, ctx.Err())
	}

	c.reconcile(ctx, &rec, log)
	if err := c.finish(ctx, &rec, log); err != nil {
		return rec, err
	}
	return rec, nil
}

func (c *Coordinator) newRecord(opp domain.ArbitrageOpportunity) domain.ExecutionRecord {
	now := c.now().UTC()
	rec := domain.ExecutionRecord{
		ID:          uuid.New().String(),
		GameID:      opp.GameID,
		State:       domain.StateDetected,
		Opportunity: opp,
		Quantity:    c.cfg.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, q := range opp.Legs() {
		rec.Legs[i] = domain.LegRecord{
			Venue:          q.Venue,
			InstrumentID:   q.InstrumentID,
			TokenID:        q.TokenID,
			Outcome:        q.Outcome,
			RequestedPrice: q.Price,
			LimitPrice:     c.limitPrice(q.Price),
			RequestedQty:   c.cfg.Quantity,
			Status:         domain.LegPending,
		}
	}
	return rec
}

func (c *Coordinator) limitPrice(p decimal.Decimal) decimal.Decimal {
	limit := p.Add(c.cfg.PriceOffset)
	if limit.GreaterThan(c.cfg.MaxPrice) {
		return c.cfg.MaxPrice
	}
	return limit
}

// validate checks balance, depth and time to close for both legs.
func (c *Coordinator) validate(ctx context.Context, rec domain.ExecutionRecord) error {
	opp := rec.Opportunity
	if opp.CloseTime.IsZero() {
		return fmt.Errorf("%w: close time unknown", domain.ErrValidationFailed)
	}
	if ttc := opp.CloseTime.Sub(c.now()); ttc < c.cfg.MinTimeToClose {
		return fmt.Errorf("%w: %s to close, need %s", domain.ErrValidationFailed, ttc.Round(time.Second), c.cfg.MinTimeToClose)
	}

	qty := decimal.NewFromInt(rec.Quantity)
	quotes := opp.Legs()
	for i, leg := range rec.Legs {
		client := c.clients[leg.Venue]
		if client == nil {
			return fmt.Errorf("%w: no client for venue %s", domain.ErrValidationFailed, leg.Venue)
		}
		bal, err := client.Balance(ctx)
		if err != nil {
			return fmt.Errorf("%w: balance %s: %w", domain.ErrValidationFailed, leg.Venue, err)
		}
		if need := leg.LimitPrice.Mul(qty); bal.LessThan(need) {
			return fmt.Errorf("%w: %s balance %s below %s", domain.ErrValidationFailed, leg.Venue, bal, need)
		}
		depth, err := client.Depth(ctx, quotes[i])
		if err != nil {
			return fmt.Errorf("%w: depth %s: %w", domain.ErrValidationFailed, leg.Venue, err)
		}
		if depth < rec.Quantity {
			return fmt.Errorf("%w: %s depth %d below %d", domain.ErrValidationFailed, leg.Venue, depth, rec.Quantity)
		}
	}
	return nil
}

// runLegs submits and polls both legs concurrently. Each order handle is
// persisted as soon as the venue issues it.
func (c *Coordinator) runLegs(ctx context.Context, rec *domain.ExecutionRecord) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	legs := rec.Legs
	for i, leg := range legs {
		client := c.clients[leg.Venue]
		clientID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID+"/"+string(leg.Venue))).String()

		g.Go(func() error {
			commit := func(l domain.LegRecord, persist bool) {
				mu.Lock()
				defer mu.Unlock()
				rec.Legs[i] = l
				if !persist {
					return
				}
				if err := c.save(ctx, rec); err != nil {
					c.logger.Error("persist order handle failed",
						slog.String("execution_id", rec.ID),
						slog.String("venue", string(l.Venue)),
						slog.String("order_id", l.OrderID),
						slog.String("error", err.Error()),
					)
				}
			}
			final := c.runLeg(ctx, client, leg, clientID, func(l domain.LegRecord) { commit(l, true) })
			commit(final, false)
			return nil
		})
	}
	_ = g.Wait()
}

// runLeg submits one order and polls it until it reaches the fill fraction,
// a terminal venue state, or the fill timeout.
func (c *Coordinator) runLeg(
	ctx context.Context,
	client domain.OrderClient,
	leg domain.LegRecord,
	clientID string,
	onSubmit func(domain.LegRecord),
) domain.LegRecord {
	h, err := client.SubmitOrder(ctx, domain.OrderRequest{
		ClientOrderID: clientID,
		Venue:         leg.Venue,
		InstrumentID:  leg.InstrumentID,
		TokenID:       leg.TokenID,
		Outcome:       leg.Outcome,
		Price:         leg.LimitPrice,
		Quantity:      leg.RequestedQty,
	})
	if err != nil {
		leg.Error = fmt.Errorf("%w: %w", domain.ErrLegSubmission, err).Error()
		leg.Status = domain.LegUnfilled
		if ctx.Err() != nil {
			leg.Status = domain.LegUnknown
		}
		return leg
	}
	leg.OrderID = h.OrderID
	leg.Status = domain.LegSubmitted
	leg.SubmittedAt = c.now().UTC()
	onSubmit(leg)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.cfg.FillTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			leg.Status = domain.LegUnknown
			return leg

		case <-deadline.C:
			leg.Status = domain.LegUnfilled
			leg.Error = fmt.Errorf("%w after %s", domain.ErrLegTimeout, c.cfg.FillTimeout).Error()
			return leg

		case <-ticker.C:
			st, err := client.PollOrder(ctx, h)
			if err != nil {
				c.logger.Warn("poll order failed",
					slog.String("venue", string(leg.Venue)),
					slog.String("order_id", leg.OrderID),
					slog.String("error", err.Error()),
				)
				continue
			}
			applyStatus(&leg, st)
			if leg.FilledAtLeast(c.cfg.FillFraction) || st.State == domain.OrderFilled {
				leg.Status = domain.LegFilled
				return leg
			}
			switch st.State {
			case domain.OrderCancelled:
				leg.Status = domain.LegCancelled
				return leg
			case domain.OrderRejected:
				leg.Status = domain.LegRejected
				return leg
			}
		}
	}
}

func applyStatus(leg *domain.LegRecord, st domain.OrderStatus) {
	leg.FilledQty = st.FilledQty
	if st.FilledQty > 0 {
		leg.FilledPrice = st.AvgPrice
	}
}

// reconcile cancels every order still resting at the venue, including the
// unfilled remainder of a leg that reached the fill fraction. When a cancel
// fails the order is polled once more so late fills are not missed. A leg
// the venue reports filled without enough contracts to back it is marked
// unknown.
func (c *Coordinator) reconcile(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) {
	for i := range rec.Legs {
		leg := &rec.Legs[i]
		switch {
		case leg.Status == domain.LegSubmitted || leg.Status == domain.LegUnfilled:
			c.cancelResting(ctx, rec, leg, log)
		case leg.Status == domain.LegFilled && leg.FilledQty < leg.RequestedQty:
			c.cancelRemainder(ctx, rec, leg, log)
		}
		if leg.Status == domain.LegFilled && !leg.FilledAtLeast(c.cfg.FillFraction) {
			leg.Status = domain.LegUnknown
			rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s reported filled with %d/%d contracts",
				leg.Venue, leg.OrderID, leg.FilledQty, leg.RequestedQty))
		}
	}
}

func (c *Coordinator) cancelResting(ctx context.Context, rec *domain.ExecutionRecord, leg *domain.LegRecord, log *slog.Logger) {
	h, ok := leg.Handle()
	if !ok {
		return
	}
	client := c.clients[leg.Venue]

	cancelled, err := client.CancelOrder(ctx, h)
	if err == nil && cancelled {
		leg.Status = domain.LegCancelled
		return
	}
	if err != nil {
		log.Warn("cancel failed", slog.String("venue", string(leg.Venue)), slog.String("order_id", leg.OrderID), slog.String("error", err.Error()))
	}

	st, perr := client.PollOrder(ctx, h)
	if perr != nil {
		log.Error("order status unknown after failed cancel", slog.String("venue", string(leg.Venue)), slog.String("order_id", leg.OrderID), slog.String("error", perr.Error()))
		leg.Status = domain.LegUnknown
		rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s status unknown", leg.Venue, leg.OrderID))
		return
	}
	applyStatus(leg, st)
	switch {
	case leg.FilledAtLeast(c.cfg.FillFraction) || st.State == domain.OrderFilled:
		leg.Status = domain.LegFilled
	case st.Done():
		leg.Status = domain.LegCancelled
	default:
		// Still resting and not cancellable: it may fill later.
		leg.Status = domain.LegUnknown
		rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s could not be cancelled", leg.Venue, leg.OrderID))
	}
}

// cancelRemainder stops the rest of a filled leg from executing after the
// ledger has settled. The leg stays filled unless its order is still live.
func (c *Coordinator) cancelRemainder(ctx context.Context, rec *domain.ExecutionRecord, leg *domain.LegRecord, log *slog.Logger) {
	h, ok := leg.Handle()
	if !ok {
		return
	}
	client := c.clients[leg.Venue]

	cancelled, err := client.CancelOrder(ctx, h)
	if err == nil && cancelled {
		rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s remainder of %d cancelled",
			leg.Venue, leg.OrderID, leg.RequestedQty-leg.FilledQty))
		return
	}
	if err != nil {
		log.Warn("cancel of remainder failed", slog.String("venue", string(leg.Venue)), slog.String("order_id", leg.OrderID), slog.String("error", err.Error()))
	}

	st, perr := client.PollOrder(ctx, h)
	if perr != nil {
		log.Error("order status unknown after failed cancel", slog.String("venue", string(leg.Venue)), slog.String("order_id", leg.OrderID), slog.String("error", perr.Error()))
		leg.Status = domain.LegUnknown
		rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s status unknown", leg.Venue, leg.OrderID))
		return
	}
	applyStatus(leg, st)
	if !st.Done() {
		leg.Status = domain.LegUnknown
		rec.Notes = append(rec.Notes, fmt.Sprintf("%s order %s remainder could not be cancelled", leg.Venue, leg.OrderID))
	}
}

// Classify maps reconciled legs to a terminal outcome. Any leg whose venue
// state is unknown forces PARTIAL, and so does a leg marked filled whose
// count does not reach the fraction.
func Classify(legs [2]domain.LegRecord, fraction decimal.Decimal) domain.ExecutionState {
	a, b := legs[0], legs[1]
	if a.Status == domain.LegUnknown || b.Status == domain.LegUnknown {
		return domain.StatePartial
	}
	for _, l := range legs {
		if l.Status == domain.LegFilled && !l.FilledAtLeast(fraction) {
			return domain.StatePartial
		}
	}
	if a.FilledAtLeast(fraction) && b.FilledAtLeast(fraction) {
		return domain.StateFilled
	}
	if a.FilledQty == 0 && b.FilledQty == 0 {
		return domain.StateFailed
	}
	return domain.StatePartial
}

// finish classifies the record, applies the ledger transitions, persists the
// record and notifies the sink.
func (c *Coordinator) finish(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) error {
	result := Classify(rec.Legs, c.cfg.FillFraction)
	rec.Result = result

	var err error
	switch result {
	case domain.StateFilled:
		rec.HasPosition = true
		err = c.transitions(ctx, rec.GameID, true, domain.StateExecuting, domain.StateFilled, domain.StateSettled)
		rec.State = domain.StateSettled
		log.Info("execution filled",
			slog.String("execution_id", rec.ID),
			slog.Int64("filled_a", rec.Legs[0].FilledQty),
			slog.Int64("filled_b", rec.Legs[1].FilledQty),
		)
	case domain.StateFailed:
		c.settleFailed(ctx, rec, log)
		return c.terminal(ctx, rec, log)
	default:
		rec.HasPosition = true
		err = c.transitions(ctx, rec.GameID, true, domain.StateExecuting, domain.StatePartial)
		rec.State = domain.StatePartial
		attrs := []any{slog.String("execution_id", rec.ID)}
		exposure := rec.Exposure()
		if len(exposure) == 0 {
			rec.Notes = append(rec.Notes, fmt.Sprintf("hedged below fill fraction: %d and %d of %d contracts",
				rec.Legs[0].FilledQty, rec.Legs[1].FilledQty, rec.Quantity))
			attrs = append(attrs, slog.Bool("hedged", true))
		}
		for _, e := range exposure {
			attrs = append(attrs, slog.Group("exposure",
				slog.String("venue", string(e.Venue)),
				slog.String("instrument_id", e.InstrumentID),
				slog.String("outcome", e.Outcome),
				slog.Int64("quantity", e.Quantity),
				slog.Bool("unknown", e.Unknown),
			))
		}
		log.Error("partial execution requires manual review", attrs...)
	}
	if err != nil {
		rec.Notes = append(rec.Notes, err.Error())
		log.Error("ledger transition failed", slog.String("error", err.Error()))
	}
	if terr := c.terminal(ctx, rec, log); terr != nil {
		return terr
	}
	if err != nil {
		return fmt.Errorf("executor: finish %s: %w", rec.GameID, err)
	}
	return nil
}

// settleFailed walks EXECUTING -> FAILED -> SETTLED without a position,
// which makes the game eligible for a later claim.
func (c *Coordinator) settleFailed(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) {
	rec.Result = domain.StateFailed
	rec.HasPosition = false
	if err := c.transitions(ctx, rec.GameID, false, domain.StateExecuting, domain.StateFailed, domain.StateSettled); err != nil {
		rec.Notes = append(rec.Notes, err.Error())
		log.Error("ledger transition failed", slog.String("error", err.Error()))
	}
	rec.State = domain.StateSettled
	log.Info("execution failed, game released", slog.String("execution_id", rec.ID), slog.String("reason", rec.Reason))
}

func (c *Coordinator) transitions(ctx context.Context, game domain.GameID, hasPosition bool, path ...domain.ExecutionState) error {
	for i := 1; i < len(path); i++ {
		if err := c.ledger.Transition(ctx, game, path[i-1], path[i], hasPosition); err != nil {
			return fmt.Errorf("executor: ledger %s->%s: %w", path[i-1], path[i], err)
		}
	}
	return nil
}

// terminal persists the finished record and hands it to the sink.
func (c *Coordinator) terminal(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) error {
	if err := c.save(ctx, rec); err != nil {
		log.Error("persist terminal record failed", slog.String("execution_id", rec.ID), slog.String("error", err.Error()))
		return fmt.Errorf("executor: persist terminal: %w", err)
	}
	if err := c.sink.OnExecutionTerminal(ctx, *rec); err != nil {
		log.Warn("event sink failed", slog.String("execution_id", rec.ID), slog.String("error", err.Error()))
	}
	return nil
}

func (c *Coordinator) save(ctx context.Context, rec *domain.ExecutionRecord) error {
	rec.UpdatedAt = c.now().UTC()
	return c.store.Save(ctx, *rec)
}

func (c *Coordinator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PersistTimeout)
}

type nopSink struct{}

func (nopSink) OnOpportunity(context.Context, domain.ArbitrageOpportunity) error { return nil }
func (nopSink) OnExecutionTerminal(context.Context, domain.ExecutionRecord) error  { return nil }
