// Package ratelimit keeps calls to each venue inside its published budget
// and backs off when the venue signals throttling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// minWait bounds the polling interval while the window is full.
const minWait = 5 * time.Millisecond

// Config is the budget and backoff policy of one venue.
type Config struct {
	MaxCalls      int
	Window        time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	DecayFactor   float64
	DecayAfter    int
}

// Governor admits calls to one venue. Admission requires a free slot in the
// sliding window and, while backing off, the adaptive inter-call spacing.
type Governor struct {
	key    string
	cfg    Config
	window domain.RateLimiter
	logger *slog.Logger

	mu        sync.Mutex
	delay     time.Duration
	successes int
	spacing   *rate.Limiter
}

// NewGovernor creates a Governor for key (normally the venue name) counting
// calls in window.
func NewGovernor(key string, cfg Config, window domain.RateLimiter, logger *slog.Logger) *Governor {
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.5
	}
	if cfg.DecayAfter <= 0 {
		cfg.DecayAfter = 1
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	g := &Governor{
		key:     key,
		cfg:     cfg,
		window:  window,
		logger:  logger.With(slog.String("component", "governor"), slog.String("venue", key)),
		delay:   cfg.BaseDelay,
		spacing: rate.NewLimiter(limitFor(cfg.BaseDelay), 1),
	}
	return g
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

// Acquire blocks until one call may be made or ctx is done.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.spacing.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %s spacing: %w", g.key, err)
	}
	for {
		ok, retry, err := g.window.Allow(ctx, g.key, g.cfg.MaxCalls, g.cfg.Window)
		if err != nil {
			return fmt.Errorf("ratelimit: %s window: %w", g.key, err)
		}
		if ok {
			return nil
		}
		if retry < minWait {
			retry = minWait
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: %s wait: %w", g.key, ctx.Err())
		case <-timer.C:
		}
	}
}

// ObserveRateLimited grows the inter-call delay by the backoff factor,
// bounded by MaxDelay.
func (g *Governor) ObserveRateLimited() {
	g.mu.Lock()
	defer g.mu.Unlock()

	floor := g.cfg.BaseDelay
	if avg := g.cfg.Window / time.Duration(g.cfg.MaxCalls); avg > floor {
		floor = avg
	}
	next := time.Duration(float64(g.delay) * g.cfg.BackoffFactor)
	if next < floor {
		next = floor
	}
	if g.cfg.MaxDelay > 0 && next > g.cfg.MaxDelay {
		next = g.cfg.MaxDelay
	}
	g.successes = 0
	g.setDelay(next)
	g.logger.Warn("venue throttled, backing off", slog.Duration("delay", next))
}

// ObserveSuccess decays the delay toward BaseDelay after DecayAfter
// consecutive successes.
func (g *Governor) ObserveSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.delay <= g.cfg.BaseDelay {
		return
	}
	g.successes++
	if g.successes < g.cfg.DecayAfter {
		return
	}
	g.successes = 0
	next := time.Duration(float64(g.delay) * g.cfg.DecayFactor)
	if next < g.cfg.BaseDelay || next < minWait {
		next = g.cfg.BaseDelay
	}
	g.setDelay(next)
	g.logger.Debug("backoff decayed", slog.Duration("delay", next))
}

func (g *Governor) setDelay(d time.Duration) {
	g.delay = d
	g.spacing.SetLimit(limitFor(d))
}

// Delay returns the current inter-call delay.
func (g *Governor) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// Venue returns the key the governor meters.
func (g *Governor) Venue() string { return g.key }

// Do acquires a slot, runs fn once and feeds the outcome back into the
// backoff. It never retries fn.
func (g *Governor) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	switch {
	case err == nil:
		g.ObserveSuccess()
	case errors.Is(err, domain.ErrRateLimited):
		g.ObserveRateLimited()
	}
	return err
}
